package proxy

import (
	"encoding/json"

	"github.com/eternisai/cursor-bridge/internal/errors"
	"github.com/eternisai/cursor-bridge/internal/translate"
	"github.com/eternisai/cursor-bridge/internal/upstream"
)

// namedSink receives typed SSE events.
type namedSink interface {
	WriteNamed(event string, payload []byte) error
}

// streamState is the outer axis of the event machine.
type streamState int

const (
	streamNotStarted streamState = iota
	streamBlockActive
	streamCompleted
)

// contentType identifies the open content block.
type contentType int

const (
	contentNone contentType = iota
	contentThinking
	contentText
	contentInputJSON
)

// anthropicStream emits the typed Anthropic event sequence:
// message_start, content_block_start/delta/stop per block, ping after
// the first block opens, then message_delta and message_stop.
type anthropicStream struct {
	sink      namedSink
	messageID string
	model     string

	state       streamState
	lastContent contentType
	blockIndex  int
	sawToolCall bool
	accArgs     []byte // accumulated input_json for the open tool block
}

func newAnthropicStream(sink namedSink, messageID, model string) *anthropicStream {
	return &anthropicStream{sink: sink, messageID: messageID, model: model}
}

func (st *anthropicStream) send(event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return st.sink.WriteNamed(event, raw)
}

func (st *anthropicStream) messageStart() error {
	return st.send("message_start", map[string]interface{}{
		"type": "message_start",
		"message": map[string]interface{}{
			"id":            st.messageID,
			"type":          "message",
			"role":          "assistant",
			"model":         st.model,
			"content":       []interface{}{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         translate.AnthropicUsage{},
		},
	})
}

func (st *anthropicStream) blockStart(block map[string]interface{}) error {
	return st.send("content_block_start", map[string]interface{}{
		"type":          "content_block_start",
		"index":         st.blockIndex,
		"content_block": block,
	})
}

func (st *anthropicStream) blockStop() error {
	return st.send("content_block_stop", map[string]interface{}{
		"type":  "content_block_stop",
		"index": st.blockIndex,
	})
}

func (st *anthropicStream) delta(delta map[string]interface{}) error {
	return st.send("content_block_delta", map[string]interface{}{
		"type":  "content_block_delta",
		"index": st.blockIndex,
		"delta": delta,
	})
}

// openBlock transitions to a block of the wanted type, closing the
// previous block and bumping the index as needed. The very first block
// also triggers message_start and the ping.
func (st *anthropicStream) openBlock(want contentType, block map[string]interface{}) error {
	if st.lastContent == want && st.state == streamBlockActive {
		return nil
	}

	first := st.state == streamNotStarted
	if first {
		if err := st.messageStart(); err != nil {
			return err
		}
	} else if st.lastContent != contentNone {
		if err := st.blockStop(); err != nil {
			return err
		}
		st.blockIndex++
	}

	if err := st.blockStart(block); err != nil {
		return err
	}
	if first {
		if err := st.send("ping", map[string]interface{}{"type": "ping"}); err != nil {
			return err
		}
	}
	st.state = streamBlockActive
	st.lastContent = want
	if want == contentInputJSON {
		st.accArgs = st.accArgs[:0]
	}
	return nil
}

// Handle translates one logical event.
func (st *anthropicStream) Handle(ev upstream.LogicalEvent) error {
	switch ev.Kind {
	case upstream.EventContent:
		if err := st.openBlock(contentText, map[string]interface{}{"type": "text", "text": ""}); err != nil {
			return err
		}
		return st.delta(map[string]interface{}{"type": "text_delta", "text": ev.Text})

	case upstream.EventThinking:
		if ev.Thinking == nil {
			return nil
		}
		if err := st.openBlock(contentThinking, map[string]interface{}{"type": "thinking", "thinking": ""}); err != nil {
			return err
		}
		switch {
		case ev.Thinking.Text != "":
			return st.delta(map[string]interface{}{"type": "thinking_delta", "thinking": ev.Thinking.Text})
		case ev.Thinking.Signature != "":
			return st.delta(map[string]interface{}{"type": "signature_delta", "signature": ev.Thinking.Signature})
		case ev.Thinking.Redacted != "":
			return st.delta(map[string]interface{}{"type": "thinking_delta", "thinking": ev.Thinking.Redacted})
		}
		return nil

	case upstream.EventToolCallStart:
		st.sawToolCall = true
		block := map[string]interface{}{
			"type":  "tool_use",
			"id":    translate.CompositeToolID(ev.ToolCall.ID, ev.ToolCall.ModelCallID),
			"name":  ev.ToolCall.Name,
			"input": map[string]interface{}{},
		}
		// Force a fresh block even if the previous one was a tool call.
		if st.state == streamBlockActive && st.lastContent == contentInputJSON {
			if err := st.blockStop(); err != nil {
				return err
			}
			st.blockIndex++
			st.lastContent = contentNone
		}
		return st.openBlock(contentInputJSON, block)

	case upstream.EventToolCallArgs:
		if st.lastContent != contentInputJSON {
			// Args without a start; open an anonymous block to stay
			// well-formed.
			block := map[string]interface{}{
				"type":  "tool_use",
				"id":    translate.CompositeToolID(ev.ToolCall.ID, ev.ToolCall.ModelCallID),
				"name":  ev.ToolCall.Name,
				"input": map[string]interface{}{},
			}
			if err := st.openBlock(contentInputJSON, block); err != nil {
				return err
			}
		}
		st.accArgs = append(st.accArgs, ev.ToolCall.PartialJSON...)
		return st.delta(map[string]interface{}{"type": "input_json_delta", "partial_json": ev.ToolCall.PartialJSON})

	case upstream.EventToolCallEnd:
		return nil

	case upstream.EventStreamEnd:
		return st.finish(nil)

	case upstream.EventUpstreamError:
		return st.HandleError(ev.Err)
	}
	return nil
}

// AccumulatedArgsValid reports whether the JSON gathered across
// input_json deltas parses; consumers log a warning when it does not.
func (st *anthropicStream) AccumulatedArgsValid() bool {
	if len(st.accArgs) == 0 {
		return true
	}
	return json.Valid(st.accArgs)
}

// finish closes the open block and emits message_delta plus
// message_stop with the final stop reason.
func (st *anthropicStream) finish(usage *translate.AnthropicUsage) error {
	if st.state == streamCompleted {
		return nil
	}
	if st.state == streamNotStarted {
		// Nothing streamed; open and close an empty text block so the
		// event sequence stays legal.
		if err := st.openBlock(contentText, map[string]interface{}{"type": "text", "text": ""}); err != nil {
			return err
		}
	}
	if err := st.blockStop(); err != nil {
		return err
	}

	stopReason := "end_turn"
	if st.sawToolCall {
		stopReason = "tool_use"
	}
	if usage == nil {
		usage = &translate.AnthropicUsage{}
	}
	if err := st.send("message_delta", map[string]interface{}{
		"type":  "message_delta",
		"delta": map[string]interface{}{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": map[string]interface{}{"output_tokens": usage.OutputTokens},
	}); err != nil {
		return err
	}
	st.state = streamCompleted
	return st.send("message_stop", map[string]interface{}{"type": "message_stop"})
}

// FinishWithUsage is the StreamEnd path when a usage side-call
// succeeded.
func (st *anthropicStream) FinishWithUsage(usage *translate.AnthropicUsage) error {
	return st.finish(usage)
}

// HandleError emits the mid-stream error event; the caller closes the
// connection afterwards.
func (st *anthropicStream) HandleError(cerr *errors.Canonical) error {
	return st.send("error", cerr.Anthropic())
}

// SawToolCall reports whether a tool call crossed this stream.
func (st *anthropicStream) SawToolCall() bool { return st.sawToolCall }
