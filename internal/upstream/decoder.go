package upstream

import (
	"time"

	"github.com/eternisai/cursor-bridge/internal/aiserver"
)

// StreamDecoder turns the upstream's framed byte stream into logical
// events. It owns a Framer and tracks per-stream state the response
// translators and logs consume: whether a tool call appeared, how many
// consecutive chunks produced nothing, and time-to-first content and
// thinking bytes.
type StreamDecoder struct {
	framer   Framer
	started  time.Time
	terminal bool

	activeToolCallID string
	sawToolCall      bool
	emptyStreamCount int

	firstContentAt  time.Duration
	firstThinkingAt time.Duration
}

func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{started: time.Now()}
}

// SawToolCall reports whether any tool call was decoded; translators use
// it to pick the final stop reason.
func (d *StreamDecoder) SawToolCall() bool { return d.sawToolCall }

// EmptyStreamCount is the number of consecutive chunks that produced no
// logical event.
func (d *StreamDecoder) EmptyStreamCount() int { return d.emptyStreamCount }

// FirstContentLatency is the time from decoder creation to the first
// content byte; zero if none arrived yet.
func (d *StreamDecoder) FirstContentLatency() time.Duration { return d.firstContentAt }

// FirstThinkingLatency is the analogue for thinking bytes.
func (d *StreamDecoder) FirstThinkingLatency() time.Duration { return d.firstThinkingAt }

// Decode consumes one chunk and returns the logical events it completed,
// in stream order. After an error frame the decoder is terminal and
// discards everything further.
func (d *StreamDecoder) Decode(chunk []byte) ([]LogicalEvent, error) {
	if d.terminal {
		return nil, nil
	}

	var events []LogicalEvent
	for _, frame := range d.framer.Push(chunk) {
		payload, err := frame.decompressed()
		if err != nil {
			return events, err
		}

		if frame.IsError() {
			d.terminal = true
			events = append(events, LogicalEvent{
				Kind: EventUpstreamError,
				Err:  ParseErrorFrame(payload),
			})
			return events, nil
		}

		envelope, err := aiserver.UnmarshalStreamUnifiedChatResponseWithTools(payload)
		if err != nil {
			return events, err
		}
		events = d.appendEnvelopeEvents(events, envelope)
	}

	if len(events) == 0 {
		d.emptyStreamCount++
	} else {
		d.emptyStreamCount = 0
	}
	return events, nil
}

// Finish signals input half-close and yields the trailing StreamEnd.
func (d *StreamDecoder) Finish() []LogicalEvent {
	if d.terminal {
		return nil
	}
	d.terminal = true
	return []LogicalEvent{{Kind: EventStreamEnd}}
}

func (d *StreamDecoder) appendEnvelopeEvents(events []LogicalEvent, envelope *aiserver.StreamUnifiedChatResponseWithTools) []LogicalEvent {
	if call := envelope.ClientSideToolV2Call; call != nil {
		return d.appendToolCallEvents(events, call)
	}

	resp := envelope.StreamUnifiedChatResponse
	if resp == nil {
		return events
	}

	// Field order within a chunk: thinking can precede content and the
	// translators must not assume otherwise.
	if th := resp.Thinking; th != nil && (th.Text != "" || th.Signature != "" || th.RedactedThinking != "") {
		if d.firstThinkingAt == 0 {
			d.firstThinkingAt = time.Since(d.started)
		}
		events = append(events, LogicalEvent{
			Kind: EventThinking,
			Thinking: &ThinkingPayload{
				Text:      th.Text,
				Signature: th.Signature,
				Redacted:  th.RedactedThinking,
			},
		})
	}

	if resp.Text != "" {
		if d.firstContentAt == 0 {
			d.firstContentAt = time.Since(d.started)
		}
		events = append(events, LogicalEvent{Kind: EventContent, Text: resp.Text})
	}

	if cit := resp.WebCitation; cit != nil && len(cit.References) > 0 {
		events = append(events, LogicalEvent{Kind: EventWebReferences, WebReferences: cit.References})
	}

	return events
}

func (d *StreamDecoder) appendToolCallEvents(events []LogicalEvent, call *aiserver.ClientSideToolV2Call) []LogicalEvent {
	d.sawToolCall = true

	payload := func() *ToolCallPayload {
		p := &ToolCallPayload{
			ID:        call.ToolCallID,
			Name:      call.Name,
			ToolIndex: call.ToolIndex,
		}
		if call.ModelCallID != nil {
			p.ModelCallID = *call.ModelCallID
		}
		return p
	}

	if call.ToolCallID != d.activeToolCallID {
		d.activeToolCallID = call.ToolCallID
		events = append(events, LogicalEvent{Kind: EventToolCallStart, ToolCall: payload()})
	}

	if call.RawArgs != "" {
		p := payload()
		p.PartialJSON = call.RawArgs
		events = append(events, LogicalEvent{Kind: EventToolCallArgs, ToolCall: p})
	}

	if call.IsLastMessage {
		d.activeToolCallID = ""
		events = append(events, LogicalEvent{Kind: EventToolCallEnd, ToolCall: payload()})
	}

	return events
}
