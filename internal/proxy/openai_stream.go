package proxy

import (
	"encoding/json"
	"strings"

	"github.com/eternisai/cursor-bridge/internal/aiserver"
	"github.com/eternisai/cursor-bridge/internal/errors"
	"github.com/eternisai/cursor-bridge/internal/translate"
	"github.com/eternisai/cursor-bridge/internal/upstream"
)

const (
	objectChatCompletion      = "chat.completion"
	objectChatCompletionChunk = "chat.completion.chunk"

	thinkingTagOpen  = "<think>"
	thinkingTagClose = "</think>"
)

var jsonNull = json.RawMessage("null")

type openAIChunk struct {
	ID      string                   `json:"id"`
	Object  string                   `json:"object"`
	Created int64                    `json:"created"`
	Model   string                   `json:"model,omitempty"`
	Choices []translate.OpenAIChoice `json:"choices"`
	Usage   json.RawMessage          `json:"usage,omitempty"`
}

// sseSink receives fully framed SSE bodies. The handler backs it with
// the client connection; tests back it with a slice.
type sseSink interface {
	WriteEvent(payload []byte) error
}

// openAIStream emits chat.completion.chunk events,
// thinking wrapped in literal think tags, terminal [DONE].
type openAIStream struct {
	sink         sseSink
	responseID   string
	model        string
	created      int64
	includeUsage bool

	started        bool // role/model already emitted
	inThinking     bool // an open think tag awaits its close
	sawToolCall    bool
	toolIndex      int
	trimmed        bool // leading newline trim already applied
	includeWebRefs bool
}

func newOpenAIStream(sink sseSink, responseID, model string, created int64, includeUsage, includeWebRefs bool) *openAIStream {
	return &openAIStream{
		sink:           sink,
		responseID:     responseID,
		model:          model,
		created:        created,
		includeUsage:   includeUsage,
		includeWebRefs: includeWebRefs,
	}
}

func (st *openAIStream) emit(chunk openAIChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return st.sink.WriteEvent(payload)
}

func (st *openAIStream) deltaChunk(delta translate.OpenAIDelta, finish *string) openAIChunk {
	chunk := openAIChunk{
		ID:      st.responseID,
		Object:  objectChatCompletionChunk,
		Created: st.created,
		Choices: []translate.OpenAIChoice{{Index: 0, Delta: &delta, FinishReason: finish}},
	}
	if st.includeUsage {
		chunk.Usage = jsonNull
	}
	return chunk
}

// first stamps role and model onto the first emitted delta.
func (st *openAIStream) first(delta *translate.OpenAIDelta, chunk *openAIChunk) {
	if !st.started {
		st.started = true
		delta.Role = "assistant"
		chunk.Model = st.model
	}
}

func (st *openAIStream) contentChunk(text string) error {
	if !st.trimmed {
		st.trimmed = true
		text = strings.TrimPrefix(text, "\n\n")
	}
	delta := translate.OpenAIDelta{Content: &text}
	chunk := st.deltaChunk(delta, nil)
	st.first(chunk.Choices[0].Delta, &chunk)
	return st.emit(chunk)
}

// tagChunk emits a literal think tag as content.
func (st *openAIStream) tagChunk(tag string) error {
	delta := translate.OpenAIDelta{Content: &tag}
	chunk := st.deltaChunk(delta, nil)
	st.first(chunk.Choices[0].Delta, &chunk)
	return st.emit(chunk)
}

// closeThinking emits the closing tag if a thinking run is open.
func (st *openAIStream) closeThinking() error {
	if !st.inThinking {
		return nil
	}
	st.inThinking = false
	tag := thinkingTagClose
	return st.emit(st.deltaChunk(translate.OpenAIDelta{Content: &tag}, nil))
}

// Handle translates one logical event into zero or more SSE chunks.
func (st *openAIStream) Handle(ev upstream.LogicalEvent) error {
	switch ev.Kind {
	case upstream.EventContent:
		if err := st.closeThinking(); err != nil {
			return err
		}
		return st.contentChunk(ev.Text)

	case upstream.EventThinking:
		if ev.Thinking == nil || ev.Thinking.Text == "" {
			return nil
		}
		if !st.inThinking {
			st.inThinking = true
			if err := st.tagChunk(thinkingTagOpen); err != nil {
				return err
			}
		}
		return st.contentChunk(ev.Thinking.Text)

	case upstream.EventToolCallStart:
		if err := st.closeThinking(); err != nil {
			return err
		}
		st.sawToolCall = true
		delta := translate.OpenAIDelta{ToolCalls: []translate.OpenAIDeltaToolCall{{
			Index: st.toolIndex,
			ID:    translate.CompositeToolID(ev.ToolCall.ID, ev.ToolCall.ModelCallID),
			Type:  "function",
			Function: &translate.OpenAIToolCallFunction{
				Name: ev.ToolCall.Name,
			},
		}}}
		chunk := st.deltaChunk(delta, nil)
		st.first(chunk.Choices[0].Delta, &chunk)
		return st.emit(chunk)

	case upstream.EventToolCallArgs:
		delta := translate.OpenAIDelta{ToolCalls: []translate.OpenAIDeltaToolCall{{
			Index:    st.toolIndex,
			Function: &translate.OpenAIToolCallFunction{Arguments: ev.ToolCall.PartialJSON},
		}}}
		return st.emit(st.deltaChunk(delta, nil))

	case upstream.EventToolCallEnd:
		st.toolIndex++
		return nil

	case upstream.EventWebReferences:
		if !st.includeWebRefs || len(ev.WebReferences) == 0 {
			return nil
		}
		if err := st.closeThinking(); err != nil {
			return err
		}
		return st.contentChunk(formatWebReferences(ev.WebReferences))

	case upstream.EventStreamEnd:
		if err := st.closeThinking(); err != nil {
			return err
		}
		finish := "stop"
		if st.sawToolCall {
			finish = "tool_calls"
		}
		return st.emit(st.deltaChunk(translate.OpenAIDelta{}, &finish))

	case upstream.EventUpstreamError:
		return st.HandleError(ev.Err)
	}
	return nil
}

// HandleError serializes the canonical error as one final data frame;
// the caller then sends [DONE] and closes.
func (st *openAIStream) HandleError(cerr *errors.Canonical) error {
	payload, err := json.Marshal(cerr.OpenAI())
	if err != nil {
		return err
	}
	return st.sink.WriteEvent(payload)
}

// FinishUsage emits the trailing usage chunk requested via
// stream_options.include_usage.
func (st *openAIStream) FinishUsage(usage *translate.OpenAIUsage) error {
	if !st.includeUsage || usage == nil {
		return nil
	}
	raw, err := json.Marshal(usage)
	if err != nil {
		return err
	}
	return st.emit(openAIChunk{
		ID:      st.responseID,
		Object:  objectChatCompletionChunk,
		Created: st.created,
		Choices: []translate.OpenAIChoice{},
		Usage:   raw,
	})
}

// SawToolCall reports whether a tool call crossed this stream.
func (st *openAIStream) SawToolCall() bool { return st.sawToolCall }

// formatWebReferences renders citations as markdown links, the shape
// the upstream itself uses when inlining references.
func formatWebReferences(refs []aiserver.WebReference) string {
	var b strings.Builder
	b.WriteString("\n\nWebReferences:\n")
	for _, ref := range refs {
		b.WriteString("- [")
		b.WriteString(ref.Title)
		b.WriteString("](")
		b.WriteString(ref.URL)
		b.WriteString(")\n")
	}
	return b.String()
}
