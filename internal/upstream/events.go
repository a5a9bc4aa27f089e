// Package upstream speaks the proprietary AI service protocol:
// length-delimited Protobuf frames over HTTP/2, bearer auth plus the
// per-credential device headers, and the JSON error frames the service
// emits mid-stream.
package upstream

import (
	"github.com/eternisai/cursor-bridge/internal/aiserver"
	"github.com/eternisai/cursor-bridge/internal/errors"
)

// EventKind discriminates LogicalEvent.
type EventKind int

const (
	EventContent EventKind = iota
	EventThinking
	EventToolCallStart
	EventToolCallArgs
	EventToolCallEnd
	EventWebReferences
	EventStreamEnd
	EventUpstreamError
)

// ThinkingPayload carries one chain-of-thought delta. Exactly one field
// is meaningful per event.
type ThinkingPayload struct {
	Text      string
	Signature string
	Redacted  string
}

// ToolCallPayload describes a streaming tool call.
type ToolCallPayload struct {
	ID          string
	ModelCallID string
	Name        string
	ToolIndex   *uint32
	PartialJSON string
}

// LogicalEvent is one reconstructed event from the upstream stream.
type LogicalEvent struct {
	Kind          EventKind
	Text          string
	Thinking      *ThinkingPayload
	ToolCall      *ToolCallPayload
	WebReferences []aiserver.WebReference
	Err           *errors.Canonical
}
