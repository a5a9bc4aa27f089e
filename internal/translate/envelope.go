// Package translate converts the two public chat APIs into the
// upstream's Protobuf request envelope and back. Both surfaces converge
// on the same intermediate conversation shape before encoding.
package translate

import (
	"strings"

	"github.com/eternisai/cursor-bridge/internal/aiserver"
	"github.com/eternisai/cursor-bridge/internal/clock"
	"github.com/eternisai/cursor-bridge/internal/config"
	"github.com/google/uuid"
)

// placeholder is the content of the synthetic messages inserted to keep
// roles strictly alternating. The upstream treats a single space as an
// intentionally empty turn.
const placeholder = " "

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// toolInteraction records a completed tool exchange attached to an
// assistant turn.
type toolInteraction struct {
	ToolCallID  string
	ModelCallID string
	Name        string
	Arguments   string
	Result      string
	IsError     bool
}

// pendingToolResult is a tool outcome answering the upstream's most
// recent tool call; it rides the envelope's result branch instead of
// the conversation.
type pendingToolResult struct {
	ToolCallID  string
	ModelCallID string
	ToolIndex   *uint32
	Name        string
	Result      string
	IsError     bool
}

// chatMessage is the surface-independent form of one conversation turn.
type chatMessage struct {
	role         string
	text         string
	images       []aiserver.ImageProto
	interactions []toolInteraction
	thinking     *aiserver.Thinking
}

// normalizeConversation enforces the upstream's strict user/assistant
// alternation:
//
//  1. only user and assistant turns survive,
//  2. an empty conversation becomes a single placeholder user turn,
//  3. a leading assistant turn gets a placeholder user before it,
//  4. equal adjacent roles get a placeholder of the opposite role
//     between them,
//  5. a trailing assistant turn gets a placeholder user after it.
func normalizeConversation(msgs []chatMessage) []chatMessage {
	filtered := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.role == roleUser || m.role == roleAssistant {
			filtered = append(filtered, m)
		}
	}

	if len(filtered) == 0 {
		return []chatMessage{{role: roleUser, text: placeholder}}
	}

	out := make([]chatMessage, 0, len(filtered)+2)
	if filtered[0].role == roleAssistant {
		out = append(out, chatMessage{role: roleUser, text: placeholder})
	}
	for _, m := range filtered {
		if len(out) > 0 && out[len(out)-1].role == m.role {
			opposite := roleUser
			if m.role == roleUser {
				opposite = roleAssistant
			}
			out = append(out, chatMessage{role: opposite, text: placeholder})
		}
		out = append(out, m)
	}
	if out[len(out)-1].role == roleAssistant {
		out = append(out, chatMessage{role: roleUser, text: placeholder})
	}
	return out
}

// renderInstructions substitutes the clock into the default instruction
// template.
func renderInstructions(template string) string {
	return strings.ReplaceAll(template, "{{currentDateTime}}", clock.LocalTimestamp())
}

// buildInput carries everything the envelope builder needs besides the
// conversation itself.
type buildInput struct {
	model    Model
	system   string
	messages []chatMessage
	tools    []aiserver.McpTool
	pending  *pendingToolResult
	settings *config.Settings
	defaults string // default instruction template
}

// buildEnvelope assembles the upstream request. A pending tool result
// takes the envelope's result branch; everything else becomes a chat
// request with a parallel headers-only list.
func buildEnvelope(in buildInput) *aiserver.StreamUnifiedChatRequestWithTools {
	if in.pending != nil {
		return &aiserver.StreamUnifiedChatRequestWithTools{
			ClientSideToolV2Result: buildToolResultBranch(in.pending),
		}
	}

	agentic := len(in.tools) > 0

	conversation := make([]aiserver.ConversationMessage, 0, len(in.messages))
	headers := make([]aiserver.ConversationMessageHeader, 0, len(in.messages))
	for _, m := range in.messages {
		msg := conversationMessage(m, agentic)
		headers = append(headers, aiserver.ConversationMessageHeader{
			BubbleID: msg.BubbleID,
			Type:     msg.Type,
		})
		conversation = append(conversation, msg)
	}

	system := in.system
	if system == "" {
		system = renderInstructions(in.defaults)
	}

	modelName := in.model.Base
	details := &aiserver.ModelDetails{ModelName: &modelName}
	if in.settings.SlowPoolEnabled {
		t := true
		details.EnableSlowPool = &t
	}
	if in.model.Max {
		t := true
		details.MaxMode = &t
	}

	mode := aiserver.UnifiedModeChat
	modeName := "chat"
	if agentic {
		mode = aiserver.UnifiedModeAgent
		modeName = "agent"
	}

	req := &aiserver.StreamUnifiedChatRequest{
		Conversation:                conversation,
		FullConversationHeadersOnly: headers,
		ExplicitContext:             &aiserver.ExplicitContext{Context: system},
		ModelDetails:                details,
		IsChat:                      !agentic,
		IsAgentic:                   agentic,
		ConversationID:              uuid.NewString(),
		EnvironmentInfo:             environmentInfo(in.settings),
		McpTools:                    in.tools,
		UnifiedMode:                 &mode,
		UnifiedModeName:             &modeName,
	}

	if agentic {
		req.SupportedTools = []aiserver.ClientSideToolV2{aiserver.ClientSideToolV2Mcp}
	}
	if in.model.Thinking {
		level := aiserver.ThinkingLevelHigh
		req.ThinkingLevel = &level
	}
	if in.model.Online {
		useWeb := "full_search"
		req.UseWeb = &useWeb
	}

	return &aiserver.StreamUnifiedChatRequestWithTools{StreamUnifiedChatRequest: req}
}

func conversationMessage(m chatMessage, agentic bool) aiserver.ConversationMessage {
	msg := aiserver.ConversationMessage{
		Text:      m.text,
		BubbleID:  uuid.NewString(),
		Images:    m.images,
		IsAgentic: agentic,
		Thinking:  m.thinking,
	}
	if m.role == roleAssistant {
		msg.Type = aiserver.MessageTypeAi
	} else {
		msg.Type = aiserver.MessageTypeHuman
	}
	for i, it := range m.interactions {
		msg.ToolResults = append(msg.ToolResults, toolResultEntry(it, uint32(i)))
	}
	return msg
}

func toolResultEntry(it toolInteraction, index uint32) aiserver.ToolResult {
	res := aiserver.ToolResult{
		ToolCallID: it.ToolCallID,
		ToolName:   it.Name,
		ToolIndex:  index,
		RawArgs:    it.Arguments,
	}
	if it.ModelCallID != "" {
		id := it.ModelCallID
		res.ModelCallID = &id
	}
	inner := &aiserver.ClientSideToolV2Result{
		Tool:       aiserver.ClientSideToolV2Mcp,
		ToolCallID: it.ToolCallID,
	}
	if it.ModelCallID != "" {
		id := it.ModelCallID
		inner.ModelCallID = &id
	}
	if it.IsError {
		inner.Error = &aiserver.ToolResultError{ModelVisibleErrorMessage: it.Result}
	} else {
		inner.McpResult = &aiserver.McpResult{SelectedTool: it.Name, Result: it.Result}
	}
	res.Result = inner
	return res
}

func buildToolResultBranch(p *pendingToolResult) *aiserver.ClientSideToolV2Result {
	res := &aiserver.ClientSideToolV2Result{
		Tool:       aiserver.ClientSideToolV2Mcp,
		ToolCallID: p.ToolCallID,
		ToolIndex:  p.ToolIndex,
	}
	if p.ModelCallID != "" {
		id := p.ModelCallID
		res.ModelCallID = &id
	}
	if p.IsError {
		res.Error = &aiserver.ToolResultError{ModelVisibleErrorMessage: p.Result}
	} else {
		res.McpResult = &aiserver.McpResult{SelectedTool: p.Name, Result: p.Result}
	}
	return res
}

func environmentInfo(s *config.Settings) *aiserver.EnvironmentInfo {
	arch := "x64"
	if s.EmulatedPlatform == config.PlatformMacOS {
		arch = "arm64"
	}
	return &aiserver.EnvironmentInfo{
		ExthostPlatform: s.EmulatedPlatform.ExthostPlatform(),
		ExthostArch:     arch,
		LocalTimestamp:  clock.LocalTimestamp(),
		CursorVersion:   s.CursorClientVersion,
	}
}

// CompositeToolID joins a tool call id with its model call id for
// transport through the public surfaces, and ParseCompositeToolID
// recovers the pair.
func CompositeToolID(toolCallID, modelCallID string) string {
	if modelCallID == "" {
		return toolCallID
	}
	return toolCallID + ":" + modelCallID
}

func ParseCompositeToolID(composite string) (toolCallID, modelCallID string) {
	if i := strings.LastIndexByte(composite, ':'); i >= 0 {
		return composite[:i], composite[i+1:]
	}
	return composite, ""
}
