package translate

import (
	"context"
	"strings"

	"github.com/eternisai/cursor-bridge/internal/aiserver"
	"github.com/eternisai/cursor-bridge/internal/config"
)

// Translator converts public surface requests into upstream envelopes.
// One translator is built per request so attachment ids and settings
// snapshots stay request-scoped.
type Translator struct {
	settings *config.Settings
	images   *ImageHandler
	defaults string
}

func NewTranslator(settings *config.Settings, images *ImageHandler, defaultInstructions string) *Translator {
	return &Translator{settings: settings, images: images, defaults: defaultInstructions}
}

// EncodeOpenAI validates and encodes an OpenAI chat request. The
// returned envelope is not yet framed.
func (t *Translator) EncodeOpenAI(ctx context.Context, req *OpenAIChatRequest, model Model) (*aiserver.StreamUnifiedChatRequestWithTools, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyMessages
	}

	var systemParts []string
	var msgs []chatMessage
	var pending *pendingToolResult

	// Open tool interactions, keyed by tool call id, waiting for their
	// role:"tool" answers.
	open := map[string]*toolInteraction{}

	for i, m := range req.Messages {
		switch m.Role {
		case "system", "developer":
			if text := flattenOpenAIText(m.Content); text != "" {
				systemParts = append(systemParts, text)
			}
		case "tool":
			text := flattenOpenAIText(m.Content)
			if i == len(req.Messages)-1 {
				toolCallID, modelCallID := ParseCompositeToolID(m.ToolCallID)
				name := ""
				if it := open[m.ToolCallID]; it != nil {
					name = it.Name
				}
				pending = &pendingToolResult{
					ToolCallID:  toolCallID,
					ModelCallID: modelCallID,
					Name:        name,
					Result:      text,
				}
				continue
			}
			if it := open[m.ToolCallID]; it != nil {
				it.Result = text
			}
		case roleUser, roleAssistant:
			msg, err := t.openAIMessage(ctx, m)
			if err != nil {
				return nil, err
			}
			if m.Role == roleAssistant {
				for ci := range msg.interactions {
					it := &msg.interactions[ci]
					open[CompositeToolID(it.ToolCallID, it.ModelCallID)] = it
				}
			}
			msgs = append(msgs, msg)
		}
	}

	in := buildInput{
		model:    model,
		system:   strings.Join(systemParts, "\n"),
		messages: normalizeConversation(msgs),
		tools:    openAITools(req.Tools),
		pending:  pending,
		settings: t.settings,
		defaults: t.defaults,
	}
	return buildEnvelope(in), nil
}

func (t *Translator) openAIMessage(ctx context.Context, m OpenAIMessage) (chatMessage, error) {
	msg := chatMessage{role: m.Role}

	if m.Content.Parts == nil {
		msg.text = m.Content.Text
	} else {
		var texts []string
		for _, part := range m.Content.Parts {
			switch part.Type {
			case "text":
				if part.Text != "" {
					texts = append(texts, part.Text)
				}
			case "image_url":
				if part.ImageURL == nil {
					return msg, inputErrorf("invalid_image_url", "image_url part is missing its url")
				}
				img, err := t.images.Resolve(ctx, part.ImageURL.URL)
				if err != nil {
					return msg, err
				}
				msg.images = append(msg.images, img)
			}
		}
		msg.text = strings.Join(texts, "\n")
	}

	for _, call := range m.ToolCalls {
		toolCallID, modelCallID := ParseCompositeToolID(call.ID)
		msg.interactions = append(msg.interactions, toolInteraction{
			ToolCallID:  toolCallID,
			ModelCallID: modelCallID,
			Name:        call.Function.Name,
			Arguments:   call.Function.Arguments,
		})
	}
	return msg, nil
}

// openAITools maps function tools onto the upstream's single "custom"
// MCP server.
func openAITools(tools []OpenAITool) []aiserver.McpTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]aiserver.McpTool, 0, len(tools))
	for _, tool := range tools {
		if tool.Type != "" && tool.Type != "function" {
			continue
		}
		out = append(out, aiserver.McpTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  string(tool.Function.Parameters),
			ServerName:  customToolServer,
		})
	}
	return out
}

func flattenOpenAIText(c OpenAIContent) string {
	if c.Parts == nil {
		return c.Text
	}
	var texts []string
	for _, part := range c.Parts {
		if part.Type == "text" && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}
