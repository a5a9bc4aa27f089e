package translate

import (
	"context"
	"strings"

	"github.com/eternisai/cursor-bridge/internal/aiserver"
)

// customToolServer is the MCP server name every client-supplied tool is
// registered under.
const customToolServer = "custom"

// EncodeAnthropic validates and encodes an Anthropic messages request.
func (t *Translator) EncodeAnthropic(ctx context.Context, req *AnthropicMessagesRequest, model Model) (*aiserver.StreamUnifiedChatRequestWithTools, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyMessages
	}

	var msgs []chatMessage
	var pending *pendingToolResult
	open := map[string]*toolInteraction{}

	for i, m := range req.Messages {
		if m.Role != roleUser && m.Role != roleAssistant {
			continue
		}

		msg := chatMessage{role: m.Role}
		var texts []string

		if m.Content.Blocks == nil {
			msg.text = m.Content.Text
			msgs = append(msgs, msg)
			continue
		}

		for _, block := range m.Content.Blocks {
			switch block.Type {
			case "text":
				if block.Text != "" {
					texts = append(texts, block.Text)
				}
			case "thinking":
				msg.thinking = &aiserver.Thinking{Text: block.Thinking, Signature: block.Signature}
			case "image":
				img, err := t.anthropicImage(ctx, block.Source)
				if err != nil {
					return nil, err
				}
				msg.images = append(msg.images, img)
			case "tool_use":
				toolCallID, modelCallID := ParseCompositeToolID(block.ID)
				msg.interactions = append(msg.interactions, toolInteraction{
					ToolCallID:  toolCallID,
					ModelCallID: modelCallID,
					Name:        block.Name,
					Arguments:   string(block.Input),
				})
			case "tool_result":
				result := flattenToolResult(block)
				if i == len(req.Messages)-1 {
					toolCallID, modelCallID := ParseCompositeToolID(block.ToolUseID)
					name := ""
					if it := open[block.ToolUseID]; it != nil {
						name = it.Name
					}
					pending = &pendingToolResult{
						ToolCallID:  toolCallID,
						ModelCallID: modelCallID,
						Name:        name,
						Result:      result,
						IsError:     block.IsError,
					}
					continue
				}
				if it := open[block.ToolUseID]; it != nil {
					it.Result = result
					it.IsError = block.IsError
				}
			}
		}

		msg.text = strings.Join(texts, "\n")
		if m.Role == roleAssistant {
			for ci := range msg.interactions {
				it := &msg.interactions[ci]
				open[CompositeToolID(it.ToolCallID, it.ModelCallID)] = it
			}
		}
		msgs = append(msgs, msg)
	}

	if req.Thinking != nil && req.Thinking.Type == "enabled" {
		model = model.WithThinking()
	}

	in := buildInput{
		model:    model,
		system:   req.System.Joined(),
		messages: normalizeConversation(msgs),
		tools:    anthropicTools(req.Tools),
		pending:  pending,
		settings: t.settings,
		defaults: t.defaults,
	}
	return buildEnvelope(in), nil
}

func (t *Translator) anthropicImage(ctx context.Context, src *AnthropicImageSource) (aiserver.ImageProto, error) {
	if src == nil {
		return aiserver.ImageProto{}, inputErrorf("invalid_image_url", "image block is missing its source")
	}
	switch src.Type {
	case "base64":
		return t.images.FromBase64(src.Data)
	case "url":
		return t.images.FromURL(ctx, src.URL)
	default:
		return aiserver.ImageProto{}, inputErrorf("invalid_image_url", "unsupported image source type %q", src.Type)
	}
}

// anthropicTools maps public tool definitions onto the upstream's
// single "custom" MCP server.
func anthropicTools(tools []AnthropicTool) []aiserver.McpTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]aiserver.McpTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, aiserver.McpTool{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  string(tool.InputSchema),
			ServerName:  customToolServer,
		})
	}
	return out
}

func flattenToolResult(block AnthropicContentBlock) string {
	if block.Content == nil {
		return ""
	}
	if block.Content.Blocks == nil {
		return block.Content.Text
	}
	var texts []string
	for _, b := range block.Content.Blocks {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}
