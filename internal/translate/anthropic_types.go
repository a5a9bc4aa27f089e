package translate

import (
	"encoding/json"
	"fmt"
)

// Anthropic surface request types.

type AnthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    AnthropicSystem    `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
	Thinking  *AnthropicThinking `json:"thinking,omitempty"`
	Tools     []AnthropicTool    `json:"tools,omitempty"`
}

type AnthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type AnthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// AnthropicSystem is a plain string or an array of text blocks.
type AnthropicSystem struct {
	Text   string
	Blocks []AnthropicContentBlock
}

func (s *AnthropicSystem) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Text)
	}
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &s.Blocks)
	}
	if string(data) == "null" {
		return nil
	}
	return fmt.Errorf("translate: system must be a string or an array")
}

func (s AnthropicSystem) MarshalJSON() ([]byte, error) {
	if s.Blocks != nil {
		return json.Marshal(s.Blocks)
	}
	return json.Marshal(s.Text)
}

// Joined flattens the system prompt into one string.
func (s *AnthropicSystem) Joined() string {
	if s.Blocks == nil {
		return s.Text
	}
	out := ""
	for _, b := range s.Blocks {
		if b.Type == "text" && b.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}

type AnthropicMessage struct {
	Role    string               `json:"role"`
	Content AnthropicContent     `json:"content"`
}

// AnthropicContent is a string or an array of content blocks.
type AnthropicContent struct {
	Text   string
	Blocks []AnthropicContentBlock
}

func (c *AnthropicContent) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &c.Blocks)
	}
	if string(data) == "null" {
		return nil
	}
	return fmt.Errorf("translate: content must be a string or an array")
}

func (c AnthropicContent) MarshalJSON() ([]byte, error) {
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

type AnthropicContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// image
	Source *AnthropicImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string              `json:"tool_use_id,omitempty"`
	Content   *AnthropicContent   `json:"content,omitempty"`
	IsError   bool                `json:"is_error,omitempty"`
}

type AnthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Anthropic surface response types (non-streaming Message and the SSE
// event payloads).

type AnthropicResponseMessage struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Model        string                  `json:"model"`
	Content      []AnthropicContentBlock `json:"content"`
	StopReason   *string                 `json:"stop_reason"`
	StopSequence *string                 `json:"stop_sequence"`
	Usage        AnthropicUsage          `json:"usage"`
}

type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
