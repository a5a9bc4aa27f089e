package translate

import (
	"context"
	"testing"

	"github.com/eternisai/cursor-bridge/internal/aiserver"
	"github.com/eternisai/cursor-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAnthropicSimple(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	req := &AnthropicMessagesRequest{
		Model:     "x-1",
		MaxTokens: 100,
		System:    AnthropicSystem{Text: "stay on topic"},
		Messages: []AnthropicMessage{
			{Role: "user", Content: AnthropicContent{Text: "hello"}},
		},
	}

	envelope, err := tr.EncodeAnthropic(context.Background(), req, ParseModel("x-1"))
	require.NoError(t, err)
	chat := envelope.StreamUnifiedChatRequest
	require.NotNil(t, chat)

	assert.Equal(t, "stay on topic", chat.ExplicitContext.Context)
	require.Len(t, chat.Conversation, 1)
	assert.Equal(t, "hello", chat.Conversation[0].Text)
}

func TestEncodeAnthropicThinkingForcesVariant(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	req := &AnthropicMessagesRequest{
		Model:    "x-1",
		Thinking: &AnthropicThinking{Type: "enabled", BudgetTokens: 1024},
		Messages: []AnthropicMessage{
			{Role: "user", Content: AnthropicContent{Text: "hi"}},
		},
	}

	envelope, err := tr.EncodeAnthropic(context.Background(), req, ParseModel("x-1"))
	require.NoError(t, err)
	require.NotNil(t, envelope.StreamUnifiedChatRequest.ThinkingLevel)
	assert.Equal(t, aiserver.ThinkingLevelHigh, *envelope.StreamUnifiedChatRequest.ThinkingLevel)
}

func TestEncodeAnthropicToolMapping(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	schema := `{"type":"object","properties":{"a":{"type":"integer"},"b":{"type":"integer"}}}`
	req := &AnthropicMessagesRequest{
		Model: "x-1",
		Tools: []AnthropicTool{{
			Name:        "calc",
			Description: "adds numbers",
			InputSchema: []byte(schema),
		}},
		Messages: []AnthropicMessage{
			{Role: "user", Content: AnthropicContent{Text: "add 1 and 2"}},
		},
	}

	envelope, err := tr.EncodeAnthropic(context.Background(), req, ParseModel("x-1"))
	require.NoError(t, err)
	chat := envelope.StreamUnifiedChatRequest

	require.Len(t, chat.McpTools, 1)
	tool := chat.McpTools[0]
	assert.Equal(t, "custom", tool.ServerName)
	assert.Equal(t, "calc", tool.Name)
	assert.Equal(t, "adds numbers", tool.Description)
	assert.JSONEq(t, schema, tool.Parameters)
	assert.True(t, chat.IsAgentic)
}

func TestEncodeAnthropicPendingToolResultBranch(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	req := &AnthropicMessagesRequest{
		Model: "x-1",
		Tools: []AnthropicTool{{Name: "calc", InputSchema: []byte(`{}`)}},
		Messages: []AnthropicMessage{
			{Role: "user", Content: AnthropicContent{Text: "add"}},
			{Role: "assistant", Content: AnthropicContent{Blocks: []AnthropicContentBlock{
				{Type: "tool_use", ID: "t1:m1", Name: "calc", Input: []byte(`{"a":1,"b":2}`)},
			}}},
			{Role: "user", Content: AnthropicContent{Blocks: []AnthropicContentBlock{
				{Type: "tool_result", ToolUseID: "t1:m1", Content: &AnthropicContent{Text: "3"}},
			}}},
		},
	}

	envelope, err := tr.EncodeAnthropic(context.Background(), req, ParseModel("x-1"))
	require.NoError(t, err)

	// The trailing tool result rides the result branch, not the chat
	// request.
	require.Nil(t, envelope.StreamUnifiedChatRequest)
	res := envelope.ClientSideToolV2Result
	require.NotNil(t, res)
	assert.Equal(t, aiserver.ClientSideToolV2Mcp, res.Tool)
	assert.Equal(t, "t1", res.ToolCallID)
	require.NotNil(t, res.ModelCallID)
	assert.Equal(t, "m1", *res.ModelCallID)
	require.NotNil(t, res.McpResult)
	assert.Equal(t, "calc", res.McpResult.SelectedTool)
	assert.Equal(t, "3", res.McpResult.Result)
	assert.Nil(t, res.ToolIndex, "tool_index stays absent when the client did not provide one")
}

func TestEncodeAnthropicHistoricalToolResult(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	req := &AnthropicMessagesRequest{
		Model: "x-1",
		Tools: []AnthropicTool{{Name: "calc", InputSchema: []byte(`{}`)}},
		Messages: []AnthropicMessage{
			{Role: "user", Content: AnthropicContent{Text: "add"}},
			{Role: "assistant", Content: AnthropicContent{Blocks: []AnthropicContentBlock{
				{Type: "tool_use", ID: "t1", Name: "calc", Input: []byte(`{"a":1}`)},
			}}},
			{Role: "user", Content: AnthropicContent{Blocks: []AnthropicContentBlock{
				{Type: "tool_result", ToolUseID: "t1", Content: &AnthropicContent{Text: "1"}},
			}}},
			{Role: "assistant", Content: AnthropicContent{Text: "done"}},
			{Role: "user", Content: AnthropicContent{Text: "thanks, again"}},
		},
	}

	envelope, err := tr.EncodeAnthropic(context.Background(), req, ParseModel("x-1"))
	require.NoError(t, err)
	chat := envelope.StreamUnifiedChatRequest
	require.NotNil(t, chat)

	var assistantWithTool *aiserver.ConversationMessage
	for i := range chat.Conversation {
		if len(chat.Conversation[i].ToolResults) > 0 {
			assistantWithTool = &chat.Conversation[i]
		}
	}
	require.NotNil(t, assistantWithTool, "historical tool interaction folded into the conversation")
	tr0 := assistantWithTool.ToolResults[0]
	assert.Equal(t, "t1", tr0.ToolCallID)
	assert.Equal(t, "calc", tr0.ToolName)
	require.NotNil(t, tr0.Result)
	require.NotNil(t, tr0.Result.McpResult)
	assert.Equal(t, "1", tr0.Result.McpResult.Result)
}

func TestEncodeAnthropicVisionDisabled(t *testing.T) {
	// With policy none any image yields an error without dispatching.
	tr := testTranslator(config.VisionNone)
	req := &AnthropicMessagesRequest{
		Model: "x-1",
		Messages: []AnthropicMessage{
			{Role: "user", Content: AnthropicContent{Blocks: []AnthropicContentBlock{
				{Type: "image", Source: &AnthropicImageSource{Type: "base64", MediaType: "image/png", Data: "aGVsbG8="}},
			}}},
		},
	}

	_, err := tr.EncodeAnthropic(context.Background(), req, ParseModel("x-1"))
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "vision_disabled", ierr.Code)
}

func TestEncodeAnthropicURLImageUnderBase64Only(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	req := &AnthropicMessagesRequest{
		Model: "x-1",
		Messages: []AnthropicMessage{
			{Role: "user", Content: AnthropicContent{Blocks: []AnthropicContentBlock{
				{Type: "image", Source: &AnthropicImageSource{Type: "url", URL: "https://example.com/x.png"}},
			}}},
		},
	}

	_, err := tr.EncodeAnthropic(context.Background(), req, ParseModel("x-1"))
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "vision_disabled", ierr.Code)
}
