package translate

import (
	"context"
	"testing"

	"github.com/eternisai/cursor-bridge/internal/aiserver"
	"github.com/eternisai/cursor-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTranslator(policy config.VisionAbility) *Translator {
	settings := &config.Settings{
		VisionAbility:       policy,
		EmulatedPlatform:    config.PlatformMacOS,
		CursorClientVersion: "1.3.9",
	}
	return NewTranslator(settings, NewImageHandler(policy, nil), "Be helpful.\nThe current date is {{currentDateTime}}")
}

func TestEncodeOpenAISimple(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	req := &OpenAIChatRequest{
		Model:    "x-1",
		Messages: []OpenAIMessage{{Role: "user", Content: OpenAIContent{Text: "ping"}}},
	}

	envelope, err := tr.EncodeOpenAI(context.Background(), req, ParseModel("x-1"))
	require.NoError(t, err)
	chat := envelope.StreamUnifiedChatRequest
	require.NotNil(t, chat)
	require.Nil(t, envelope.ClientSideToolV2Result)

	require.Len(t, chat.Conversation, 1)
	msg := chat.Conversation[0]
	assert.Equal(t, aiserver.MessageTypeHuman, msg.Type)
	assert.Equal(t, "ping", msg.Text)
	assert.NotEmpty(t, msg.BubbleID)

	require.Len(t, chat.FullConversationHeadersOnly, 1)
	assert.Equal(t, msg.BubbleID, chat.FullConversationHeadersOnly[0].BubbleID)
	assert.Equal(t, msg.Type, chat.FullConversationHeadersOnly[0].Type)

	require.NotNil(t, chat.ModelDetails)
	assert.Equal(t, "x-1", *chat.ModelDetails.ModelName)
	assert.True(t, chat.IsChat)
	assert.False(t, chat.IsAgentic)
	require.NotNil(t, chat.UnifiedMode)
	assert.Equal(t, aiserver.UnifiedModeChat, *chat.UnifiedMode)
	assert.Empty(t, chat.SupportedTools)

	// No system message: the default instructions fill the context, with
	// the clock substituted.
	require.NotNil(t, chat.ExplicitContext)
	assert.Contains(t, chat.ExplicitContext.Context, "Be helpful.")
	assert.NotContains(t, chat.ExplicitContext.Context, "{{currentDateTime}}")
}

func TestEncodeOpenAIRejectsEmptyMessages(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	_, err := tr.EncodeOpenAI(context.Background(), &OpenAIChatRequest{Model: "x-1"}, ParseModel("x-1"))
	assert.ErrorIs(t, err, ErrEmptyMessages)
}

func TestEncodeOpenAISystemCollection(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	req := &OpenAIChatRequest{
		Model: "x-1",
		Messages: []OpenAIMessage{
			{Role: "system", Content: OpenAIContent{Text: "one"}},
			{Role: "user", Content: OpenAIContent{Text: "hi"}},
			{Role: "developer", Content: OpenAIContent{Text: "two"}},
		},
	}

	envelope, err := tr.EncodeOpenAI(context.Background(), req, ParseModel("x-1"))
	require.NoError(t, err)
	chat := envelope.StreamUnifiedChatRequest

	assert.Equal(t, "one\ntwo", chat.ExplicitContext.Context)
	// The upstream never sees a System role.
	for _, m := range chat.Conversation {
		assert.Contains(t, []aiserver.MessageType{aiserver.MessageTypeHuman, aiserver.MessageTypeAi}, m.Type)
	}
}

func TestEncodeOpenAIVariantFlags(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	req := &OpenAIChatRequest{
		Model:    "x-1-thinking-max-online",
		Messages: []OpenAIMessage{{Role: "user", Content: OpenAIContent{Text: "hi"}}},
	}

	envelope, err := tr.EncodeOpenAI(context.Background(), req, ParseModel(req.Model))
	require.NoError(t, err)
	chat := envelope.StreamUnifiedChatRequest

	require.NotNil(t, chat.ThinkingLevel)
	assert.Equal(t, aiserver.ThinkingLevelHigh, *chat.ThinkingLevel)
	require.NotNil(t, chat.ModelDetails.MaxMode)
	assert.True(t, *chat.ModelDetails.MaxMode)
	require.NotNil(t, chat.UseWeb)
	assert.Equal(t, "x-1", *chat.ModelDetails.ModelName)
}

func TestEncodeOpenAIAgentMode(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	req := &OpenAIChatRequest{
		Model:    "x-1",
		Messages: []OpenAIMessage{{Role: "user", Content: OpenAIContent{Text: "hi"}}},
		Tools: []OpenAITool{{
			Type: "function",
			Function: OpenAIToolFunction{
				Name:       "calc",
				Parameters: []byte(`{"type":"object"}`),
			},
		}},
	}

	envelope, err := tr.EncodeOpenAI(context.Background(), req, ParseModel("x-1"))
	require.NoError(t, err)
	chat := envelope.StreamUnifiedChatRequest

	assert.True(t, chat.IsAgentic)
	assert.False(t, chat.IsChat)
	assert.Equal(t, aiserver.UnifiedModeAgent, *chat.UnifiedMode)
	assert.Equal(t, []aiserver.ClientSideToolV2{aiserver.ClientSideToolV2Mcp}, chat.SupportedTools)
	require.Len(t, chat.McpTools, 1)
	assert.Equal(t, "custom", chat.McpTools[0].ServerName)
	assert.Equal(t, "calc", chat.McpTools[0].Name)
}

// TestEncodeDecodeRoundTrip verifies the normalized conversation
// survives marshal/unmarshal, and that a second encode of the decoded
// conversation is stable.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	tr := testTranslator(config.VisionBase64Only)
	req := &OpenAIChatRequest{
		Model: "x-1",
		Messages: []OpenAIMessage{
			{Role: "assistant", Content: OpenAIContent{Text: "lead"}},
			{Role: "user", Content: OpenAIContent{Text: "one"}},
			{Role: "user", Content: OpenAIContent{Text: "two"}},
		},
	}

	envelope, err := tr.EncodeOpenAI(context.Background(), req, ParseModel("x-1"))
	require.NoError(t, err)

	decoded, err := aiserver.UnmarshalStreamUnifiedChatRequestWithTools(envelope.Marshal())
	require.NoError(t, err)
	chat := decoded.StreamUnifiedChatRequest
	require.NotNil(t, chat)

	want := []struct {
		typ  aiserver.MessageType
		text string
	}{
		{aiserver.MessageTypeHuman, placeholder},
		{aiserver.MessageTypeAi, "lead"},
		{aiserver.MessageTypeHuman, "one"},
		{aiserver.MessageTypeAi, placeholder},
		{aiserver.MessageTypeHuman, "two"},
	}
	require.Len(t, chat.Conversation, len(want))
	require.Len(t, chat.FullConversationHeadersOnly, len(want))
	for i, w := range want {
		assert.Equal(t, w.typ, chat.Conversation[i].Type, "message %d", i)
		assert.Equal(t, w.text, chat.Conversation[i].Text, "message %d", i)
		assert.Equal(t, chat.Conversation[i].BubbleID, chat.FullConversationHeadersOnly[i].BubbleID)
		assert.Equal(t, w.typ, chat.FullConversationHeadersOnly[i].Type)
	}

	// Round-tripped bytes decode identically.
	again, err := aiserver.UnmarshalStreamUnifiedChatRequestWithTools(decoded.Marshal())
	require.NoError(t, err)
	assert.Equal(t, decoded, again)
}
