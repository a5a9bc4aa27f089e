package aiserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	mode := UnifiedModeAgent
	level := ThinkingLevelHigh
	name := "model-x"
	maxMode := true
	useWeb := "full_search"

	in := &StreamUnifiedChatRequestWithTools{
		StreamUnifiedChatRequest: &StreamUnifiedChatRequest{
			Conversation: []ConversationMessage{
				{
					Text:     "hello",
					Type:     MessageTypeHuman,
					BubbleID: "b1",
					Images: []ImageProto{{
						Data:      []byte{1, 2, 3},
						Dimension: &Dimension{Width: 10, Height: 20},
						UUID:      "256",
					}},
				},
				{
					Text:           " ",
					Type:           MessageTypeAi,
					BubbleID:       "b2",
					SupportedTools: []ClientSideToolV2{ClientSideToolV2Mcp},
				},
			},
			FullConversationHeadersOnly: []ConversationMessageHeader{
				{BubbleID: "b1", Type: MessageTypeHuman},
				{BubbleID: "b2", Type: MessageTypeAi},
			},
			ExplicitContext: &ExplicitContext{Context: "be nice"},
			ModelDetails:    &ModelDetails{ModelName: &name, MaxMode: &maxMode},
			UseWeb:          &useWeb,
			IsChat:          false,
			IsAgentic:       true,
			ConversationID:  "conv-1",
			EnvironmentInfo: &EnvironmentInfo{
				ExthostPlatform: "darwin",
				ExthostArch:     "arm64",
				LocalTimestamp:  "2024-01-01T00:00:00.000Z",
				CursorVersion:   "1.3.9",
			},
			SupportedTools: []ClientSideToolV2{ClientSideToolV2Mcp},
			McpTools: []McpTool{{
				Name:        "calc",
				Description: "adds",
				Parameters:  `{"type":"object"}`,
				ServerName:  "custom",
			}},
			UnifiedMode:   &mode,
			ThinkingLevel: &level,
		},
	}

	out, err := UnmarshalStreamUnifiedChatRequestWithTools(in.Marshal())
	require.NoError(t, err)
	chat := out.StreamUnifiedChatRequest
	require.NotNil(t, chat)

	require.Len(t, chat.Conversation, 2)
	assert.Equal(t, "hello", chat.Conversation[0].Text)
	assert.Equal(t, MessageTypeHuman, chat.Conversation[0].Type)
	require.Len(t, chat.Conversation[0].Images, 1)
	assert.Equal(t, []byte{1, 2, 3}, chat.Conversation[0].Images[0].Data)
	require.NotNil(t, chat.Conversation[0].Images[0].Dimension)
	assert.EqualValues(t, 10, chat.Conversation[0].Images[0].Dimension.Width)
	assert.Equal(t, " ", chat.Conversation[1].Text)
	assert.Equal(t, []ClientSideToolV2{ClientSideToolV2Mcp}, chat.Conversation[1].SupportedTools)

	require.Len(t, chat.FullConversationHeadersOnly, 2)
	assert.Equal(t, "b1", chat.FullConversationHeadersOnly[0].BubbleID)

	assert.Equal(t, "be nice", chat.ExplicitContext.Context)
	assert.Equal(t, "model-x", *chat.ModelDetails.ModelName)
	assert.True(t, *chat.ModelDetails.MaxMode)
	assert.Equal(t, "full_search", *chat.UseWeb)
	assert.True(t, chat.IsAgentic)
	assert.False(t, chat.IsChat)
	assert.Equal(t, "conv-1", chat.ConversationID)
	assert.Equal(t, "darwin", chat.EnvironmentInfo.ExthostPlatform)
	assert.Equal(t, UnifiedModeAgent, *chat.UnifiedMode)
	assert.Equal(t, ThinkingLevelHigh, *chat.ThinkingLevel)
	require.Len(t, chat.McpTools, 1)
	assert.Equal(t, "calc", chat.McpTools[0].Name)
}

func TestToolResultBranchRoundTrip(t *testing.T) {
	idx := uint32(0)
	modelCallID := "m1"
	in := &StreamUnifiedChatRequestWithTools{
		ClientSideToolV2Result: &ClientSideToolV2Result{
			Tool:        ClientSideToolV2Mcp,
			ToolCallID:  "t1",
			ModelCallID: &modelCallID,
			ToolIndex:   &idx,
			McpResult:   &McpResult{SelectedTool: "calc", Result: "3"},
		},
	}

	out, err := UnmarshalStreamUnifiedChatRequestWithTools(in.Marshal())
	require.NoError(t, err)
	require.Nil(t, out.StreamUnifiedChatRequest)
	res := out.ClientSideToolV2Result
	require.NotNil(t, res)
	assert.Equal(t, ClientSideToolV2Mcp, res.Tool)
	assert.Equal(t, "t1", res.ToolCallID)
	assert.Equal(t, "m1", *res.ModelCallID)
	require.NotNil(t, res.ToolIndex)
	assert.EqualValues(t, 0, *res.ToolIndex)
	assert.Equal(t, "3", res.McpResult.Result)
}

func TestZeroToolIndexSurvives(t *testing.T) {
	// tool_index 0 is a meaningful value and must not be dropped by
	// zero-elision when explicitly set.
	idx := uint32(0)
	in := &StreamUnifiedChatRequestWithTools{
		ClientSideToolV2Result: &ClientSideToolV2Result{
			Tool:       ClientSideToolV2Mcp,
			ToolCallID: "t",
			ToolIndex:  &idx,
		},
	}
	out, err := UnmarshalStreamUnifiedChatRequestWithTools(in.Marshal())
	require.NoError(t, err)
	require.NotNil(t, out.ClientSideToolV2Result.ToolIndex)
}

func TestUnknownFieldsSkipped(t *testing.T) {
	// A payload with fields this codec does not model still decodes.
	in := &StreamUnifiedChatRequestWithTools{
		StreamUnifiedChatRequest: &StreamUnifiedChatRequest{
			Conversation: []ConversationMessage{{Text: "x", Type: MessageTypeHuman, BubbleID: "b"}},
			IsChat:       true,
		},
	}
	raw := in.Marshal()
	// Append an unknown top-level varint field (tag 99).
	raw = append(raw, 0x98, 0x06, 0x2A)

	out, err := UnmarshalStreamUnifiedChatRequestWithTools(raw)
	require.NoError(t, err)
	require.NotNil(t, out.StreamUnifiedChatRequest)
	assert.Equal(t, "x", out.StreamUnifiedChatRequest.Conversation[0].Text)
}

func TestAvailableModelsResponseDecode(t *testing.T) {
	// Fabricate a response with the marshal helpers' building blocks.
	var model []byte
	model = appendString(model, 1, "claude-4.5-sonnet")
	model = appendBool(model, 2, true)
	var body []byte
	body = appendMessage(body, 2, model)

	parsed, err := UnmarshalAvailableModelsResponse(body)
	require.NoError(t, err)
	require.Len(t, parsed.Models, 1)
	assert.Equal(t, "claude-4.5-sonnet", parsed.Models[0].Name)
	assert.True(t, parsed.Models[0].DefaultOn)
}

func TestDryRunResponseDecode(t *testing.T) {
	var tc []byte
	tc = appendInt32(tc, 2, 1234)
	var body []byte
	body = appendMessage(body, 5, tc)

	parsed, err := UnmarshalGetPromptDryRunResponse(body)
	require.NoError(t, err)
	require.NotNil(t, parsed.FullConversationTokenCount)
	require.NotNil(t, parsed.FullConversationTokenCount.NumTokens)
	assert.EqualValues(t, 1234, *parsed.FullConversationTokenCount.NumTokens)
}
