package aiserver

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal rules follow proto3 semantics: plain scalar fields are emitted
// only when non-default, optional (pointer) fields whenever set, and
// repeated enum fields in packed form.

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendOptString(b []byte, num protowire.Number, v *string) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, *v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendOptBool(b []byte, num protowire.Number, v *bool) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	var x uint64
	if *v {
		x = 1
	}
	return protowire.AppendVarint(b, x)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(uint32(v)))
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendOptUint32(b []byte, num protowire.Number, v *uint32) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*v))
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendToolEnums(b []byte, num protowire.Number, vs []ClientSideToolV2) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(uint32(v)))
	}
	return appendMessage(b, num, packed)
}

func (m *EnvironmentInfo) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.ExthostPlatform)
	b = appendString(b, 2, m.ExthostArch)
	b = appendString(b, 5, m.LocalTimestamp)
	b = appendBytes(b, 7, []byte(m.CursorVersion))
	return b
}

func (m *ExplicitContext) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.Context)
	b = appendString(b, 2, m.RepoContext)
	b = appendString(b, 4, m.ModeSpecificContext)
	return b
}

func (m *ModelDetails) appendTo(b []byte) []byte {
	b = appendOptString(b, 1, m.ModelName)
	b = appendOptBool(b, 5, m.EnableSlowPool)
	b = appendOptBool(b, 8, m.MaxMode)
	return b
}

func (m *Dimension) appendTo(b []byte) []byte {
	b = appendInt32(b, 1, m.Width)
	b = appendInt32(b, 2, m.Height)
	return b
}

func (m *ImageProto) appendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.Data)
	if m.Dimension != nil {
		b = appendMessage(b, 2, m.Dimension.appendTo(nil))
	}
	b = appendString(b, 3, m.UUID)
	return b
}

func (m *ExternalLink) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.URL)
	b = appendString(b, 2, m.UUID)
	return b
}

func (m *WebReference) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.URL)
	b = appendString(b, 2, m.Title)
	b = appendString(b, 3, m.Chunk)
	return b
}

func (m *Thinking) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.Text)
	b = appendString(b, 2, m.Signature)
	b = appendString(b, 3, m.RedactedThinking)
	return b
}

func (m *ConversationMessageHeader) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.BubbleID)
	b = appendOptString(b, 2, m.ServerBubbleID)
	b = appendInt32(b, 3, int32(m.Type))
	return b
}

func (m *ToolResultError) appendTo(b []byte) []byte {
	return appendString(b, 2, m.ModelVisibleErrorMessage)
}

func (m *ToolResult) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.ToolCallID)
	b = appendString(b, 2, m.ToolName)
	b = appendUint32(b, 3, m.ToolIndex)
	b = appendString(b, 5, m.RawArgs)
	if m.Result != nil {
		b = appendMessage(b, 8, m.Result.appendTo(nil))
	}
	if m.Error != nil {
		b = appendMessage(b, 9, m.Error.appendTo(nil))
	}
	for i := range m.Images {
		b = appendMessage(b, 10, m.Images[i].appendTo(nil))
	}
	if m.ToolCall != nil {
		b = appendMessage(b, 11, m.ToolCall.appendTo(nil))
	}
	b = appendOptString(b, 12, m.ModelCallID)
	return b
}

func (m *ConversationMessage) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.Text)
	b = appendInt32(b, 2, int32(m.Type))
	for i := range m.Images {
		b = appendMessage(b, 10, m.Images[i].appendTo(nil))
	}
	b = appendString(b, 13, m.BubbleID)
	for i := range m.ToolResults {
		b = appendMessage(b, 18, m.ToolResults[i].appendTo(nil))
	}
	b = appendBool(b, 29, m.IsAgentic)
	b = appendOptString(b, 32, m.ServerBubbleID)
	for i := range m.WebReferences {
		b = appendMessage(b, 36, m.WebReferences[i].appendTo(nil))
	}
	if m.Thinking != nil {
		b = appendMessage(b, 45, m.Thinking.appendTo(nil))
	}
	if m.UnifiedMode != nil {
		b = protowire.AppendTag(b, 47, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(*m.UnifiedMode)))
	}
	b = appendToolEnums(b, 51, m.SupportedTools)
	for i := range m.ExternalLinks {
		b = appendMessage(b, 62, m.ExternalLinks[i].appendTo(nil))
	}
	b = appendOptBool(b, 63, m.UseWeb)
	return b
}

func (m *McpTool) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.Name)
	b = appendString(b, 2, m.Description)
	b = appendString(b, 3, m.Parameters)
	b = appendString(b, 4, m.ServerName)
	return b
}

func (m *McpParams) appendTo(b []byte) []byte {
	for i := range m.Tools {
		b = appendMessage(b, 1, m.Tools[i].appendTo(nil))
	}
	return b
}

func (m *McpResult) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.SelectedTool)
	b = appendString(b, 2, m.Result)
	return b
}

func (m *ClientSideToolV2Call) appendTo(b []byte) []byte {
	b = appendInt32(b, 1, int32(m.Tool))
	b = appendString(b, 3, m.ToolCallID)
	b = appendString(b, 9, m.Name)
	b = appendString(b, 10, m.RawArgs)
	b = appendBool(b, 14, m.IsStreaming)
	b = appendBool(b, 15, m.IsLastMessage)
	if m.McpParams != nil {
		b = appendMessage(b, 27, m.McpParams.appendTo(nil))
	}
	b = appendOptUint32(b, 48, m.ToolIndex)
	b = appendOptString(b, 49, m.ModelCallID)
	return b
}

func (m *ClientSideToolV2Result) appendTo(b []byte) []byte {
	b = appendInt32(b, 1, int32(m.Tool))
	if m.Error != nil {
		b = appendMessage(b, 8, m.Error.appendTo(nil))
	}
	if m.McpResult != nil {
		b = appendMessage(b, 28, m.McpResult.appendTo(nil))
	}
	b = appendString(b, 35, m.ToolCallID)
	b = appendOptString(b, 48, m.ModelCallID)
	b = appendOptUint32(b, 49, m.ToolIndex)
	return b
}

func (m *StreamUnifiedChatRequest) appendTo(b []byte) []byte {
	for i := range m.Conversation {
		b = appendMessage(b, 1, m.Conversation[i].appendTo(nil))
	}
	if m.ExplicitContext != nil {
		b = appendMessage(b, 3, m.ExplicitContext.appendTo(nil))
	}
	if m.ModelDetails != nil {
		b = appendMessage(b, 5, m.ModelDetails.appendTo(nil))
	}
	b = appendOptString(b, 8, m.UseWeb)
	for i := range m.ExternalLinks {
		b = appendMessage(b, 9, m.ExternalLinks[i].appendTo(nil))
	}
	b = appendOptBool(b, 13, m.ShouldCache)
	b = appendBool(b, 22, m.IsChat)
	b = appendString(b, 23, m.ConversationID)
	if m.EnvironmentInfo != nil {
		b = appendMessage(b, 26, m.EnvironmentInfo.appendTo(nil))
	}
	b = appendBool(b, 27, m.IsAgentic)
	b = appendToolEnums(b, 29, m.SupportedTools)
	for i := range m.FullConversationHeadersOnly {
		b = appendMessage(b, 30, m.FullConversationHeadersOnly[i].appendTo(nil))
	}
	for i := range m.McpTools {
		b = appendMessage(b, 34, m.McpTools[i].appendTo(nil))
	}
	b = appendOptBool(b, 35, m.UseFullInputsContext)
	b = appendOptBool(b, 37, m.AllowModelFallbacks)
	if m.UnifiedMode != nil {
		b = protowire.AppendTag(b, 46, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(*m.UnifiedMode)))
	}
	b = appendOptBool(b, 48, m.ShouldDisableTools)
	if m.ThinkingLevel != nil {
		b = protowire.AppendTag(b, 49, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(*m.ThinkingLevel)))
	}
	b = appendOptBool(b, 51, m.UsesRules)
	b = appendOptString(b, 54, m.UnifiedModeName)
	return b
}

// Marshal encodes the request envelope.
func (m *StreamUnifiedChatRequestWithTools) Marshal() []byte {
	var b []byte
	if m.StreamUnifiedChatRequest != nil {
		b = appendMessage(b, 1, m.StreamUnifiedChatRequest.appendTo(nil))
	} else if m.ClientSideToolV2Result != nil {
		b = appendMessage(b, 2, m.ClientSideToolV2Result.appendTo(nil))
	}
	return b
}

// Marshal encodes the model list request.
func (m *AvailableModelsRequest) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, m.IsNightly)
	b = appendBool(b, 2, m.IncludeLongContextModels)
	b = appendBool(b, 3, m.ExcludeMaxNamedModels)
	for _, name := range m.AdditionalModelNames {
		b = appendString(b, 4, name)
	}
	return b
}
