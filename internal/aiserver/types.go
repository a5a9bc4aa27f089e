// Package aiserver contains the upstream AI service wire messages and a
// hand-rolled protowire codec for them. The message set mirrors the
// aiserver.v1 schema; only the fields this proxy reads or writes are
// modeled, unknown fields are skipped on decode.
package aiserver

// MessageType distinguishes the author of a conversation message.
type MessageType int32

const (
	MessageTypeUnspecified MessageType = 0
	MessageTypeHuman       MessageType = 1
	MessageTypeAi          MessageType = 2
)

// UnifiedMode selects between plain chat and agentic dispatch.
type UnifiedMode int32

const (
	UnifiedModeUnspecified UnifiedMode = 0
	UnifiedModeChat        UnifiedMode = 1
	UnifiedModeAgent       UnifiedMode = 2
	UnifiedModeEdit        UnifiedMode = 3
	UnifiedModeCustom      UnifiedMode = 4
	UnifiedModePlan        UnifiedMode = 5
)

// ThinkingLevel requests chain-of-thought effort from the upstream.
type ThinkingLevel int32

const (
	ThinkingLevelUnspecified ThinkingLevel = 0
	ThinkingLevelMedium      ThinkingLevel = 1
	ThinkingLevelHigh        ThinkingLevel = 2
)

// ClientSideToolV2 identifies a client-side tool family. Only Mcp is
// used by this proxy; the rest exist upstream.
type ClientSideToolV2 int32

const (
	ClientSideToolV2Unspecified ClientSideToolV2 = 0
	ClientSideToolV2Mcp         ClientSideToolV2 = 19
)

// EnvironmentInfo describes the emulated client environment.
type EnvironmentInfo struct {
	ExthostPlatform string // 1
	ExthostArch     string // 2
	LocalTimestamp  string // 5
	CursorVersion   string // 7
}

// ExplicitContext carries the system-instruction text.
type ExplicitContext struct {
	Context             string // 1
	RepoContext         string // 2, optional
	ModeSpecificContext string // 4, optional
}

// ModelDetails names the model and its dispatch flags.
type ModelDetails struct {
	ModelName      *string // 1
	EnableSlowPool *bool   // 5
	MaxMode        *bool   // 8
}

// Dimension is an image's pixel size.
type Dimension struct {
	Width  int32 // 1
	Height int32 // 2
}

// ImageProto is an inline image attachment.
type ImageProto struct {
	Data      []byte     // 1
	Dimension *Dimension // 2
	UUID      string     // 3
}

// ExternalLink is a URL attached to a message.
type ExternalLink struct {
	URL  string // 1
	UUID string // 2
}

// WebReference is one citation produced by upstream web search.
type WebReference struct {
	URL   string // 1
	Title string // 2
	Chunk string // 3
}

// WebCitation wraps a batch of references.
type WebCitation struct {
	References []WebReference // 1
}

// Thinking is upstream chain-of-thought output, optionally signed or
// redacted.
type Thinking struct {
	Text             string // 1
	Signature        string // 2
	RedactedThinking string // 3
}

// ConversationMessageHeader is the lightweight twin of a conversation
// message; the envelope carries a parallel headers-only list for
// server-side caching.
type ConversationMessageHeader struct {
	BubbleID       string      // 1
	ServerBubbleID *string     // 2
	Type           MessageType // 3
}

// ToolResultError carries the model-visible message of a failed tool run.
type ToolResultError struct {
	ModelVisibleErrorMessage string // 2
}

// ToolResult is a completed tool call attached to a conversation message.
type ToolResult struct {
	ToolCallID  string                  // 1
	ToolName    string                  // 2
	ToolIndex   uint32                  // 3
	RawArgs     string                  // 5
	Result      *ClientSideToolV2Result // 8
	Error       *ToolResultError        // 9
	Images      []ImageProto            // 10
	ToolCall    *ClientSideToolV2Call   // 11
	ModelCallID *string                 // 12
}

// ConversationMessage is one turn of the upstream conversation.
type ConversationMessage struct {
	Text           string             // 1
	Type           MessageType        // 2
	Images         []ImageProto       // 10
	BubbleID       string             // 13
	ToolResults    []ToolResult       // 18
	IsAgentic      bool               // 29
	ServerBubbleID *string            // 32
	WebReferences  []WebReference     // 36
	Thinking       *Thinking          // 45
	UnifiedMode    *UnifiedMode       // 47
	SupportedTools []ClientSideToolV2 // 51
	ExternalLinks  []ExternalLink     // 62
	UseWeb         *bool              // 63
}

// McpTool declares one client-supplied tool to the upstream.
type McpTool struct {
	Name        string // 1
	Description string // 2
	Parameters  string // 3, JSON schema
	ServerName  string // 4
}

// McpParams is the tool declaration set of an MCP tool call.
type McpParams struct {
	Tools []McpTool // 1
}

// McpResult is the outcome of an MCP tool call.
type McpResult struct {
	SelectedTool string // 1
	Result       string // 2
}

// ClientSideToolV2Call is the upstream asking the client to run a tool.
type ClientSideToolV2Call struct {
	Tool          ClientSideToolV2 // 1
	ToolCallID    string           // 3
	Name          string           // 9
	RawArgs       string           // 10
	IsStreaming   bool             // 14
	IsLastMessage bool             // 15
	McpParams     *McpParams       // 27, oneof params
	ToolIndex     *uint32          // 48
	ModelCallID   *string          // 49
}

// ClientSideToolV2Result is the client reporting a tool outcome.
type ClientSideToolV2Result struct {
	Tool        ClientSideToolV2 // 1
	Error       *ToolResultError // 8
	McpResult   *McpResult       // 28, oneof result
	ToolCallID  string           // 35
	ModelCallID *string          // 48
	ToolIndex   *uint32          // 49
}

// StreamUnifiedChatRequest is the chat request payload.
type StreamUnifiedChatRequest struct {
	Conversation                []ConversationMessage       // 1
	ExplicitContext             *ExplicitContext            // 3
	ModelDetails                *ModelDetails               // 5
	UseWeb                      *string                     // 8
	ExternalLinks               []ExternalLink              // 9
	ShouldCache                 *bool                       // 13
	IsChat                      bool                        // 22
	ConversationID              string                      // 23
	EnvironmentInfo             *EnvironmentInfo            // 26
	IsAgentic                   bool                        // 27
	SupportedTools              []ClientSideToolV2          // 29
	FullConversationHeadersOnly []ConversationMessageHeader // 30
	McpTools                    []McpTool                   // 34
	UseFullInputsContext        *bool                       // 35
	AllowModelFallbacks         *bool                       // 37
	UnifiedMode                 *UnifiedMode                // 46
	ShouldDisableTools          *bool                       // 48
	ThinkingLevel               *ThinkingLevel              // 49
	UsesRules                   *bool                       // 51
	UnifiedModeName             *string                     // 54
}

// StreamUnifiedChatRequestWithTools is the request envelope: exactly one
// of the two branches is set.
type StreamUnifiedChatRequestWithTools struct {
	StreamUnifiedChatRequest *StreamUnifiedChatRequest // oneof 1
	ClientSideToolV2Result   *ClientSideToolV2Result   // oneof 2
}

// StreamUnifiedChatResponse is one decoded chat response chunk.
type StreamUnifiedChatResponse struct {
	Text        string       // 1
	WebCitation *WebCitation // 11
	Thinking    *Thinking    // 25
}

// StreamUnifiedChatResponseWithTools is the response envelope: exactly
// one of the two branches is set.
type StreamUnifiedChatResponseWithTools struct {
	ClientSideToolV2Call      *ClientSideToolV2Call      // oneof 1
	StreamUnifiedChatResponse *StreamUnifiedChatResponse // oneof 2
}

// TokenCount wraps the dry-run token counter.
type TokenCount struct {
	NumTokens *int32 // 2
}

// GetPromptDryRunResponse is the dry-run RPC's answer.
type GetPromptDryRunResponse struct {
	UserMessageTokenCount      *TokenCount // 4
	FullConversationTokenCount *TokenCount // 5
}

// AvailableModelsRequest asks the upstream for its model list.
type AvailableModelsRequest struct {
	IsNightly                bool     // 1
	IncludeLongContextModels bool     // 2
	ExcludeMaxNamedModels    bool     // 3
	AdditionalModelNames     []string // 4
}

// AvailableModel is one entry of the upstream model list.
type AvailableModel struct {
	Name              string  // 1
	DefaultOn         bool    // 2
	SupportsThinking  *bool   // 9
	SupportsImages    *bool   // 10
	SupportsMaxMode   *bool   // 14
	ContextTokenLimit *int32  // 15
	ClientDisplayName *string // 17
	ServerModelName   *string // 18
}

// AvailableModelsResponse is the model list RPC's answer.
type AvailableModelsResponse struct {
	Models []AvailableModel // 2
}
