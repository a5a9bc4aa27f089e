package upstream

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/eternisai/cursor-bridge/internal/errors"
)

// The upstream's error frames carry JSON in one of two shapes: the
// service's own {"error":{"code":...,"message":...}} envelope, or a
// flat connect-style {"code":...,"message":...} object.

type errorFrameBody struct {
	Error   *errorFrameDetail `json:"error"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
}

type errorFrameDetail struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

// ParseErrorFrame classifies a JSON error payload into the canonical
// taxonomy. Unparseable bodies map to KindUnknown with the raw text as
// the message.
func ParseErrorFrame(payload []byte) *errors.Canonical {
	var body errorFrameBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return &errors.Canonical{Kind: errors.KindUnknown, Message: strings.TrimSpace(string(payload))}
	}

	code := body.Code
	message := body.Message
	if body.Error != nil {
		code = body.Error.Code
		if body.Error.Message != "" {
			message = body.Error.Message
		}
	}

	kind, retryAfter := classifyErrorCode(code)
	if message == "" {
		message = code
	}
	return &errors.Canonical{Kind: kind, Message: message, RetryAfter: retryAfter}
}

func classifyErrorCode(code string) (errors.Kind, time.Duration) {
	c := strings.ToUpper(strings.TrimPrefix(strings.TrimPrefix(code, "ERROR_"), "error_"))
	switch c {
	case "BAD_API_KEY", "BAD_USER_API_KEY", "NOT_LOGGED_IN", "INVALID_AUTH_ID",
		"AUTH_TOKEN_NOT_FOUND", "AUTH_TOKEN_EXPIRED", "UNAUTHORIZED", "UNAUTHENTICATED":
		return errors.KindBadCredential, 0
	case "FREE_USER_RATE_LIMIT_EXCEEDED", "PRO_USER_RATE_LIMIT_EXCEEDED",
		"OPENAI_RATE_LIMIT_EXCEEDED", "API_KEY_RATE_LIMIT",
		"GENERIC_RATE_LIMIT_EXCEEDED", "RATE_LIMITED", "RATE_LIMITED_CHANGEABLE",
		"GPT_4_VISION_PREVIEW_RATE_LIMIT":
		return errors.KindRateLimited, time.Minute
	case "FREE_USER_USAGE_LIMIT", "PRO_USER_USAGE_LIMIT", "RESOURCE_EXHAUSTED",
		"OPENAI_ACCOUNT_LIMIT_EXCEEDED", "USAGE_PRICING_REQUIRED",
		"USAGE_PRICING_REQUIRED_CHANGEABLE":
		return errors.KindUsageLimitExceeded, 0
	case "BAD_MODEL_NAME", "MODEL_NOT_FOUND", "DEPRECATED", "AGENT_ENGINE_NOT_FOUND",
		"UNAVAILABLE":
		return errors.KindModelUnavailable, 0
	case "CONVERSATION_TOO_LONG", "MAX_TOKENS", "SLASH_EDIT_FILE_TOO_LONG":
		return errors.KindContextTooLong, 0
	case "BAD_REQUEST", "INVALID_ARGUMENT", "FILE_UNSUPPORTED", "OUTDATED_CLIENT",
		"CLAUDE_IMAGE_TOO_LARGE":
		return errors.KindInvalidRequest, 0
	case "TIMEOUT", "DEBOUNCED", "INTERNAL", "OPENAI":
		return errors.KindServerTransient, 0
	default:
		return errors.KindUnknown, 0
	}
}
