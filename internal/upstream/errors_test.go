package upstream

import (
	"testing"

	"github.com/eternisai/cursor-bridge/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestParseErrorFrameShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    errors.Kind
		message string
	}{
		{
			name:    "nested envelope",
			payload: `{"error":{"code":"ERROR_FREE_USER_RATE_LIMIT_EXCEEDED","message":"slow down"}}`,
			kind:    errors.KindRateLimited,
			message: "slow down",
		},
		{
			name:    "flat connect error",
			payload: `{"code":"unauthenticated","message":"bad token"}`,
			kind:    errors.KindBadCredential,
			message: "bad token",
		},
		{
			name:    "usage limit",
			payload: `{"error":{"code":"ERROR_PRO_USER_USAGE_LIMIT"}}`,
			kind:    errors.KindUsageLimitExceeded,
			message: "ERROR_PRO_USER_USAGE_LIMIT",
		},
		{
			name:    "context too long",
			payload: `{"error":{"code":"ERROR_CONVERSATION_TOO_LONG","message":"conversation too long"}}`,
			kind:    errors.KindContextTooLong,
			message: "conversation too long",
		},
		{
			name:    "model unavailable",
			payload: `{"error":{"code":"ERROR_BAD_MODEL_NAME"}}`,
			kind:    errors.KindModelUnavailable,
			message: "ERROR_BAD_MODEL_NAME",
		},
		{
			name:    "transient",
			payload: `{"error":{"code":"ERROR_TIMEOUT"}}`,
			kind:    errors.KindServerTransient,
		},
		{
			name:    "unparseable",
			payload: `not json at all`,
			kind:    errors.KindUnknown,
			message: "not json at all",
		},
		{
			name:    "unknown code",
			payload: `{"error":{"code":"ERROR_SOMETHING_NEW","message":"?"}}`,
			kind:    errors.KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cerr := ParseErrorFrame([]byte(tt.payload))
			assert.Equal(t, tt.kind, cerr.Kind)
			if tt.message != "" {
				assert.Equal(t, tt.message, cerr.Message)
			}
		})
	}
}

func TestCanonicalStatusMapping(t *testing.T) {
	cases := map[errors.Kind]int{
		errors.KindBadCredential:      401,
		errors.KindRateLimited:        429,
		errors.KindUsageLimitExceeded: 429,
		errors.KindModelUnavailable:   503,
		errors.KindContextTooLong:     400,
		errors.KindInvalidRequest:     400,
		errors.KindServerTransient:    502,
		errors.KindUnknown:            502,
	}
	for kind, status := range cases {
		cerr := &errors.Canonical{Kind: kind}
		assert.Equal(t, status, cerr.HTTPStatus(), kind.String())
	}
}

func TestHealthPolicy(t *testing.T) {
	assert.True(t, (&errors.Canonical{Kind: errors.KindBadCredential}).CountsAgainstHealth())
	assert.True(t, (&errors.Canonical{Kind: errors.KindRateLimited}).CountsAgainstHealth())
	assert.False(t, (&errors.Canonical{Kind: errors.KindServerTransient}).CountsAgainstHealth())
	assert.False(t, (&errors.Canonical{Kind: errors.KindContextTooLong}).CountsAgainstHealth())
}
