// Package auth resolves client API keys into credential-selection
// policies. Three classes exist: the admin key (privileged queues,
// optionally forcing one alias), the share key (normal queues), and
// self-bearer keys that are themselves upstream credentials.
package auth

import (
	"strings"

	"github.com/eternisai/cursor-bridge/internal/errors"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/gin-gonic/gin"
)

type contextKey string

const PolicyKey contextKey = "credential_policy"

// PolicyKind classifies how a request selects its credential.
type PolicyKind uint8

const (
	PolicyAdmin PolicyKind = iota
	PolicyShared
	PolicySelf
)

// Policy is the outcome of authentication.
type Policy struct {
	Kind        PolicyKind
	ForcedAlias string       // admin only; empty means queue selection
	SelfToken   *token.Token // self-bearer only
}

// Keys holds the configured service keys.
type Keys struct {
	AuthKey  string
	ShareKey string
}

// Middleware authenticates the public chat routes.
type Middleware struct {
	keys Keys
}

func NewMiddleware(keys Keys) *Middleware {
	return &Middleware{keys: keys}
}

// extractKey accepts `api-key: <k>`, `x-api-key: <k>` or
// `Authorization: Bearer <k>`, checked in that order.
func extractKey(c *gin.Context) string {
	if k := c.GetHeader("api-key"); k != "" {
		return k
	}
	if k := c.GetHeader("x-api-key"); k != "" {
		return k
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// Resolve classifies a bare key without a request context.
func (m *Middleware) Resolve(key string) (Policy, bool) {
	if key == "" {
		return Policy{}, false
	}

	if m.keys.AuthKey != "" {
		if key == m.keys.AuthKey {
			return Policy{Kind: PolicyAdmin}, true
		}
		if alias, ok := strings.CutPrefix(key, m.keys.AuthKey+"-"); ok {
			return Policy{Kind: PolicyAdmin, ForcedAlias: alias}, true
		}
	}

	if m.keys.ShareKey != "" && key == m.keys.ShareKey {
		return Policy{Kind: PolicyShared}, true
	}

	if tok, err := token.ParseToken(key); err == nil {
		return Policy{Kind: PolicySelf, SelfToken: &tok}, true
	}

	return Policy{}, false
}

// RequireAuth rejects requests whose key resolves to no policy.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := extractKey(c)
		if key == "" {
			errors.AbortWithUnauthorized(c, "api key is required", nil)
			return
		}
		policy, ok := m.Resolve(key)
		if !ok {
			errors.AbortWithUnauthorized(c, "invalid api key", nil)
			return
		}
		c.Set(string(PolicyKey), policy)
		c.Next()
	}
}

// RequireAdmin only passes the exact admin key.
func (m *Middleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.keys.AuthKey == "" {
			errors.AbortWithUnauthorized(c, "admin access is not configured", nil)
			return
		}
		if extractKey(c) != m.keys.AuthKey {
			errors.AbortWithUnauthorized(c, "admin key required", nil)
			return
		}
		c.Next()
	}
}

// GetPolicy retrieves the policy set by RequireAuth.
func GetPolicy(c *gin.Context) (Policy, bool) {
	v, exists := c.Get(string(PolicyKey))
	if !exists {
		return Policy{}, false
	}
	p, ok := v.(Policy)
	return p, ok
}
