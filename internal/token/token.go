// Package token implements the credential pool: dense indexed storage
// with alias and key indices, four round-robin selection queues with
// health filtering, and binary persistence.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Role distinguishes long-lived session credentials (refreshable) from
// short-lived access credentials (upgradable to long-lived).
type Role uint8

const (
	RoleAccess Role = iota
	RoleSession
)

func (r Role) String() string {
	if r == RoleSession {
		return "session"
	}
	return "access"
}

// sessionSep separates the user id from the JWT in a session cookie
// credential. The URL-encoded form appears when the cookie is pasted
// straight from a browser.
const (
	sessionSep        = "::"
	sessionSepEncoded = "%3A%3A"
)

// Token is one upstream bearer credential. UserID and Randomness
// together form its logical key.
type Token struct {
	Raw        string
	UserID     string
	Randomness string
	ExpiresAt  time.Time
	Role       Role
}

// Key is the logical identity of a token, unique across the pool for
// primary tokens.
type Key struct {
	UserID     string
	Randomness string
}

func (t *Token) Key() Key {
	return Key{UserID: t.UserID, Randomness: t.Randomness}
}

// NearExpiry reports whether the token expires within the window.
func (t *Token) NearExpiry(window time.Duration) bool {
	return !t.ExpiresAt.IsZero() && time.Until(t.ExpiresAt) < window
}

type rawClaims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

// ParseToken accepts either a bare access JWT or a session cookie of the
// form "<user>::<jwt>" (also URL-encoded). The JWT is decoded without
// signature verification; only the upstream can verify it.
func ParseToken(raw string) (Token, error) {
	raw = strings.TrimSpace(raw)
	role := RoleAccess
	jwtPart := raw

	normalized := strings.ReplaceAll(raw, sessionSepEncoded, sessionSep)
	if i := strings.Index(normalized, sessionSep); i >= 0 {
		role = RoleSession
		jwtPart = normalized[i+len(sessionSep):]
		raw = normalized
	}

	parts := strings.Split(jwtPart, ".")
	if len(parts) != 3 {
		return Token{}, fmt.Errorf("token: not a JWT")
	}

	claims := &rawClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(jwtPart, claims); err != nil {
		return Token{}, fmt.Errorf("token: parse claims: %w", err)
	}
	if claims.Sub == "" {
		return Token{}, fmt.Errorf("token: missing sub claim")
	}

	userID := claims.Sub
	if i := strings.IndexByte(userID, '|'); i >= 0 {
		userID = userID[i+1:]
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	// The signature segment is unique per issued token; a short digest of
	// it serves as the randomness half of the key.
	sum := sha256.Sum256([]byte(parts[2]))

	return Token{
		Raw:        raw,
		UserID:     userID,
		Randomness: hex.EncodeToString(sum[:8]),
		ExpiresAt:  expiresAt,
		Role:       role,
	}, nil
}

// BearerJWT returns the JWT usable in an Authorization header,
// stripping the session-cookie user prefix when present.
func (t *Token) BearerJWT() string {
	if i := strings.Index(t.Raw, sessionSep); i >= 0 {
		return t.Raw[i+len(sessionSep):]
	}
	return t.Raw
}

// ChecksumLen is the length of the upstream device checksum.
const ChecksumLen = 43

// Credential bundles a primary token with its per-device identity
// material. Secondary holds the previous token during role transitions.
type Credential struct {
	Primary       Token
	Secondary     *Token
	Checksum      string // ChecksumLen bytes, opaque to us
	ClientKey     [32]byte
	SessionID     uuid.UUID
	ConfigVersion *uuid.UUID
	ProxyName     *string
	Timezone      string
	GcppHost      *uint8
}

// ClientKeyHex is the 64-hex header form of the client key.
func (c *Credential) ClientKeyHex() string {
	return hex.EncodeToString(c.ClientKey[:])
}

// TimezoneName defaults to UTC when unset.
func (c *Credential) TimezoneName() string {
	if c.Timezone == "" {
		return "Etc/UTC"
	}
	return c.Timezone
}

// NewChecksum produces a device checksum: base64url of 32 random bytes,
// 43 characters, the length the upstream requires.
func NewChecksum() string {
	var b [32]byte
	rand.Read(b[:]) //nolint:errcheck
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// NewClientKey produces a fresh 32-byte client key.
func NewClientKey() [32]byte {
	var k [32]byte
	rand.Read(k[:]) //nolint:errcheck
	return k
}

// NewCredential wires a parsed token into a credential with fresh
// device identity material.
func NewCredential(primary Token) Credential {
	return Credential{
		Primary:   primary,
		Checksum:  NewChecksum(),
		ClientKey: NewClientKey(),
		SessionID: uuid.New(),
	}
}

// BillingKind is the credential's plan classification, discovered from
// the upstream profile.
type BillingKind uint8

const (
	BillingFree BillingKind = iota
	BillingPaid
)

// Profile is the subset of the upstream account profile the pool keeps.
type Profile struct {
	Email          string
	MembershipType string
	UpdatedAt      time.Time
}

// Record is one pool entry: a credential plus its operational state.
type Record struct {
	Credential Credential
	Alias      string
	Enabled    bool
	Health     Health
	Billing    BillingKind
	Profile    *Profile
}

// Available reports whether the record may serve a request now.
func (r *Record) Available(now uint64) bool {
	return r.Enabled && r.Health.Available(now)
}
