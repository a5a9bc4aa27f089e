package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eternisai/cursor-bridge/internal/logger"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/eternisai/cursor-bridge/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{})
}

func fakeJWT(sub string, seq int) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, _ := json.Marshal(map[string]interface{}{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	sig := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("sig-%d", seq)))
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "." + sig
}

func TestPkcePair(t *testing.T) {
	verifier, challenge := pkcePair()
	assert.Len(t, verifier, 43)
	assert.Len(t, challenge, 43)

	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)

	v2, c2 := pkcePair()
	assert.NotEqual(t, verifier, v2)
	assert.NotEqual(t, challenge, c2)
}

func TestRefreshSessionReplacesPrimary(t *testing.T) {
	newJWT := fakeJWT("auth0|user_1", 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/refresh", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh_token", body["grant_type"])
		assert.NotEmpty(t, body["client_id"])
		json.NewEncoder(w).Encode(map[string]string{"access_token": newJWT}) //nolint:errcheck
	}))
	defer srv.Close()

	store := token.NewStore(0)
	sessionTok, err := token.ParseToken("user_1%3A%3A" + fakeJWT("auth0|user_1", 1))
	require.NoError(t, err)
	_, err = store.Add(token.NewCredential(sessionTok), "sess")
	require.NoError(t, err)

	client := upstream.NewClientForBase(srv.URL, srv.URL, srv.Client())
	svc := NewService(store, client, testLogger())

	require.NoError(t, svc.RenewByKey(context.Background(), sessionTok.Key()))

	snap, ok := store.GetByAlias("sess")
	require.True(t, ok)
	assert.Equal(t, newJWT, snap.Credential.Primary.Raw)
	// The key index followed the rotation.
	assert.NotEqual(t, sessionTok.Key(), snap.Credential.Primary.Key())
}

func TestUpgradePollsUntilIssued(t *testing.T) {
	issued := fakeJWT("auth0|user_2", 3)
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upgrade":
			w.WriteHeader(http.StatusOK)
		case "/poll":
			require.NotEmpty(t, r.URL.Query().Get("uuid"))
			require.NotEmpty(t, r.URL.Query().Get("verifier"))
			if polls.Add(1) < 3 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"accessToken": issued}) //nolint:errcheck
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	store := token.NewStore(0)
	accessTok, err := token.ParseToken(fakeJWT("auth0|user_2", 1))
	require.NoError(t, err)
	_, err = store.Add(token.NewCredential(accessTok), "acc")
	require.NoError(t, err)

	client := upstream.NewClientForBase(srv.URL, srv.URL, srv.Client())
	svc := NewService(store, client, testLogger())

	require.NoError(t, svc.RenewByKey(context.Background(), accessTok.Key()))
	assert.GreaterOrEqual(t, polls.Load(), int32(3))

	snap, ok := store.GetByAlias("acc")
	require.True(t, ok)
	assert.Equal(t, issued, snap.Credential.Primary.Raw)
	// The previous access token survives as the fallback.
	require.NotNil(t, snap.Credential.Secondary)
	assert.Equal(t, accessTok.Raw, snap.Credential.Secondary.Raw)
}

func TestUpgradeTerminalPollFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upgrade":
			w.WriteHeader(http.StatusOK)
		case "/poll":
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	store := token.NewStore(0)
	accessTok, err := token.ParseToken(fakeJWT("auth0|user_3", 1))
	require.NoError(t, err)
	_, err = store.Add(token.NewCredential(accessTok), "acc")
	require.NoError(t, err)

	client := upstream.NewClientForBase(srv.URL, srv.URL, srv.Client())
	svc := NewService(store, client, testLogger())

	assert.Error(t, svc.RenewByKey(context.Background(), accessTok.Key()))
}
