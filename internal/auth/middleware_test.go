package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMiddleware() *Middleware {
	return NewMiddleware(Keys{AuthKey: "admin-key", ShareKey: "share-key"})
}

func TestResolveAdmin(t *testing.T) {
	m := testMiddleware()

	p, ok := m.Resolve("admin-key")
	require.True(t, ok)
	assert.Equal(t, PolicyAdmin, p.Kind)
	assert.Empty(t, p.ForcedAlias)

	p, ok = m.Resolve("admin-key-mycred")
	require.True(t, ok)
	assert.Equal(t, PolicyAdmin, p.Kind)
	assert.Equal(t, "mycred", p.ForcedAlias)
}

func TestResolveShared(t *testing.T) {
	p, ok := testMiddleware().Resolve("share-key")
	require.True(t, ok)
	assert.Equal(t, PolicyShared, p.Kind)
}

func TestResolveSelfBearer(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"auth0|user_9","exp":9999999999}`))
	jwt := header + "." + payload + ".c2ln"

	p, ok := testMiddleware().Resolve(jwt)
	require.True(t, ok)
	assert.Equal(t, PolicySelf, p.Kind)
	require.NotNil(t, p.SelfToken)
	assert.Equal(t, "user_9", p.SelfToken.UserID)
}

func TestResolveRejectsGarbage(t *testing.T) {
	_, ok := testMiddleware().Resolve("random-string")
	assert.False(t, ok)
	_, ok = testMiddleware().Resolve("")
	assert.False(t, ok)
}

func TestRequireAuthHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := testMiddleware()

	router := gin.New()
	router.GET("/x", m.RequireAuth(), func(c *gin.Context) {
		p, ok := GetPolicy(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"kind": int(p.Kind)})
	})

	// api-key header
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("api-key", "share-key")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// bearer
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer admin-key")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// missing
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// invalid
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("api-key", "nope")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := testMiddleware()

	router := gin.New()
	router.GET("/admin", m.RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-key")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-key-alias")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "suffixed admin keys do not open admin routes")
}
