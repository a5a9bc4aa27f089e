package proxy

import (
	"log/slog"
	"net/http"

	"github.com/eternisai/cursor-bridge/internal/config"
	"github.com/eternisai/cursor-bridge/internal/errors"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/gin-gonic/gin"
)

// Admin credential management. Every mutation persists the pool before
// answering.

type addTokenRequest struct {
	Token    string `json:"token"`
	Alias    string `json:"alias"`
	Timezone string `json:"timezone"`
	Proxy    string `json:"proxy"`
}

type tokenListEntry struct {
	ID      int    `json:"id"`
	Alias   string `json:"alias"`
	Role    string `json:"role"`
	UserID  string `json:"user_id"`
	Enabled bool   `json:"enabled"`
	Backoff uint64 `json:"backoff_until,omitempty"`
	Billing string `json:"billing"`
}

// ListTokens handles GET /tokens.
func (s *Server) ListTokens(c *gin.Context) {
	entries := s.store.List()
	out := make([]tokenListEntry, 0, len(entries))
	for _, e := range entries {
		billing := "free"
		if e.Billing == token.BillingPaid {
			billing = "paid"
		}
		out = append(out, tokenListEntry{
			ID:      e.ID,
			Alias:   e.Alias,
			Role:    e.Role.String(),
			UserID:  e.UserID,
			Enabled: e.Enabled,
			Backoff: e.Health.BackoffUntil,
			Billing: billing,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tokens": out})
}

// AddToken handles POST /tokens.
func (s *Server) AddToken(c *gin.Context) {
	var req addTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.AbortWithBadRequest(c, "invalid request body", nil)
		return
	}

	parsed, err := token.ParseToken(req.Token)
	if err != nil {
		errors.AbortWithBadRequest(c, "token is not a valid upstream credential", map[string]interface{}{"error": err.Error()})
		return
	}

	cred := token.NewCredential(parsed)
	if req.Timezone != "" {
		cred.Timezone = req.Timezone
	}
	if req.Proxy != "" {
		proxy := req.Proxy
		cred.ProxyName = &proxy
	}

	id, err := s.store.Add(cred, req.Alias)
	if err != nil {
		errors.AbortWithConflict(c, err.Error(), nil)
		return
	}

	s.persistPool()
	snap, _ := s.store.GetByID(id)
	c.JSON(http.StatusOK, gin.H{"id": id, "alias": snap.Alias})
}

// DeleteToken handles DELETE /tokens/:alias.
func (s *Server) DeleteToken(c *gin.Context) {
	alias := c.Param("alias")
	if _, ok := s.store.RemoveByAlias(alias); !ok {
		errors.AbortWithNotFound(c, "no credential with alias "+alias, nil)
		return
	}
	s.persistPool()
	c.JSON(http.StatusOK, gin.H{"deleted": alias})
}

type renameTokenRequest struct {
	Alias string `json:"alias"`
}

// RenameToken handles POST /tokens/:alias/rename.
func (s *Server) RenameToken(c *gin.Context) {
	snap, ok := s.store.GetByAlias(c.Param("alias"))
	if !ok {
		errors.AbortWithNotFound(c, "no credential with alias "+c.Param("alias"), nil)
		return
	}

	var req renameTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.AbortWithBadRequest(c, "invalid request body", nil)
		return
	}

	if err := s.store.Rename(snap.ID, req.Alias); err != nil {
		errors.AbortWithConflict(c, err.Error(), nil)
		return
	}
	s.persistPool()
	renamed, _ := s.store.GetByID(snap.ID)
	c.JSON(http.StatusOK, gin.H{"id": snap.ID, "alias": renamed.Alias})
}

// RotateClientKeys handles POST /tokens/rotate-keys.
func (s *Server) RotateClientKeys(c *gin.Context) {
	s.store.RotateClientKeys()
	s.persistPool()
	c.JSON(http.StatusOK, gin.H{"rotated": s.store.Len()})
}

// RecentRequests handles GET /requests.
func (s *Server) RecentRequests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"requests": s.tracking.Recent(100),
		"dropped":  s.tracking.Dropped(),
	})
}

type setProxyRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ListProxies handles GET /proxies.
func (s *Server) ListProxies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"proxies": s.client.Proxies().List()})
}

// SetProxy handles POST /proxies.
func (s *Server) SetProxy(c *gin.Context) {
	var req setProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.URL == "" {
		errors.AbortWithBadRequest(c, "name and url are required", nil)
		return
	}
	if err := s.client.Proxies().Set(req.Name, req.URL); err != nil {
		errors.AbortWithBadRequest(c, "invalid proxy url", map[string]interface{}{"error": err.Error()})
		return
	}
	s.persistProxies()
	c.JSON(http.StatusOK, gin.H{"name": req.Name})
}

// DeleteProxy handles DELETE /proxies/:name.
func (s *Server) DeleteProxy(c *gin.Context) {
	name := c.Param("name")
	if !s.client.Proxies().Delete(name) {
		errors.AbortWithNotFound(c, "no proxy named "+name, nil)
		return
	}
	s.persistProxies()
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

func (s *Server) persistProxies() {
	if err := s.client.Proxies().Save(config.AppConfig.ProxiesFilePath); err != nil {
		s.log.Error("failed to persist proxy pool", slog.String("error", err.Error()))
	}
}

// persistPool writes the pool snapshot; failures are logged, not fatal.
func (s *Server) persistPool() {
	if err := s.store.Save(config.AppConfig.TokensFilePath); err != nil {
		s.log.Error("failed to persist credential pool", slog.String("error", err.Error()))
	}
}
