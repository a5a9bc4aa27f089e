package proxy

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/eternisai/cursor-bridge/internal/aiserver"
	"github.com/eternisai/cursor-bridge/internal/auth"
	"github.com/eternisai/cursor-bridge/internal/errors"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/gin-gonic/gin"
)

// defaultModels is served until an upstream refresh succeeds.
var defaultModels = []string{
	"claude-4.5-sonnet",
	"claude-4.5-haiku",
	"claude-4.1-opus",
	"claude-4-sonnet",
	"gpt-5",
	"gpt-5-codex",
	"gemini-2.5-pro",
	"deepseek-v3.1",
	"grok-4",
	"cursor-small",
}

const modelRefreshInterval = 30 * time.Minute

// modelCache caches the upstream model list with a refresh interval.
type modelCache struct {
	mu        sync.RWMutex
	names     []string
	known     map[string]bool
	refreshed time.Time
}

func newModelCache() *modelCache {
	c := &modelCache{}
	c.replace(defaultModels)
	return c
}

func (c *modelCache) replace(names []string) {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	c.mu.Lock()
	c.names = names
	c.known = known
	c.refreshed = time.Now()
	c.mu.Unlock()
}

// Known accepts any cached base model.
func (c *modelCache) Known(base string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.known[base]
}

func (c *modelCache) list() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.names...)
}

func (c *modelCache) stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.refreshed) > modelRefreshInterval
}

// refreshModels pulls the model list from the upstream using the given
// credential. Failures leave the cache untouched.
func (s *Server) refreshModels(ctx context.Context, cred *token.Credential) error {
	req := aiserver.AvailableModelsRequest{
		IncludeLongContextModels: true,
		ExcludeMaxNamedModels:    true,
	}
	resp, err := s.client.AvailableModels(ctx, cred, req.Marshal())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	parsed, err := aiserver.UnmarshalAvailableModelsResponse(body)
	if err != nil {
		return err
	}
	if len(parsed.Models) == 0 {
		return nil
	}
	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, m.Name)
	}
	s.models.replace(names)
	return nil
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// Models handles GET /v1/models: refresh the cache when it is stale and
// a pool credential is available, then list every model with its
// derived variants.
func (s *Server) Models(c *gin.Context) {
	policy, ok := auth.GetPolicy(c)
	if !ok {
		errors.AbortWithUnauthorized(c, "missing credential policy", nil)
		return
	}

	if s.models.stale() {
		if snap, cerr := s.selectCredential(policy); cerr == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
			s.refreshModels(ctx, &snap.Credential) //nolint:errcheck
			cancel()
		}
	}

	created := time.Now().Unix()
	var entries []modelEntry
	for _, name := range s.models.list() {
		for _, variant := range []string{"", "-thinking", "-max", "-online"} {
			entries = append(entries, modelEntry{
				ID:      name + variant,
				Object:  "model",
				Created: created,
				OwnedBy: "cursor-bridge",
			})
		}
	}
	c.JSON(http.StatusOK, modelList{Object: "list", Data: entries})
}
