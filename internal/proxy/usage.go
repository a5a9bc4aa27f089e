package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/eternisai/cursor-bridge/internal/translate"
)

const (
	usagePollAttempts = 5
	usagePollInterval = time.Second
)

type usageEventsResponse struct {
	UsageEventsDisplay []struct {
		TokenUsage *struct {
			InputTokens  int `json:"inputTokens"`
			OutputTokens int `json:"outputTokens"`
		} `json:"tokenUsage"`
	} `json:"usageEventsDisplay"`
}

// usageChecksEnabled reports whether the settings opt this model into
// the usage side-call.
func usageChecksEnabled(checks []string, base string) bool {
	for _, m := range checks {
		if m == "all" || m == base {
			return true
		}
	}
	return false
}

// fetchUsage polls the upstream's filtered usage events for the token
// counts of the request that just finished. Usage is best-effort: any
// failure yields nil and the response simply omits usage.
func (s *Server) fetchUsage(ctx context.Context, cred *token.Credential) *translate.OpenAIUsage {
	if ctx.Err() != nil {
		return nil
	}

	for attempt := 0; attempt < usagePollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(usagePollInterval):
			case <-ctx.Done():
				return nil
			}
		}

		req, err := s.client.UsageEventsRequest(ctx, cred)
		if err != nil {
			return nil
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			continue
		}

		var parsed usageEventsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			continue
		}
		if len(parsed.UsageEventsDisplay) == 0 || parsed.UsageEventsDisplay[0].TokenUsage == nil {
			continue
		}
		usage := parsed.UsageEventsDisplay[0].TokenUsage
		return &translate.OpenAIUsage{
			PromptTokens:     usage.InputTokens,
			CompletionTokens: usage.OutputTokens,
			TotalTokens:      usage.InputTokens + usage.OutputTokens,
		}
	}
	return nil
}
