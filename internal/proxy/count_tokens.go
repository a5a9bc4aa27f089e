package proxy

import (
	"io"
	"net/http"
	"time"

	"github.com/eternisai/cursor-bridge/internal/aiserver"
	"github.com/eternisai/cursor-bridge/internal/auth"
	"github.com/eternisai/cursor-bridge/internal/errors"
	"github.com/eternisai/cursor-bridge/internal/translate"
	"github.com/gin-gonic/gin"
)

type countTokensResponse struct {
	InputTokens int32 `json:"input_tokens"`
}

// CountTokens handles POST /v1/messages/count_tokens: encode the request
// exactly like a chat dispatch, call the dry-run sibling RPC, and
// extract the conversation token count.
func (s *Server) CountTokens(c *gin.Context) {
	start := time.Now()

	policy, ok := auth.GetPolicy(c)
	if !ok {
		errors.AbortWithUnauthorized(c, "missing credential policy", nil)
		return
	}

	var req translate.AnthropicMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		anthropicInputError(c, &translate.InputError{Code: "invalid_json", Message: err.Error()})
		return
	}

	model := translate.ParseModel(req.Model)
	if !s.models.Known(model.Base) {
		anthropicInputError(c, &translate.InputError{Code: "model_not_found", Message: "model " + req.Model + " is not supported"})
		return
	}

	snap, cerr := s.selectCredential(policy)
	if cerr != nil {
		c.JSON(cerr.HTTPStatus(), cerr.Anthropic())
		return
	}

	envelope, err := s.translator().EncodeAnthropic(c.Request.Context(), &req, model)
	if err != nil {
		if ierr, ok := err.(*translate.InputError); ok {
			anthropicInputError(c, ierr)
			return
		}
		errors.AbortWithInternal(c, err.Error(), nil)
		return
	}

	resp, err := s.client.DryRun(c.Request.Context(), &snap.Credential, envelope.Marshal())
	if err != nil {
		cerr := &errors.Canonical{Kind: errors.KindServerTransient, Message: err.Error()}
		s.track(c, "anthropic", model.ID, snap.Alias, false, cerr, start)
		c.JSON(cerr.HTTPStatus(), cerr.Anthropic())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		cerr := readUpstreamHTTPError(resp)
		s.reportOutcome(snap, cerr)
		s.track(c, "anthropic", model.ID, snap.Alias, false, cerr, start)
		c.JSON(cerr.HTTPStatus(), cerr.Anthropic())
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		errors.AbortWithInternal(c, "failed to read dry-run response", nil)
		return
	}
	parsed, err := aiserver.UnmarshalGetPromptDryRunResponse(body)
	if err != nil {
		errors.AbortWithInternal(c, "failed to decode dry-run response", nil)
		return
	}

	var count int32
	if tc := parsed.FullConversationTokenCount; tc != nil && tc.NumTokens != nil {
		count = *tc.NumTokens
	} else if tc := parsed.UserMessageTokenCount; tc != nil && tc.NumTokens != nil {
		count = *tc.NumTokens
	}

	s.track(c, "anthropic", model.ID, snap.Alias, false, nil, start)
	c.JSON(http.StatusOK, countTokensResponse{InputTokens: count})
}
