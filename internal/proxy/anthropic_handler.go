package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eternisai/cursor-bridge/internal/auth"
	"github.com/eternisai/cursor-bridge/internal/config"
	"github.com/eternisai/cursor-bridge/internal/errors"
	"github.com/eternisai/cursor-bridge/internal/logger"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/eternisai/cursor-bridge/internal/translate"
	"github.com/eternisai/cursor-bridge/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func anthropicInputError(c *gin.Context, ierr *translate.InputError) {
	c.JSON(http.StatusBadRequest, errors.AnthropicError{
		Type: "error",
		Error: errors.AnthropicErrorDetail{
			Type:    "invalid_request_error",
			Message: ierr.Message,
		},
	})
}

// Messages handles POST /v1/messages.
func (s *Server) Messages(c *gin.Context) {
	start := time.Now()
	log := s.log.WithContext(c.Request.Context())

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
		anthropicInputError(c, &translate.InputError{
			Code:    "model_not_found",
			Message: fmt.Sprintf("model %q is not supported", req.Model),
		})
		return
	}

	snap, cerr := s.selectCredential(policy)
	if cerr != nil {
		c.JSON(cerr.HTTPStatus(), cerr.Anthropic())
		return
	}

	ctx := logger.WithAlias(logger.WithSurface(c.Request.Context(), "anthropic"), snap.Alias)
	c.Request = c.Request.WithContext(ctx)
	log = s.log.WithContext(ctx)

	envelope, err := s.translator().EncodeAnthropic(c.Request.Context(), &req, model)
	if err != nil {
		if ierr, ok := err.(*translate.InputError); ok {
			anthropicInputError(c, ierr)
			return
		}
		errors.AbortWithInternal(c, err.Error(), nil)
		return
	}

	resp, cerr := s.dispatch(c.Request.Context(), snap, envelope.Marshal())
	if cerr != nil {
		s.reportOutcome(snap, cerr)
		s.track(c, "anthropic", model.ID, snap.Alias, req.Stream, cerr, start)
		c.JSON(cerr.HTTPStatus(), cerr.Anthropic())
		return
	}

	if resp.StatusCode != http.StatusOK {
		cerr := readUpstreamHTTPError(resp)
		s.reportOutcome(snap, cerr)
		s.track(c, "anthropic", model.ID, snap.Alias, req.Stream, cerr, start)
		c.JSON(cerr.HTTPStatus(), cerr.Anthropic())
		return
	}

	messageID := "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if req.Stream {
		s.streamAnthropic(c, log, resp, snap, model, messageID, start)
	} else {
		s.completeAnthropic(c, log, resp, snap, model, messageID, start)
	}
}

func (s *Server) streamAnthropic(c *gin.Context, log *logger.Logger, resp *http.Response, snap token.Snapshot, model translate.Model, messageID string, start time.Time) {
	body, drop := upstream.NewDroppableStream(resp.Body)
	defer body.Close()
	go func() {
		<-c.Request.Context().Done()
		drop.Drop()
	}()

	decoder := upstream.NewStreamDecoder()
	var sink *sseWriter
	var stream *anthropicStream

	ensure := func() {
		if sink == nil {
			sink = newSSEWriter(c)
			stream = newAnthropicStream(sink, messageID, model.ID)
		}
	}

	var finalErr *errors.Canonical
	buf := make([]byte, 32*1024)

readLoop:
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			events, decErr := decoder.Decode(buf[:n])
			if decErr != nil {
				log.Warn("stream decode failed", slog.String("error", decErr.Error()))
				break readLoop
			}
			for _, ev := range events {
				if ev.Kind == upstream.EventUpstreamError {
					finalErr = ev.Err
					if sink == nil {
						s.reportOutcome(snap, finalErr)
						s.track(c, "anthropic", model.ID, snap.Alias, true, finalErr, start)
						c.JSON(finalErr.HTTPStatus(), finalErr.Anthropic())
						return
					}
					stream.HandleError(finalErr) //nolint:errcheck
					break readLoop
				}
				if ev.Kind == upstream.EventStreamEnd {
					continue // emitted after the read loop, with usage
				}
				ensure()
				if err := stream.Handle(ev); err != nil {
					log.Warn("client write failed", slog.String("error", err.Error()))
					s.track(c, "anthropic", model.ID, snap.Alias, true, nil, start)
					return
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF && c.Request.Context().Err() == nil {
				log.Warn("upstream read failed", slog.String("error", readErr.Error()))
			}
			break
		}
	}

	if finalErr == nil && c.Request.Context().Err() == nil {
		ensure()
		var usage *translate.AnthropicUsage
		if usageChecksEnabled(config.CurrentSettings().ModelUsageChecks, model.Base) {
			if u := s.fetchUsage(c.Request.Context(), &snap.Credential); u != nil {
				usage = &translate.AnthropicUsage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
			}
		}
		if !stream.AccumulatedArgsValid() {
			log.Warn("tool call arguments did not accumulate to valid JSON")
		}
		stream.FinishWithUsage(usage) //nolint:errcheck
	}

	s.reportOutcome(snap, finalErr)
	s.track(c, "anthropic", model.ID, snap.Alias, true, finalErr, start)
}

// completeAnthropic accumulates the stream into one Message body with
// typed content blocks.
func (s *Server) completeAnthropic(c *gin.Context, log *logger.Logger, resp *http.Response, snap token.Snapshot, model translate.Model, messageID string, start time.Time) {
	body, drop := upstream.NewDroppableStream(resp.Body)
	defer body.Close()
	go func() {
		<-c.Request.Context().Done()
		drop.Drop()
	}()

	decoder := upstream.NewStreamDecoder()
	var content, thinking, signature strings.Builder
	type toolAcc struct {
		id   string
		name string
		args strings.Builder
	}
	var tools []*toolAcc
	var finalErr *errors.Canonical

	buf := make([]byte, 32*1024)
	for finalErr == nil {
		n, readErr := body.Read(buf)
		if n > 0 {
			events, decErr := decoder.Decode(buf[:n])
			if decErr != nil {
				log.Warn("stream decode failed", slog.String("error", decErr.Error()))
				break
			}
			for _, ev := range events {
				switch ev.Kind {
				case upstream.EventContent:
					content.WriteString(ev.Text)
				case upstream.EventThinking:
					if ev.Thinking != nil {
						thinking.WriteString(ev.Thinking.Text)
						signature.WriteString(ev.Thinking.Signature)
					}
				case upstream.EventToolCallStart:
					tools = append(tools, &toolAcc{
						id:   translate.CompositeToolID(ev.ToolCall.ID, ev.ToolCall.ModelCallID),
						name: ev.ToolCall.Name,
					})
				case upstream.EventToolCallArgs:
					if len(tools) > 0 {
						tools[len(tools)-1].args.WriteString(ev.ToolCall.PartialJSON)
					}
				case upstream.EventUpstreamError:
					finalErr = ev.Err
				}
			}
		}
		if readErr != nil {
			break
		}
	}

	s.reportOutcome(snap, finalErr)
	s.track(c, "anthropic", model.ID, snap.Alias, false, finalErr, start)

	if finalErr != nil {
		c.JSON(finalErr.HTTPStatus(), finalErr.Anthropic())
		return
	}

	var blocks []translate.AnthropicContentBlock
	if thinking.Len() > 0 {
		blocks = append(blocks, translate.AnthropicContentBlock{
			Type:      "thinking",
			Thinking:  thinking.String(),
			Signature: signature.String(),
		})
	}
	if text := strings.TrimPrefix(content.String(), "\n\n"); text != "" {
		blocks = append(blocks, translate.AnthropicContentBlock{Type: "text", Text: text})
	}
	for _, t := range tools {
		args := t.args.String()
		if args == "" {
			args = "{}"
		}
		blocks = append(blocks, translate.AnthropicContentBlock{
			Type:  "tool_use",
			ID:    t.id,
			Name:  t.name,
			Input: []byte(args),
		})
	}

	stopReason := "end_turn"
	if decoder.SawToolCall() {
		stopReason = "tool_use"
	}

	msg := translate.AnthropicResponseMessage{
		ID:         messageID,
		Type:       "message",
		Role:       "assistant",
		Model:      model.ID,
		Content:    blocks,
		StopReason: &stopReason,
	}
	if usageChecksEnabled(config.CurrentSettings().ModelUsageChecks, model.Base) {
		if u := s.fetchUsage(c.Request.Context(), &snap.Credential); u != nil {
			msg.Usage = translate.AnthropicUsage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
		}
	}
	c.JSON(http.StatusOK, msg)
}
