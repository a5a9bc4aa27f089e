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
	"github.com/eternisai/cursor-bridge/internal/request_tracking"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/eternisai/cursor-bridge/internal/translate"
	"github.com/eternisai/cursor-bridge/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// openAIInputError renders a client-input defect in the OpenAI error
// shape.
func openAIInputError(c *gin.Context, ierr *translate.InputError) {
	c.JSON(http.StatusBadRequest, errors.OpenAIError{Error: errors.OpenAIErrorDetail{
		Message: ierr.Message,
		Type:    "invalid_request_error",
		Code:    ierr.Code,
	}})
}

// ChatCompletions handles POST /v1/chat/completions.
func (s *Server) ChatCompletions(c *gin.Context) {
	start := time.Now()
	log := s.log.WithContext(c.Request.Context())

	policy, ok := auth.GetPolicy(c)
	if !ok {
		errors.AbortWithUnauthorized(c, "missing credential policy", nil)
		return
	}

	var req translate.OpenAIChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		openAIInputError(c, &translate.InputError{Code: "invalid_json", Message: err.Error()})
		return
	}

	model := translate.ParseModel(req.Model)
	if !s.models.Known(model.Base) {
		openAIInputError(c, &translate.InputError{
			Code:    "model_not_found",
			Message: fmt.Sprintf("model %q is not supported", req.Model),
		})
		return
	}

	snap, cerr := s.selectCredential(policy)
	if cerr != nil {
		c.JSON(cerr.HTTPStatus(), cerr.OpenAI())
		return
	}

	ctx := logger.WithAlias(logger.WithSurface(c.Request.Context(), "openai"), snap.Alias)
	c.Request = c.Request.WithContext(ctx)
	log = s.log.WithContext(ctx)

	envelope, err := s.translator().EncodeOpenAI(c.Request.Context(), &req, model)
	if err != nil {
		if ierr, ok := err.(*translate.InputError); ok {
			openAIInputError(c, ierr)
			return
		}
		errors.AbortWithInternal(c, err.Error(), nil)
		return
	}

	resp, cerr := s.dispatch(c.Request.Context(), snap, envelope.Marshal())
	if cerr != nil {
		s.reportOutcome(snap, cerr)
		s.track(c, "openai", model.ID, snap.Alias, req.Stream, cerr, start)
		c.JSON(cerr.HTTPStatus(), cerr.OpenAI())
		return
	}

	if resp.StatusCode != http.StatusOK {
		cerr := readUpstreamHTTPError(resp)
		s.reportOutcome(snap, cerr)
		s.track(c, "openai", model.ID, snap.Alias, req.Stream, cerr, start)
		c.JSON(cerr.HTTPStatus(), cerr.OpenAI())
		return
	}

	responseID := "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if req.Stream {
		s.streamOpenAI(c, log, resp, snap, &req, model, responseID, start)
	} else {
		s.completeOpenAI(c, log, resp, snap, &req, model, responseID, start)
	}
}

// streamOpenAI drives the decoder and the chunk emitter.
func (s *Server) streamOpenAI(c *gin.Context, log *logger.Logger, resp *http.Response, snap token.Snapshot, req *translate.OpenAIChatRequest, model translate.Model, responseID string, start time.Time) {
	body, drop := upstream.NewDroppableStream(resp.Body)
	defer body.Close()
	go func() {
		<-c.Request.Context().Done()
		drop.Drop()
	}()

	decoder := upstream.NewStreamDecoder()
	var sink *sseWriter
	var stream *openAIStream
	includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage

	ensure := func() {
		if sink == nil {
			sink = newSSEWriter(c)
			stream = newOpenAIStream(sink, responseID, model.ID, time.Now().Unix(), includeUsage, config.CurrentSettings().WebReferencesIncluded)
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
						// Nothing sent yet; fail the request as plain JSON.
						s.reportOutcome(snap, finalErr)
						s.track(c, "openai", model.ID, snap.Alias, true, finalErr, start)
						c.JSON(finalErr.HTTPStatus(), finalErr.OpenAI())
						return
					}
					stream.HandleError(finalErr) //nolint:errcheck
					break readLoop
				}
				ensure()
				if err := stream.Handle(ev); err != nil {
					log.Warn("client write failed", slog.String("error", err.Error()))
					s.track(c, "openai", model.ID, snap.Alias, true, nil, start)
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
		for _, ev := range decoder.Finish() {
			if err := stream.Handle(ev); err != nil {
				return
			}
		}
		if includeUsage && usageChecksEnabled(config.CurrentSettings().ModelUsageChecks, model.Base) {
			if usage := s.fetchUsage(c.Request.Context(), &snap.Credential); usage != nil {
				stream.FinishUsage(usage) //nolint:errcheck
			}
		}
	}

	if sink != nil {
		sink.WriteDone() //nolint:errcheck
	}

	s.reportOutcome(snap, finalErr)
	s.track(c, "openai", model.ID, snap.Alias, true, finalErr, start)
}

// completeOpenAI accumulates the whole stream into one chat.completion
// body, concatenating thinking and content as <think>...</think>... when
// both exist.
func (s *Server) completeOpenAI(c *gin.Context, log *logger.Logger, resp *http.Response, snap token.Snapshot, req *translate.OpenAIChatRequest, model translate.Model, responseID string, start time.Time) {
	body, drop := upstream.NewDroppableStream(resp.Body)
	defer body.Close()
	go func() {
		<-c.Request.Context().Done()
		drop.Drop()
	}()

	decoder := upstream.NewStreamDecoder()
	includeWebRefs := config.CurrentSettings().WebReferencesIncluded
	var content, thinking strings.Builder
	var finalErr *errors.Canonical

	buf := make([]byte, 32*1024)
	for finalErr == nil {
		n, readErr := body.Read(buf)
		if n > 0 {
			events, decErr := decoder.Decode(buf[:n])
			if decErr != nil {
				break
			}
			for _, ev := range events {
				switch ev.Kind {
				case upstream.EventContent:
					content.WriteString(ev.Text)
				case upstream.EventThinking:
					if ev.Thinking != nil {
						thinking.WriteString(ev.Thinking.Text)
					}
				case upstream.EventWebReferences:
					if includeWebRefs {
						content.WriteString(formatWebReferences(ev.WebReferences))
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
	s.track(c, "openai", model.ID, snap.Alias, false, finalErr, start)

	if finalErr != nil {
		c.JSON(finalErr.HTTPStatus(), finalErr.OpenAI())
		return
	}

	text := strings.TrimPrefix(content.String(), "\n\n")
	if thinking.Len() > 0 {
		text = thinkingTagOpen + thinking.String() + thinkingTagClose + text
	}

	finish := "stop"
	if decoder.SawToolCall() {
		finish = "tool_calls"
	}

	completion := translate.OpenAIChatCompletion{
		ID:      responseID,
		Object:  objectChatCompletion,
		Created: time.Now().Unix(),
		Model:   model.ID,
		Choices: []translate.OpenAIChoice{{
			Index:        0,
			Message:      &translate.OpenAIChoiceMessage{Role: "assistant", Content: text},
			FinishReason: &finish,
		}},
	}
	if usageChecksEnabled(config.CurrentSettings().ModelUsageChecks, model.Base) {
		if usage := s.fetchUsage(c.Request.Context(), &snap.Credential); usage != nil {
			completion.Usage = usage
		}
	}
	c.JSON(http.StatusOK, completion)
}

// readUpstreamHTTPError maps a non-200 upstream response onto the
// canonical taxonomy.
func readUpstreamHTTPError(resp *http.Response) *errors.Canonical {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	cerr := upstream.ParseErrorFrame(body)
	if cerr.Kind == errors.KindUnknown {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			cerr.Kind = errors.KindBadCredential
		case http.StatusTooManyRequests:
			cerr.Kind = errors.KindRateLimited
		case http.StatusServiceUnavailable, http.StatusBadGateway:
			cerr.Kind = errors.KindServerTransient
		}
		if cerr.Message == "" {
			cerr.Message = fmt.Sprintf("upstream status %d", resp.StatusCode)
		}
	}
	return cerr
}

// track records the request outcome.
func (s *Server) track(c *gin.Context, surface, model, alias string, stream bool, cerr *errors.Canonical, start time.Time) {
	info := request_tracking.RequestInfo{
		Surface: surface,
		Model:   model,
		Alias:   alias,
		Stream:  stream,
		Status:  "ok",
		Latency: time.Since(start),
	}
	if cerr != nil {
		info.Status = "error"
		info.ErrorKind = cerr.Kind.String()
	} else if c.Request.Context().Err() != nil {
		info.Status = "canceled"
	}
	s.tracking.LogAsync(c.Request.Context(), info)
}
