package proxy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eternisai/cursor-bridge/internal/auth"
	"github.com/eternisai/cursor-bridge/internal/config"
	"github.com/eternisai/cursor-bridge/internal/logger"
	"github.com/eternisai/cursor-bridge/internal/refresh"
	"github.com/eternisai/cursor-bridge/internal/request_tracking"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/eternisai/cursor-bridge/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// contentFrame fabricates one framed StreamUnifiedChatResponse.
func contentFrame(t *testing.T, text, thinking string) []byte {
	t.Helper()
	var body []byte
	if text != "" {
		body = protowire.AppendTag(body, 1, protowire.BytesType)
		body = protowire.AppendString(body, text)
	}
	if thinking != "" {
		var th []byte
		th = protowire.AppendTag(th, 1, protowire.BytesType)
		th = protowire.AppendString(th, thinking)
		body = protowire.AppendTag(body, 25, protowire.BytesType)
		body = protowire.AppendBytes(body, th)
	}
	var payload []byte
	payload = protowire.AppendTag(payload, 2, protowire.BytesType)
	payload = protowire.AppendBytes(payload, body)

	frame, err := upstream.EncodeFrame(payload, false)
	require.NoError(t, err)
	return frame
}

func errorFrame(t *testing.T, code, message string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
	require.NoError(t, err)
	frame, err := upstream.EncodeFrame(payload, false)
	require.NoError(t, err)
	frame[0] |= 0b10
	return frame
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

// newTestStack wires a Server against a fabricated upstream.
func newTestStack(t *testing.T, upstreamHandler http.HandlerFunc) (*gin.Engine, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(upstreamHandler)

	config.AppConfig = &config.Config{
		AuthKey:             "admin-key",
		ShareKey:            "share-key",
		TokensFilePath:      t.TempDir() + "/tokens.bin",
		DefaultInstructions: "Be helpful. {{currentDateTime}}",
	}

	store := token.NewStore(0)
	tok, err := token.ParseToken(fakeJWT("auth0|user_1", 1))
	require.NoError(t, err)
	_, err = store.Add(token.NewCredential(tok), "primary")
	require.NoError(t, err)

	log := logger.New(logger.Config{})
	client := upstream.NewClientForBase(srv.URL, srv.URL, srv.Client())
	refreshSvc := refresh.NewService(store, client, log)
	metrics := request_tracking.NewMetrics(prometheus.NewRegistry())
	tracking := request_tracking.NewService(request_tracking.Config{Workers: 1, BufferSize: 16, Capacity: 16}, metrics, log)

	server := NewServer(store, client, refreshSvc, tracking, log)
	m := auth.NewMiddleware(auth.Keys{AuthKey: "admin-key", ShareKey: "share-key"})

	router := gin.New()
	v1 := router.Group("/v1")
	v1.Use(m.RequireAuth())
	v1.POST("/chat/completions", server.ChatCompletions)
	v1.POST("/messages", server.Messages)

	return router, func() {
		tracking.Shutdown()
		srv.Close()
	}
}

func postJSON(router *gin.Engine, path, key string, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", key)
	router.ServeHTTP(w, req)
	return w
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	router, done := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/aiserver.v1.AiService/StreamUnifiedChat", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("x-cursor-checksum"))
		assert.NotEmpty(t, r.Header.Get("x-client-key"))
		assert.True(t, strings.HasPrefix(r.Header.Get("authorization"), "Bearer "))
		w.Write(contentFrame(t, "pong", "")) //nolint:errcheck
	})
	defer done()

	w := postJSON(router, "/v1/chat/completions", "share-key",
		`{"model":"gpt-5","messages":[{"role":"user","content":"ping"}],"stream":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Object  string `json:"object"`
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chat.completion", resp.Object)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "pong", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
}

func TestChatCompletionsStreamingWithThinking(t *testing.T) {
	router, done := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(contentFrame(t, "", "α")) //nolint:errcheck
		w.Write(contentFrame(t, "β", "")) //nolint:errcheck
	})
	defer done()

	w := postJSON(router, "/v1/chat/completions", "share-key",
		`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	idxOpen := strings.Index(body, "<think>")
	idxAlpha := strings.Index(body, "α")
	idxClose := strings.Index(body, "</think>")
	idxBeta := strings.Index(body, "β")
	idxStop := strings.Index(body, `"finish_reason":"stop"`)
	idxDone := strings.Index(body, "data: [DONE]")

	for name, idx := range map[string]int{
		"<think>": idxOpen, "α": idxAlpha, "</think>": idxClose,
		"β": idxBeta, "finish": idxStop, "[DONE]": idxDone,
	} {
		require.GreaterOrEqual(t, idx, 0, "missing %s", name)
	}
	assert.Less(t, idxOpen, idxAlpha)
	assert.Less(t, idxAlpha, idxClose)
	assert.Less(t, idxClose, idxBeta)
	assert.Less(t, idxBeta, idxStop)
	assert.Less(t, idxStop, idxDone)
}

func TestChatCompletionsUpstreamErrorBeforeOutput(t *testing.T) {
	router, done := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(errorFrame(t, "ERROR_CONVERSATION_TOO_LONG", "conversation too long")) //nolint:errcheck
	})
	defer done()

	w := postJSON(router, "/v1/chat/completions", "share-key",
		`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request_error")
}

func TestChatCompletionsMidStreamError(t *testing.T) {
	router, done := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(contentFrame(t, "hello", ""))                                          //nolint:errcheck
		w.Write(errorFrame(t, "ERROR_CONVERSATION_TOO_LONG", "conversation too long")) //nolint:errcheck
	})
	defer done()

	w := postJSON(router, "/v1/chat/completions", "share-key",
		`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "hello")
	assert.Contains(t, body, `"type":"invalid_request_error"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"))
}

func TestMessagesStreaming(t *testing.T) {
	router, done := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(contentFrame(t, "hi there", "")) //nolint:errcheck
	})
	defer done()

	w := postJSON(router, "/v1/messages", "share-key",
		`{"model":"claude-4.5-sonnet","max_tokens":100,"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	for _, ev := range []string{
		"event: message_start", "event: content_block_start", "event: ping",
		"event: content_block_delta", "event: content_block_stop",
		"event: message_delta", "event: message_stop",
	} {
		assert.Contains(t, body, ev)
	}
	assert.Contains(t, body, "hi there")
}

func TestMessagesAnthropicErrorEvent(t *testing.T) {
	router, done := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(contentFrame(t, "partial", ""))                             //nolint:errcheck
		w.Write(errorFrame(t, "ERROR_CONVERSATION_TOO_LONG", "over limit")) //nolint:errcheck
	})
	defer done()

	w := postJSON(router, "/v1/messages", "share-key",
		`{"model":"claude-4.5-sonnet","max_tokens":10,"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, `"invalid_request_error"`)
}

func TestUnknownModelRejected(t *testing.T) {
	router, done := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the upstream")
	})
	defer done()

	w := postJSON(router, "/v1/chat/completions", "share-key",
		`{"model":"made-up-model","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request_error")
}

func TestNoCredentialsAvailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config.AppConfig = &config.Config{DefaultInstructions: "x"}
	store := token.NewStore(0)
	log := logger.New(logger.Config{})
	client := upstream.NewClientForBase("http://127.0.0.1:0", "http://127.0.0.1:0", nil)
	metrics := request_tracking.NewMetrics(prometheus.NewRegistry())
	tracking := request_tracking.NewService(request_tracking.Config{Workers: 1, BufferSize: 4, Capacity: 4}, metrics, log)
	defer tracking.Shutdown()
	server := NewServer(store, client, refresh.NewService(store, client, log), tracking, log)
	m := auth.NewMiddleware(auth.Keys{ShareKey: "share-key"})

	r := gin.New()
	r.POST("/v1/chat/completions", m.RequireAuth(), server.ChatCompletions)

	w := postJSON(r, "/v1/chat/completions", "share-key",
		`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "no available credentials")
}
