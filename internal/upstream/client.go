package upstream

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/eternisai/cursor-bridge/internal/clock"
	"github.com/eternisai/cursor-bridge/internal/config"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/google/uuid"
	"golang.org/x/net/http2"
)

// RPC paths on the API host.
const (
	pathStreamUnifiedChat = "/aiserver.v1.AiService/StreamUnifiedChat"
	pathGetPromptDryRun   = "/aiserver.v1.AiService/GetPromptDryRun"
	pathAvailableModels   = "/aiserver.v1.AiService/AvailableModels"

	pathTokenRefresh = "/refresh"
	pathTokenUpgrade = "/upgrade"
	pathTokenPoll    = "/poll"
)

// refreshClientID is the OAuth client id the upstream expects on
// refresh-token grants.
const refreshClientID = "KbZUR41cY7W6zRSdpSUJ7I7mLYBKOCmB"

const (
	contentTypeProto        = "application/proto"
	contentTypeConnectProto = "application/connect+proto"
)

// Client owns the shared HTTP/2 transport and builds upstream requests
// with the per-credential device headers.
type Client struct {
	http    *http.Client
	apiBase string
	webBase string
	proxies *ProxyPool
}

func baseTransport(cfg *config.Config) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        cfg.ProxyMaxIdleConns,
		MaxIdleConnsPerHost: cfg.ProxyMaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.ProxyMaxConnsPerHost,
		IdleConnTimeout:     time.Duration(cfg.ProxyIdleConnTimeout) * time.Second,
	}
}

func NewClient(cfg *config.Config) (*Client, error) {
	transport := baseTransport(cfg)
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("upstream: configure http2: %w", err)
	}

	return &Client{
		http:    &http.Client{Transport: transport},
		apiBase: "https://" + cfg.UpstreamAPIHost,
		webBase: "https://" + cfg.UpstreamWebHost,
		proxies: NewProxyPool(func() *http.Transport { return baseTransport(cfg) }),
	}, nil
}

// Proxies exposes the named outbound proxy pool.
func (c *Client) Proxies() *ProxyPool { return c.proxies }

// doFor routes through the credential's named proxy when one is
// configured, otherwise the shared transport.
func (c *Client) doFor(req *http.Request, cred *token.Credential) (*http.Response, error) {
	if c.proxies != nil && cred.ProxyName != nil {
		if t := c.proxies.Transport(*cred.ProxyName); t != nil {
			return (&http.Client{Transport: t}).Do(req)
		}
	}
	return c.http.Do(req)
}

// NewClientForBase builds a client against explicit base URLs; tests
// point it at local fixtures.
func NewClientForBase(apiBase, webBase string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		http:    hc,
		apiBase: apiBase,
		webBase: webBase,
		proxies: NewProxyPool(func() *http.Transport { return &http.Transport{} }),
	}
}

// Do forwards to the shared client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

func (c *Client) apiURL(path string) string { return c.apiBase + path }
func (c *Client) webURL(path string) string { return c.webBase + path }

// newAiServiceRequest builds a POST to the given AI service RPC with the
// full device header set. Streaming RPCs use the connect+proto content
// type, unary ones plain proto.
func (c *Client) newAiServiceRequest(ctx context.Context, path string, cred *token.Credential, body []byte, stream bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(path), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	traceID := uuid.NewString()

	h := req.Header
	h.Set("authorization", "Bearer "+cred.Primary.BearerJWT())
	h.Set("connect-protocol-version", "1")
	if stream {
		h.Set("content-type", contentTypeConnectProto)
		h.Set("connect-accept-encoding", "gzip")
		h.Set("connect-content-encoding", "gzip")
	} else {
		// Unary calls carry the bare message; the transport negotiates
		// response compression on its own.
		h.Set("content-type", contentTypeProto)
	}
	h.Set("user-agent", "connect-es/1.6.1")
	h.Set("x-amzn-trace-id", "Root="+traceID)
	h.Set("x-client-key", cred.ClientKeyHex())
	h.Set("x-cursor-checksum", cred.Checksum)
	h.Set("x-cursor-client-version", config.CurrentSettings().CursorClientVersion)
	if cred.ConfigVersion != nil {
		h.Set("x-cursor-config-version", cred.ConfigVersion.String())
	}
	h.Set("x-cursor-streaming", "true")
	h.Set("x-cursor-timezone", cred.TimezoneName())
	h.Set("x-ghost-mode", "true")
	h.Set("x-new-onboarding-completed", "false")
	h.Set("x-request-id", traceID)
	h.Set("x-session-id", cred.SessionID.String())
	return req, nil
}

// StreamChat opens the streaming chat RPC. The body must already be a
// framed envelope.
func (c *Client) StreamChat(ctx context.Context, cred *token.Credential, body []byte) (*http.Response, error) {
	req, err := c.newAiServiceRequest(ctx, pathStreamUnifiedChat, cred, body, true)
	if err != nil {
		return nil, err
	}
	return c.doFor(req, cred)
}

// DryRun calls the token-counting sibling of the chat RPC.
func (c *Client) DryRun(ctx context.Context, cred *token.Credential, body []byte) (*http.Response, error) {
	req, err := c.newAiServiceRequest(ctx, pathGetPromptDryRun, cred, body, false)
	if err != nil {
		return nil, err
	}
	return c.doFor(req, cred)
}

// AvailableModels fetches the upstream model list.
func (c *Client) AvailableModels(ctx context.Context, cred *token.Credential, body []byte) (*http.Response, error) {
	req, err := c.newAiServiceRequest(ctx, pathAvailableModels, cred, body, false)
	if err != nil {
		return nil, err
	}
	return c.doFor(req, cred)
}

// RefreshTokenRequest builds the refresh-grant POST for a session
// credential.
func (c *Client) RefreshTokenRequest(ctx context.Context, sessionToken string) (*http.Request, error) {
	body := fmt.Sprintf(`{"grant_type":"refresh_token","client_id":%q,"refresh_token":%q}`,
		refreshClientID, sessionToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(pathTokenRefresh), bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-ghost-mode", "true")
	return req, nil
}

// UpgradeRequest starts the PKCE-style login-deep-control handshake.
func (c *Client) UpgradeRequest(ctx context.Context, id uuid.UUID, challenge string, accessToken string) (*http.Request, error) {
	body := fmt.Sprintf(`{"uuid":%q,"challenge":%q}`, id.String(), challenge)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webURL(pathTokenUpgrade), bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("referer", fmt.Sprintf("%s/loginDeepControl?challenge=%s&uuid=%s&mode=login", c.webBase, challenge, id))
	req.Header.Set("cookie", "WorkosCursorSessionToken="+accessToken)
	return req, nil
}

// PollRequest polls the handshake for its issued token.
func (c *Client) PollRequest(ctx context.Context, id uuid.UUID, verifier string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(pathTokenPoll), nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("uuid", id.String())
	q.Set("verifier", verifier)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("x-ghost-mode", "true")
	return req, nil
}

// UsageEventsRequest asks the web dashboard for the account's most
// recent filtered usage events; the response carries per-request token
// counts.
func (c *Client) UsageEventsRequest(ctx context.Context, cred *token.Credential) (*http.Request, error) {
	body := []byte(`{"teamId":0,"pageSize":1,"page":1}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webURL("/api/dashboard/get-filtered-usage-events"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("cookie", "WorkosCursorSessionToken="+cred.Primary.UserID+"%3A%3A"+cred.Primary.BearerJWT())
	return req, nil
}

// RequestTimestamp is the corrected local timestamp used in
// environment_info.
func RequestTimestamp() string {
	return clock.LocalTimestamp()
}
