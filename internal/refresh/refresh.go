// Package refresh keeps pool credentials alive: session credentials are
// refreshed into new access tokens, access credentials are upgraded to
// long-lived ones through the upstream's PKCE-style handshake.
package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eternisai/cursor-bridge/internal/logger"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/eternisai/cursor-bridge/internal/upstream"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	pollAttempts = 5
	pollInterval = time.Second

	// Session tokens are refreshed when they expire within this window.
	nearExpiryWindow = 24 * time.Hour
)

// Service serializes refresh and upgrade per credential key.
type Service struct {
	store  *token.Store
	client *upstream.Client
	log    *logger.Logger
	group  singleflight.Group
}

func NewService(store *token.Store, client *upstream.Client, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		client: client,
		log:    log.WithComponent("refresh"),
	}
}

// RenewByKey refreshes or upgrades the credential with the given key.
// Concurrent calls for the same key share one attempt.
func (s *Service) RenewByKey(ctx context.Context, key token.Key) error {
	_, err, _ := s.group.Do(key.UserID+"/"+key.Randomness, func() (interface{}, error) {
		return nil, s.renew(ctx, key)
	})
	return err
}

func (s *Service) renew(ctx context.Context, key token.Key) error {
	var cred token.Credential
	found := false
	s.store.MutateByKey(key, func(rec *token.Record) { //nolint:errcheck
		cred = rec.Credential
		if rec.Credential.Secondary != nil {
			sec := *rec.Credential.Secondary
			cred.Secondary = &sec
		}
		found = true
	})
	if !found {
		return fmt.Errorf("refresh: credential not in pool")
	}

	switch {
	case cred.Primary.Role == token.RoleSession:
		newTok, err := s.refreshSession(ctx, cred.Primary)
		if err == nil {
			return s.install(key, newTok, false)
		}
		s.log.Warn("session refresh failed", slog.String("user_id", cred.Primary.UserID), slog.String("error", err.Error()))
		if cred.Secondary != nil {
			upgraded, upErr := s.upgradeAccess(ctx, *cred.Secondary)
			if upErr != nil {
				return fmt.Errorf("refresh: %w; upgrade fallback: %v", err, upErr)
			}
			return s.install(key, upgraded, false)
		}
		return err
	default:
		upgraded, err := s.upgradeAccess(ctx, cred.Primary)
		if err != nil {
			return err
		}
		// The old access token remains usable until expiry; keep it as
		// the fallback.
		return s.install(key, upgraded, true)
	}
}

// install replaces the primary token under the store's write guard; the
// key index and queue entry follow automatically.
func (s *Service) install(key token.Key, newTok token.Token, keepOldAsSecondary bool) error {
	return s.store.MutateByKey(key, func(rec *token.Record) {
		if keepOldAsSecondary {
			old := rec.Credential.Primary
			rec.Credential.Secondary = &old
		}
		rec.Credential.Primary = newTok
		rec.Health.ReportSuccess()
	})
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

func (s *Service) refreshSession(ctx context.Context, session token.Token) (token.Token, error) {
	req, err := s.client.RefreshTokenRequest(ctx, session.BearerJWT())
	if err != nil {
		return token.Token{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return token.Token{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return token.Token{}, fmt.Errorf("refresh: upstream status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return token.Token{}, err
	}
	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return token.Token{}, fmt.Errorf("refresh: decode response: %w", err)
	}
	if parsed.AccessToken == "" {
		return token.Token{}, fmt.Errorf("refresh: empty access token")
	}
	return token.ParseToken(parsed.AccessToken)
}

// pkcePair generates the verifier and its S256 challenge, both 43
// characters of unpadded base64url.
func pkcePair() (verifier, challenge string) {
	var raw [32]byte
	rand.Read(raw[:]) //nolint:errcheck
	verifier = base64.RawURLEncoding.EncodeToString(raw[:])
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge
}

type pollResponse struct {
	AccessToken string `json:"accessToken"`
}

func (s *Service) upgradeAccess(ctx context.Context, access token.Token) (token.Token, error) {
	verifier, challenge := pkcePair()
	handshakeID := uuid.New()

	req, err := s.client.UpgradeRequest(ctx, handshakeID, challenge, access.Raw)
	if err != nil {
		return token.Token{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return token.Token{}, err
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return token.Token{}, fmt.Errorf("upgrade: handshake status %d", resp.StatusCode)
	}

	for attempt := 0; attempt < pollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(pollInterval):
			case <-ctx.Done():
				return token.Token{}, ctx.Err()
			}
		}

		pollReq, err := s.client.PollRequest(ctx, handshakeID, verifier)
		if err != nil {
			return token.Token{}, err
		}
		pollResp, err := s.client.Do(pollReq)
		if err != nil {
			return token.Token{}, err
		}

		switch pollResp.StatusCode {
		case http.StatusOK:
			body, err := io.ReadAll(io.LimitReader(pollResp.Body, 1<<20))
			pollResp.Body.Close()
			if err != nil {
				return token.Token{}, err
			}
			var parsed pollResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				return token.Token{}, fmt.Errorf("upgrade: decode poll response: %w", err)
			}
			if parsed.AccessToken == "" {
				return token.Token{}, fmt.Errorf("upgrade: empty access token")
			}
			return token.ParseToken(parsed.AccessToken)
		case http.StatusNotFound:
			// Not issued yet, keep polling.
			io.Copy(io.Discard, pollResp.Body) //nolint:errcheck
			pollResp.Body.Close()
		default:
			io.Copy(io.Discard, pollResp.Body) //nolint:errcheck
			pollResp.Body.Close()
			return token.Token{}, fmt.Errorf("upgrade: poll status %d", pollResp.StatusCode)
		}
	}
	return token.Token{}, fmt.Errorf("upgrade: token not issued after %d polls", pollAttempts)
}

// Sweep renews every credential whose primary token is near expiry.
// Wired to the cron scheduler.
func (s *Service) Sweep(ctx context.Context) {
	for _, ent := range s.store.List() {
		snap, ok := s.store.GetByID(ent.ID)
		if !ok {
			continue
		}
		if !snap.Credential.Primary.NearExpiry(nearExpiryWindow) {
			continue
		}
		if err := s.RenewByKey(ctx, snap.Credential.Primary.Key()); err != nil {
			s.log.Warn("credential renewal failed",
				slog.String("alias", snap.Alias),
				slog.String("error", err.Error()))
		} else {
			s.log.Info("credential renewed", slog.String("alias", snap.Alias))
		}
	}
}
