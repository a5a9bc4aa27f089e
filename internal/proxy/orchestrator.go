// Package proxy wires the per-request pipeline: select a credential,
// translate the request, dispatch upstream, decode the framed stream,
// and emit the surface's response format.
package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/eternisai/cursor-bridge/internal/auth"
	"github.com/eternisai/cursor-bridge/internal/clock"
	"github.com/eternisai/cursor-bridge/internal/config"
	"github.com/eternisai/cursor-bridge/internal/errors"
	"github.com/eternisai/cursor-bridge/internal/logger"
	"github.com/eternisai/cursor-bridge/internal/refresh"
	"github.com/eternisai/cursor-bridge/internal/request_tracking"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/eternisai/cursor-bridge/internal/translate"
	"github.com/eternisai/cursor-bridge/internal/upstream"
)

// Server hosts every public chat handler.
type Server struct {
	store    *token.Store
	client   *upstream.Client
	refresh  *refresh.Service
	tracking *request_tracking.Service
	log      *logger.Logger
	models   *modelCache
}

func NewServer(store *token.Store, client *upstream.Client, refreshSvc *refresh.Service, tracking *request_tracking.Service, log *logger.Logger) *Server {
	return &Server{
		store:    store,
		client:   client,
		refresh:  refreshSvc,
		tracking: tracking,
		log:      log.WithComponent("proxy"),
		models:   newModelCache(),
	}
}

// errNoCredentials is returned when every queue comes up empty.
var errNoCredentials = &errors.Canonical{
	Kind:    errors.KindServerTransient,
	Message: "no available credentials",
}

// selectCredential resolves a policy into a concrete credential
// snapshot. Admin requests walk the privileged queues (or force an
// alias), shared requests the normal queues, and self-bearer requests
// wrap the caller's own token in an ephemeral credential.
func (s *Server) selectCredential(policy auth.Policy) (token.Snapshot, *errors.Canonical) {
	switch policy.Kind {
	case auth.PolicySelf:
		cred := token.NewCredential(*policy.SelfToken)
		return token.Snapshot{ID: -1, Alias: "self", Credential: cred}, nil
	case auth.PolicyAdmin:
		if policy.ForcedAlias != "" {
			snap, ok := s.store.GetByAlias(policy.ForcedAlias)
			if !ok {
				return token.Snapshot{}, &errors.Canonical{
					Kind:    errors.KindInvalidRequest,
					Message: "unknown credential alias " + policy.ForcedAlias,
				}
			}
			return snap, nil
		}
		return s.selectFromQueues(token.PrivilegedPaid, token.PrivilegedFree)
	default:
		return s.selectFromQueues(token.NormalPaid, token.NormalFree)
	}
}

func (s *Server) selectFromQueues(queues ...token.QueueType) (token.Snapshot, *errors.Canonical) {
	now := clock.NowSecs()
	for _, qt := range queues {
		if snap, ok := s.store.Select(qt, now); ok {
			return snap, nil
		}
	}
	return token.Snapshot{}, errNoCredentials
}

// reportOutcome feeds the health tracker per the error policy: client
// input errors never arrive here; transient upstream trouble is not
// counted; auth errors additionally schedule a renewal.
func (s *Server) reportOutcome(snap token.Snapshot, cerr *errors.Canonical) {
	if snap.ID < 0 {
		return // self-bearer credentials are not pooled
	}

	key := snap.Credential.Primary.Key()
	if cerr == nil {
		s.store.MutateByKey(key, func(rec *token.Record) { //nolint:errcheck
			rec.Health.ReportSuccess()
		})
		return
	}

	if !cerr.CountsAgainstHealth() {
		return
	}

	var kind token.FailureKind
	switch cerr.Kind {
	case errors.KindBadCredential:
		kind = token.FailureAuth
	case errors.KindRateLimited:
		kind = token.FailureRateLimited
	case errors.KindUsageLimitExceeded:
		kind = token.FailureUsageLimit
	default:
		kind = token.FailureTransient
	}

	now := clock.NowSecs()
	s.store.MutateByKey(key, func(rec *token.Record) { //nolint:errcheck
		rec.Health.ReportFailure(kind, now)
	})

	if cerr.Kind == errors.KindBadCredential {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.refresh.RenewByKey(ctx, key); err != nil {
				s.log.Warn("credential renewal after auth error failed",
					slog.String("alias", snap.Alias),
					slog.String("error", err.Error()))
			}
		}()
	}
}

// dispatch frames the envelope and opens the streaming RPC. Transport
// errors are retried once against the same credential.
func (s *Server) dispatch(ctx context.Context, snap token.Snapshot, envelope []byte) (*http.Response, *errors.Canonical) {
	body, err := upstream.EncodeFrame(envelope, true)
	if err != nil {
		return nil, &errors.Canonical{Kind: errors.KindUnknown, Message: err.Error()}
	}

	var resp *http.Response
	for attempt := 0; attempt < 2; attempt++ {
		resp, err = s.client.StreamChat(ctx, &snap.Credential, body)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &errors.Canonical{Kind: errors.KindServerTransient, Message: "upstream dispatch failed: " + err.Error()}
}

// translator builds a request-scoped translator from the active
// settings.
func (s *Server) translator() *translate.Translator {
	settings := config.CurrentSettings()
	images := translate.NewImageHandler(settings.VisionAbility, http.DefaultClient)
	return translate.NewTranslator(settings, images, config.AppConfig.DefaultInstructions)
}
