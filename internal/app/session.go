package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/ports"
	"chzzk-archiver/internal/state"
)

// maxRefreshFailures: au-delà, on arrête de tenter le refresh de session
// jusqu'au prochain redémarrage (le cookie est probablement mort).
const maxRefreshFailures = 2

// SessionService prouve et entretient la session authentifiée Naver
// requise pour capturer les contenus adultes.
type SessionService struct {
	logger zerolog.Logger
	api    ports.SessionAPI
	store  *state.Store

	mu           sync.Mutex
	refreshFails int
}

func NewSessionService(logger zerolog.Logger, api ports.SessionAPI, store *state.Store) *SessionService {
	return &SessionService{
		logger: logger.With().Str("component", "session").Logger(),
		api:    api,
		store:  store,
	}
}

// CookieHeader construit la valeur du header Cookie passée aux outils de
// capture pour les contenus adultes.
func (s *SessionService) CookieHeader() string {
	cred := s.store.Credential.Read()
	return fmt.Sprintf("NID_SES=%s;NID_AUT=%s", cred.Session, cred.Auth)
}

// EnsureAdultAccess renvoie true si une session authentifiée valide est
// prouvée, en tentant un refresh si la vérification échoue. Tout échec
// n'annule que la capture concernée, jamais le cycle appelant.
func (s *SessionService) EnsureAdultAccess(ctx context.Context) bool {
	cred := s.store.Credential.Read()
	if !cred.Complete() {
		s.logger.Warn().Msg("no auth cookie available for adult content")
		return false
	}

	if err := s.api.VerifySession(ctx, cred); err == nil {
		return true
	}

	s.mu.Lock()
	disabled := s.refreshFails > maxRefreshFailures
	s.mu.Unlock()
	if disabled {
		s.logger.Warn().Msg("session refresh disabled after repeated failures")
		return false
	}

	session, err := s.api.RefreshSession(ctx, cred)
	if err != nil {
		s.mu.Lock()
		s.refreshFails++
		s.mu.Unlock()
		s.logger.Warn().Err(err).Msg("session refresh failed")
		return false
	}

	if err := s.store.Credential.Mutate(ctx, func(c domain.Credential) domain.Credential {
		c.Session = session
		return c
	}); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist refreshed session")
	}
	return true
}
