package iam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
)

// Session failures. They surface to clients only as "unauthenticated".
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionRevoked  = errors.New("session has been revoked")
	ErrSessionExpired  = errors.New("session has expired")
)

// SessionAuthenticator authenticates requests using the store.session cookie.
//
//  1. Extract the cookie; return (nil, nil) if absent
//  2. Hash it and look the session up
//  3. Reject revoked or expired sessions
//  4. Rebuild the principal from the stored snapshot
//
// This authenticator is stateless and thread-safe.
type SessionAuthenticator struct {
	sessions repository.SessionRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewSessionAuthenticator(sessions repository.SessionRepository, logger *zap.Logger) *SessionAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionAuthenticator{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

func (a *SessionAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*auth.Principal, error) {
	token := req.cookie(auth.SessionCookieName)
	if token == "" {
		return nil, nil
	}

	session, err := a.sessions.GetByTokenHash(ctx, auth.HashSessionToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session.Revoked {
		return nil, ErrSessionRevoked
	}
	if session.Expired(a.now()) {
		return nil, ErrSessionExpired
	}

	principal := &auth.Principal{
		Subject:   session.Subject,
		Name:      session.Name,
		Email:     session.Email,
		Roles:     append([]string(nil), session.Roles...),
		Scheme:    session.Scheme,
		Transport: auth.TransportSession,
		SessionID: session.ID,
	}

	if err := a.sessions.UpdateLastUsed(ctx, session.ID); err != nil {
		a.logger.Warn("session last-used update failed", zap.String("session_id", session.ID), zap.Error(err))
	}

	return auth.UnifyScheme(principal, auth.SchemeSession), nil
}
