package iam

import (
	"context"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
)

// Service provides identity and access operations for the HTTP layer.
type Service interface {
	// =========================================================================
	// Authentication (Request Path)
	// =========================================================================

	// AuthenticateRequest tries the session cookie, then the bearer token.
	//
	// Returns:
	//   - (principal, nil): Authentication successful
	//   - (nil, nil): No credentials found (unauthenticated request)
	//   - (nil, error): Credentials present but invalid
	AuthenticateRequest(ctx context.Context, req AuthRequest) (*auth.Principal, error)

	// =========================================================================
	// Authorization (Request Path - Read-Only)
	// =========================================================================

	// Authorize checks the principal's primary role against the Casbin
	// policy. Principals not carrying the canonical session scheme are
	// always refused.
	Authorize(ctx context.Context, principal *auth.Principal, obj, act string) (bool, error)

	// PrimaryRole returns the single role authorization uses: the synced
	// local user's role, or one derived from the token roles when sync has
	// not seen the subject yet. Deactivated users get "".
	PrimaryRole(ctx context.Context, principal *auth.Principal) string

	// =========================================================================
	// Sessions (Login/Logout)
	// =========================================================================

	// Login exchanges username and password at the provider, validates the
	// issued access token and opens a cookie session for it.
	Login(ctx context.Context, username, password string) (*LoginResult, error)

	// Logout revokes a session by id.
	Logout(ctx context.Context, sessionID string) error

	// =========================================================================
	// Local users (read-only)
	// =========================================================================

	// GetLocalUser returns repository.ErrNotFound (wrapped) for unknown subjects.
	GetLocalUser(ctx context.Context, externalID string) (*models.LocalUser, error)
	ListLocalUsers(ctx context.Context, opts repository.ListOptions) ([]models.LocalUser, int, error)

	// RefreshUserRoleCache reloads primary roles from local_users. Called
	// after every sync run.
	RefreshUserRoleCache(ctx context.Context) error
}

// LoginResult is returned by Login. Token is the cookie value; only its
// hash is stored.
type LoginResult struct {
	Principal *auth.Principal
	Session   *models.Session
	Token     string
}
