package iam

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/casbin/casbin/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
	"github.com/SevenofThr4wn/HardwareStore/internal/telemetry"
)

const tracerName = "storeapi/services/iam"

// ErrInvalidCredentials is returned by Login when the provider refuses the
// username/password pair.
var ErrInvalidCredentials = errors.New("invalid credentials")

// PasswordExchanger runs the password grant; *keycloak.Client implements it.
type PasswordExchanger interface {
	ExchangePasswordForToken(ctx context.Context, username, password string) (*oauth2.Token, error)
}

// iamService implements the Service interface.
type iamService struct {
	sessions  repository.SessionRepository
	users     repository.LocalUserRepository
	enforcer  casbin.IEnforcer
	validator BearerValidator
	provider  PasswordExchanger
	roleCache *UserRoleCache
	metrics   *telemetry.AuthMetrics
	logger    *zap.Logger

	sessionTTL   time.Duration
	fallbackRole string
	now          func() time.Time

	authenticators []Authenticator
}

// IAMServiceDependencies contains all dependencies for IAM service construction.
type IAMServiceDependencies struct {
	Sessions  repository.SessionRepository
	Users     repository.LocalUserRepository
	Enforcer  casbin.IEnforcer
	Validator BearerValidator
	Provider  PasswordExchanger
	Metrics   *telemetry.AuthMetrics // optional
	Logger    *zap.Logger
}

// IAMServiceConfig contains configuration for IAM service construction.
type IAMServiceConfig struct {
	SessionTTL   time.Duration
	FallbackRole string
}

// NewIAMService wires the authenticators and performs the initial user
// role cache load, which must succeed for the server to start.
func NewIAMService(ctx context.Context, deps IAMServiceDependencies, cfg IAMServiceConfig) (Service, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 8 * time.Hour
	}
	if cfg.FallbackRole == "" {
		cfg.FallbackRole = auth.RoleStaff
	}

	cache, err := NewUserRoleCache(ctx, deps.Users)
	if err != nil {
		return nil, err
	}

	svc := &iamService{
		sessions:     deps.Sessions,
		users:        deps.Users,
		enforcer:     deps.Enforcer,
		validator:    deps.Validator,
		provider:     deps.Provider,
		roleCache:    cache,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		sessionTTL:   cfg.SessionTTL,
		fallbackRole: cfg.FallbackRole,
		now:          func() time.Time { return time.Now().UTC() },
	}

	// Session cookie first: browsers may also carry stale bearer headers.
	svc.authenticators = []Authenticator{
		NewSessionAuthenticator(deps.Sessions, deps.Logger),
		NewBearerAuthenticator(deps.Validator),
	}
	return svc, nil
}

// AuthenticateRequest tries each authenticator in order. The first error or
// principal wins; all (nil, nil) means unauthenticated.
func (s *iamService) AuthenticateRequest(ctx context.Context, req AuthRequest) (*auth.Principal, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.AuthenticateRequest",
		attribute.Int("authenticator_count", len(s.authenticators)),
	)
	defer span.End()

	for _, authenticator := range s.authenticators {
		start := time.Now()
		principal, err := authenticator.Authenticate(ctx, req)
		elapsed := float64(time.Since(start).Microseconds()) / 1000

		transport := transportOf(authenticator)
		if err != nil {
			reason := string(auth.FailureKindOf(err))
			if reason == "" {
				reason = transport
			}
			s.metrics.RecordAuth(ctx, transport, false, reason, elapsed)
			telemetry.AddEvent(span, "authentication.failed",
				attribute.String("transport", transport),
				attribute.String("reason", reason),
			)
			telemetry.RecordError(span, err)
			s.logger.Debug("authentication failed", zap.String("transport", transport), zap.String("reason", reason))
			return nil, err
		}
		if principal != nil {
			s.metrics.RecordAuth(ctx, transport, true, "", elapsed)
			span.SetAttributes(
				attribute.String(telemetry.AttrPrincipalID, principal.Subject),
				attribute.String(telemetry.AttrPrincipalScheme, principal.Scheme),
			)
			return principal, nil
		}
	}

	telemetry.AddEvent(span, "authentication.no_credentials")
	return nil, nil
}

func transportOf(a Authenticator) string {
	switch a.(type) {
	case *SessionAuthenticator:
		return auth.TransportSession
	case *BearerAuthenticator:
		return auth.TransportBearer
	default:
		return "other"
	}
}

func (s *iamService) PrimaryRole(ctx context.Context, principal *auth.Principal) string {
	if !principal.Authenticated() {
		return ""
	}
	if entry, ok := s.roleCache.Lookup(principal.Subject); ok {
		if !entry.Active {
			return ""
		}
		return entry.Role
	}
	return auth.DerivePrimaryRole(principal.Roles, s.fallbackRole)
}

func (s *iamService) Authorize(ctx context.Context, principal *auth.Principal, obj, act string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.Authorize",
		attribute.String(telemetry.AttrPolicyObject, obj),
		attribute.String(telemetry.AttrPolicyAction, act),
	)
	defer span.End()

	if !principal.Authenticated() {
		return false, nil
	}
	if principal.Scheme != auth.SchemeSession {
		s.logger.Warn("authorization refused: non-canonical scheme",
			zap.String("subject", principal.Subject),
			zap.String("scheme", principal.Scheme))
		span.SetAttributes(attribute.Bool(telemetry.AttrPolicyAllowed, false))
		return false, nil
	}

	role := s.PrimaryRole(ctx, principal)
	allowed, err := AuthorizeRole(s.enforcer, role, obj, act, s.logger)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}
	span.SetAttributes(
		attribute.String(telemetry.AttrPrincipalRole, role),
		attribute.Bool(telemetry.AttrPolicyAllowed, allowed),
	)
	return allowed, nil
}

func (s *iamService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.Login")
	defer span.End()

	start := time.Now()
	result, err := s.login(ctx, username, password)
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordAuth(ctx, "password", false, "login", elapsed)
		return nil, err
	}
	s.metrics.RecordAuth(ctx, "password", true, "", elapsed)
	span.SetAttributes(attribute.String(telemetry.AttrPrincipalID, result.Principal.Subject))
	return result, nil
}

func (s *iamService) login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	tok, err := s.provider.ExchangePasswordForToken(ctx, username, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil &&
			(re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, re.ErrorCode)
		}
		return nil, fmt.Errorf("password grant: %w", err)
	}

	principal, err := s.validator.ValidateBearerToken(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("validate issued token: %w", err)
	}

	token, tokenHash, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.Session{
		TokenHash: tokenHash,
		Subject:   principal.Subject,
		Name:      principal.Name,
		Email:     principal.Email,
		Roles:     models.StringList(principal.Roles),
		Scheme:    principal.Scheme,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, principal.Subject, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("login by subject not yet synced", zap.String("subject", principal.Subject))
		} else {
			s.logger.Warn("last login update failed", zap.String("subject", principal.Subject), zap.Error(err))
		}
	}

	p := principal.Clone()
	p.Transport = auth.TransportSession
	p.SessionID = session.ID

	s.logger.Info("user logged in",
		zap.String("subject", p.Subject),
		zap.String("username", p.Name),
		zap.String("session_id", session.ID))

	return &LoginResult{Principal: p, Session: session, Token: token}, nil
}

func (s *iamService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *iamService) GetLocalUser(ctx context.Context, externalID string) (*models.LocalUser, error) {
	return s.users.FindByExternalID(ctx, externalID)
}

func (s *iamService) ListLocalUsers(ctx context.Context, opts repository.ListOptions) ([]models.LocalUser, int, error) {
	users, err := s.users.List(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *iamService) RefreshUserRoleCache(ctx context.Context) error {
	return s.roleCache.Refresh(ctx)
}
