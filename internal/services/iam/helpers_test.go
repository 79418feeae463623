package iam

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/bunx"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/SevenofThr4wn/HardwareStore/internal/migrations"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return db
}

// fakeValidator accepts the tokens it knows and rejects everything else
// with a bad_signature failure, like the real validator.
type fakeValidator struct {
	principals map[string]*auth.Principal
}

func (f *fakeValidator) ValidateBearerToken(_ context.Context, token string) (*auth.Principal, error) {
	p, ok := f.principals[token]
	if !ok {
		return nil, &auth.AuthFailure{Kind: auth.FailureBadSignature, Err: errors.New("unknown test token")}
	}
	cp := p.Clone()
	cp.Scheme = auth.SchemeBearer
	cp.Transport = auth.TransportBearer
	return auth.UnifyScheme(cp, auth.SchemeSession), nil
}

// fakeProvider issues access tokens for known username/password pairs.
type fakeProvider struct {
	passwords map[string]string // username -> password
	tokens    map[string]string // username -> access token
	err       error
}

func (f *fakeProvider) ExchangePasswordForToken(_ context.Context, username, password string) (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	if pw, ok := f.passwords[username]; !ok || pw != password {
		return nil, &oauth2.RetrieveError{
			Response:  &http.Response{StatusCode: http.StatusUnauthorized},
			ErrorCode: "invalid_grant",
		}
	}
	return &oauth2.Token{AccessToken: f.tokens[username], TokenType: "Bearer"}, nil
}

type testEnv struct {
	svc       Service
	db        *bun.DB
	users     *repository.BunLocalUserRepository
	sessions  *repository.BunSessionRepository
	validator *fakeValidator
	provider  *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	env := &testEnv{
		db:       db,
		users:    repository.NewBunLocalUserRepository(db),
		sessions: repository.NewBunSessionRepository(db),
		validator: &fakeValidator{principals: map[string]*auth.Principal{
			"alice-token": {Subject: "kc-alice", Name: "alice", Email: "alice@example.com", Roles: []string{"admin", "offline_access"}},
			"bob-token":   {Subject: "kc-bob", Name: "bob", Roles: []string{"manager"}},
			"carol-token": {Subject: "kc-carol", Name: "carol"},
		}},
		provider: &fakeProvider{
			passwords: map[string]string{"alice": "alice-pw", "bob": "bob-pw"},
			tokens:    map[string]string{"alice": "alice-token", "bob": "bob-token"},
		},
	}

	enforcer, err := auth.NewDefaultEnforcer()
	require.NoError(t, err)

	svc, err := NewIAMService(context.Background(), IAMServiceDependencies{
		Sessions:  env.sessions,
		Users:     env.users,
		Enforcer:  enforcer,
		Validator: env.validator,
		Provider:  env.provider,
		Logger:    zap.NewNop(),
	}, IAMServiceConfig{})
	require.NoError(t, err)
	env.svc = svc
	return env
}

func (e *testEnv) syncUser(t *testing.T, externalID, username, role string, active bool) {
	t.Helper()
	_, err := e.users.Upsert(context.Background(), &models.LocalUser{
		ExternalID: externalID,
		Username:   username,
		Role:       role,
		Active:     active,
	})
	require.NoError(t, err)
	require.NoError(t, e.svc.RefreshUserRoleCache(context.Background()))
}

func bearerRequest(token string) AuthRequest {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return AuthRequest{Headers: h}
}

func cookieRequest(token string) AuthRequest {
	return AuthRequest{
		Headers: http.Header{},
		Cookies: []*http.Cookie{{Name: auth.SessionCookieName, Value: token}},
	}
}
