package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/config"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/bunx"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/SevenofThr4wn/HardwareStore/internal/migrations"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/directory"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/iam"
)

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

type fakeProvider struct {
	passwords map[string]string
	tokens    map[string]string
}

func (f *fakeProvider) ExchangePasswordForToken(_ context.Context, username, password string) (*oauth2.Token, error) {
	if pw, ok := f.passwords[username]; !ok || pw != password {
		return nil, &oauth2.RetrieveError{
			Response:  &http.Response{StatusCode: http.StatusUnauthorized},
			ErrorCode: "invalid_grant",
		}
	}
	return &oauth2.Token{AccessToken: f.tokens[username], TokenType: "Bearer"}, nil
}

// fakeSync stands in for the scheduler.
type fakeSync struct {
	mu       sync.Mutex
	last     *directory.SyncRun
	state    directory.State
	triggers int
	err      error
}

func (f *fakeSync) TriggerSyncNow(context.Context) (directory.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	if f.err != nil {
		return directory.SyncRun{}, f.err
	}
	run := directory.SyncRun{ID: "run-1", Trigger: directory.TriggerManual, Processed: 2, Created: 2}
	f.last = &run
	return run, nil
}

func (f *fakeSync) LastRun() (directory.SyncRun, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return directory.SyncRun{}, false
	}
	return *f.last, true
}

func (f *fakeSync) State() directory.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return directory.StateIdle
	}
	return f.state
}

type testServer struct {
	router chi.Router
	svc    iam.Service
	users  *repository.BunLocalUserRepository
	sync   *fakeSync
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	enforcer, err := auth.NewDefaultEnforcer()
	require.NoError(t, err)

	users := repository.NewBunLocalUserRepository(db)
	svc, err := iam.NewIAMService(ctx, iam.IAMServiceDependencies{
		Sessions: repository.NewBunSessionRepository(db),
		Users:    users,
		Enforcer: enforcer,
		Validator: &fakeValidator{principals: map[string]*auth.Principal{
			"alice-token": {Subject: "kc-alice", Name: "alice", Roles: []string{"admin"}},
			"bob-token":   {Subject: "kc-bob", Name: "bob", Roles: []string{"manager"}},
			"carol-token": {Subject: "kc-carol", Name: "carol", Roles: []string{"staff"}},
		}},
		Provider: &fakeProvider{
			passwords: map[string]string{"alice": "alice-pw"},
			tokens:    map[string]string{"alice": "alice-token"},
		},
		Logger: zap.NewNop(),
	}, iam.IAMServiceConfig{})
	require.NoError(t, err)

	fs := &fakeSync{}
	return &testServer{
		router: NewRouter(RouterOptions{IAMService: svc, Sync: fs, Cfg: &config.Config{}}),
		svc:    svc,
		users:  users,
		sync:   fs,
	}
}

func (s *testServer) syncUser(t *testing.T, externalID, username, role string) {
	t.Helper()
	_, err := s.users.Upsert(context.Background(), &models.LocalUser{
		ExternalID: externalID,
		Username:   username,
		Role:       role,
		Active:     true,
	})
	require.NoError(t, err)
	require.NoError(t, s.svc.RefreshUserRoleCache(context.Background()))
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) requestOption {
	return func(r *http.Request) { r.AddCookie(c) }
}

func (s *testServer) do(method, path, body string, opts ...requestOption) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}
