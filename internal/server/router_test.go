package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/directory"
)

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sync":"idle"}`, rec.Body.String())

	s.sync.state = directory.StateRunning
	rec = s.do(http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"status":"ok","sync":"running"}`, rec.Body.String())
}

func TestLogin_SessionRoundTrip(t *testing.T) {
	s := newTestServer(t)
	s.syncUser(t, "kc-alice", "alice", auth.RoleAdmin)

	rec := s.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"alice-pw"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)

	var login LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.Equal(t, "kc-alice", login.Principal.Subject)
	assert.Equal(t, auth.TransportSession, login.Principal.Transport)

	rec = s.do(http.MethodGet, "/api/me", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var me MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "kc-alice", me.Principal.Subject)
	assert.Equal(t, auth.TransportSession, me.Principal.Transport)
	assert.Equal(t, auth.RoleAdmin, me.PrimaryRole)
	require.NotNil(t, me.User)
	assert.NotNil(t, me.User.LastLoginAt, "login stamps last_login_at")

	// Admin may trigger a sync through the cookie session.
	rec = s.do(http.MethodPost, "/admin/sync", "", withCookie(cookie))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/auth/logout", "", withCookie(cookie))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/me", "", withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "revoked session is rejected")
}

func TestLogin_Failures(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "malformed body", body: `{`, wantCode: http.StatusBadRequest},
		{name: "missing password", body: `{"username":"alice"}`, wantCode: http.StatusBadRequest},
		{name: "wrong password", body: `{"username":"alice","password":"nope"}`, wantCode: http.StatusUnauthorized},
		{name: "unknown user", body: `{"username":"mallory","password":"x"}`, wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/auth/login", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestLogin_StaleCookieDoesNotBlock(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"alice-pw"}`,
		withCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "stale"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogout_RequiresSession(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/auth/logout", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		s.do(http.MethodPost, "/auth/logout", "", withBearer("alice-token")).Code,
		"bearer callers have no session to revoke")
}

func TestMe(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/me", "", withBearer("forged")).Code)

	// Not synced: role derived from token roles, no user.
	rec := s.do(http.MethodGet, "/api/me", "", withBearer("carol-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	var me MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, auth.RoleStaff, me.PrimaryRole)
	assert.Equal(t, auth.TransportBearer, me.Principal.Transport)
	assert.Nil(t, me.User)
}

func TestAdminSync_Authorization(t *testing.T) {
	s := newTestServer(t)
	s.syncUser(t, "kc-alice", "alice", auth.RoleAdmin)
	s.syncUser(t, "kc-bob", "bob", auth.RoleManager)
	s.syncUser(t, "kc-carol", "carol", auth.RoleStaff)
	s.sync.last = &directory.SyncRun{ID: "run-0"}

	tests := []struct {
		name        string
		method      string
		token       string
		wantCode    int
		wantTrigger bool
	}{
		{name: "anonymous trigger", method: http.MethodPost, wantCode: http.StatusUnauthorized},
		{name: "staff trigger", method: http.MethodPost, token: "carol-token", wantCode: http.StatusForbidden},
		{name: "manager trigger", method: http.MethodPost, token: "bob-token", wantCode: http.StatusForbidden},
		{name: "admin trigger", method: http.MethodPost, token: "alice-token", wantCode: http.StatusOK, wantTrigger: true},
		{name: "staff read", method: http.MethodGet, token: "carol-token", wantCode: http.StatusForbidden},
		{name: "manager read", method: http.MethodGet, token: "bob-token", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.sync.triggers
			var opts []requestOption
			if tt.token != "" {
				opts = append(opts, withBearer(tt.token))
			}
			rec := s.do(tt.method, "/admin/sync", "", opts...)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantTrigger, s.sync.triggers > before)
		})
	}
}

func TestAdminSync_LastRun(t *testing.T) {
	s := newTestServer(t)
	s.syncUser(t, "kc-bob", "bob", auth.RoleManager)

	rec := s.do(http.MethodGet, "/admin/sync", "", withBearer("bob-token"))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no run yet")

	_, err := s.sync.TriggerSyncNow(context.Background())
	require.NoError(t, err)

	rec = s.do(http.MethodGet, "/admin/sync", "", withBearer("bob-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["id"])
}

func TestAdminSync_Stopped(t *testing.T) {
	s := newTestServer(t)
	s.syncUser(t, "kc-alice", "alice", auth.RoleAdmin)
	s.sync.err = directory.ErrSchedulerStopped

	rec := s.do(http.MethodPost, "/admin/sync", "", withBearer("alice-token"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminUsers(t *testing.T) {
	s := newTestServer(t)
	s.syncUser(t, "kc-alice", "alice", auth.RoleAdmin)
	s.syncUser(t, "kc-bob", "bob", auth.RoleManager)
	s.syncUser(t, "kc-carol", "carol", auth.RoleStaff)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/admin/users", "", withBearer("carol-token")).Code)

	rec := s.do(http.MethodGet, "/admin/users?limit=2", "", withBearer("bob-token"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list UserListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Total)
	assert.Len(t, list.Users, 2)
	assert.Equal(t, 2, list.Limit)

	rec = s.do(http.MethodGet, "/admin/users?offset=2", "", withBearer("bob-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Users, 1)

	for _, q := range []string{"limit=0", "limit=abc", "limit=501", "offset=-1"} {
		rec = s.do(http.MethodGet, "/admin/users?"+q, "", withBearer("bob-token"))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestSyncDisabled(t *testing.T) {
	s := newTestServer(t)
	s.syncUser(t, "kc-alice", "alice", auth.RoleAdmin)
	s.router = NewRouter(RouterOptions{IAMService: s.svc})

	assert.JSONEq(t, `{"status":"ok","sync":"idle"}`, s.do(http.MethodGet, "/health", "").Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodPost, "/admin/sync", "", withBearer("alice-token")).Code)
}
