package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testRealmPath = "/realms/store"

// testProvider is a minimal Keycloak realm: discovery plus JWKS.
type testProvider struct {
	srv    *httptest.Server
	issuer string

	mu            sync.Mutex
	keys          []jose.JSONWebKey
	failDiscovery bool
	discoveryHits atomic.Int32
	jwksHits      atomic.Int32
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()
	p := &testProvider{}

	mux := http.NewServeMux()
	mux.HandleFunc(testRealmPath+"/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		p.discoveryHits.Add(1)
		p.mu.Lock()
		fail := p.failDiscovery
		p.mu.Unlock()
		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 p.issuer,
			"jwks_uri":               p.issuer + "/protocol/openid-connect/certs",
			"authorization_endpoint": p.issuer + "/protocol/openid-connect/auth",
			"token_endpoint":         p.issuer + "/protocol/openid-connect/token",
		})
	})
	mux.HandleFunc(testRealmPath+"/protocol/openid-connect/certs", func(w http.ResponseWriter, r *http.Request) {
		p.jwksHits.Add(1)
		p.mu.Lock()
		set := jose.JSONWebKeySet{Keys: append([]jose.JSONWebKey(nil), p.keys...)}
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	})

	p.srv = httptest.NewServer(mux)
	p.issuer = p.srv.URL + testRealmPath
	t.Cleanup(p.srv.Close)
	return p
}

func (p *testProvider) publish(kid string, key *rsa.PrivateKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"})
}

func (p *testProvider) setFailDiscovery(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failDiscovery = fail
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

// keycloakAccessToken returns claims shaped like a Keycloak access token for client store-web.
func keycloakAccessToken(issuer string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                issuer,
		"sub":                "kc-1",
		"aud":                []string{"account"},
		"azp":                "store-web",
		"exp":                now.Add(5 * time.Minute).Unix(),
		"iat":                now.Unix(),
		"preferred_username": "ada",
		"name":               "Ada Lovelace",
		"email":              "ada@example.com",
		"realm_access":       map[string]any{"roles": []string{"staff", "offline_access"}},
		"resource_access":    map[string]any{"store-web": map[string]any{"roles": []string{"manager", "staff"}}},
		"roles":              []string{"superuser"},
	}
}
