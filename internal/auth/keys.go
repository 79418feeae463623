package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// KeySet resolves a JWS key id to a verification key.
// Implementations return ErrUnknownKey or ErrKeysUnavailable (wrapped).
type KeySet interface {
	LookupKey(ctx context.Context, kid string) (any, error)
}

// StaticKeySet is a fixed kid -> public key map.
type StaticKeySet map[string]any

func (s StaticKeySet) LookupKey(_ context.Context, kid string) (any, error) {
	key, ok := s[kid]
	if !ok || kid == "" {
		return nil, fmt.Errorf("kid %q: %w", kid, ErrUnknownKey)
	}
	return key, nil
}

const (
	defaultKeyCacheSize       = 64
	defaultMinRefreshInterval = 10 * time.Second
)

type RemoteKeySetOptions struct {
	HTTPClient *http.Client
	// Timeout bounds discovery and each JWKS fetch.
	Timeout time.Duration
	// MinRefreshInterval throttles refreshes triggered by unknown kids.
	MinRefreshInterval time.Duration
	CacheSize          int
	Logger             *zap.Logger
}

// RemoteKeySet loads signing keys from the issuer's jwks_uri.
//
// The jwks_uri is discovered lazily on first use; a failed discovery is
// retried on the next refresh. Keys are cached by kid and the set is
// re-fetched when a token names an unknown kid, at most once per
// MinRefreshInterval.
type RemoteKeySet struct {
	issuer string
	opts   RemoteKeySetOptions
	cache  *lru.Cache[string, jose.JSONWebKey]
	now    func() time.Time

	mu          sync.Mutex // serializes discovery and refresh
	jwksURL     string
	lastAttempt time.Time
	loaded      bool
}

func NewRemoteKeySet(issuer string, opts RemoteKeySetOptions) (*RemoteKeySet, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = defaultMinRefreshInterval
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultKeyCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[string, jose.JSONWebKey](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create key cache: %w", err)
	}
	return &RemoteKeySet{issuer: issuer, opts: opts, cache: cache, now: time.Now}, nil
}

func (r *RemoteKeySet) LookupKey(ctx context.Context, kid string) (any, error) {
	if kid == "" {
		return nil, fmt.Errorf("token has no kid: %w", ErrUnknownKey)
	}
	if key, ok := r.cache.Get(kid); ok {
		return key.Key, nil
	}

	if err := r.refresh(ctx, kid); err != nil {
		return nil, err
	}
	if key, ok := r.cache.Get(kid); ok {
		return key.Key, nil
	}
	return nil, fmt.Errorf("kid %q: %w", kid, ErrUnknownKey)
}

// refresh re-fetches the key set unless another caller already loaded kid
// or the last attempt was too recent.
func (r *RemoteKeySet) refresh(ctx context.Context, kid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache.Contains(kid) {
		return nil
	}
	if !r.lastAttempt.IsZero() && r.now().Sub(r.lastAttempt) < r.opts.MinRefreshInterval {
		if !r.loaded {
			return fmt.Errorf("waiting to retry key fetch: %w", ErrKeysUnavailable)
		}
		return nil
	}
	r.lastAttempt = r.now()

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	if r.jwksURL == "" {
		jwksURL, err := r.discover(ctx)
		if err != nil {
			r.opts.Logger.Warn("oidc discovery failed", zap.String("issuer", r.issuer), zap.Error(err))
			return fmt.Errorf("discover %s: %v: %w", r.issuer, err, ErrKeysUnavailable)
		}
		r.jwksURL = jwksURL
	}

	set, err := r.fetch(ctx)
	if err != nil {
		r.opts.Logger.Warn("jwks fetch failed", zap.String("jwks_uri", r.jwksURL), zap.Error(err))
		return fmt.Errorf("fetch jwks: %v: %w", err, ErrKeysUnavailable)
	}

	r.cache.Purge()
	for _, key := range set.Keys {
		if key.KeyID == "" || !key.Valid() || (key.Use != "" && key.Use != "sig") {
			continue
		}
		r.cache.Add(key.KeyID, key)
	}
	r.loaded = true
	r.opts.Logger.Debug("jwks refreshed", zap.Int("keys", r.cache.Len()))
	return nil
}

func (r *RemoteKeySet) discover(ctx context.Context) (string, error) {
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, r.opts.HTTPClient), r.issuer)
	if err != nil {
		return "", err
	}
	var meta struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("decode discovery document: %w", err)
	}
	if meta.JWKSURL == "" {
		return "", fmt.Errorf("discovery document has no jwks_uri")
	}
	return meta.JWKSURL, nil
}

func (r *RemoteKeySet) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	if len(set.Keys) == 0 {
		return nil, fmt.Errorf("jwks is empty")
	}
	return &set, nil
}
