// Package keycloak talks to a Keycloak realm: OAuth2 token grants and the
// read-only admin endpoints used by directory sync.
package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL string
	// Realm holds the application's users and clients.
	Realm        string
	ClientID     string
	ClientSecret string

	// Admin credentials. With AdminClientSecret set the client-credentials
	// grant is used; otherwise AdminUsername/AdminPassword go through the
	// password grant with AdminClientID (normally admin-cli).
	AdminRealm        string
	AdminClientID     string
	AdminClientSecret string
	AdminUsername     string
	AdminPassword     string

	// RequestTimeout bounds each token exchange and admin call.
	RequestTimeout time.Duration
	// RateLimit caps admin calls per second; <= 0 disables throttling.
	RateLimit float64
	RateBurst int
}

// Client is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.AdminRealm == "" {
		cfg.AdminRealm = "master"
	}
	if cfg.AdminClientID == "" {
		cfg.AdminClientID = "admin-cli"
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(cfg.RateLimit)))
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) tokenURL(realm string) string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.cfg.BaseURL, url.PathEscape(realm))
}

// oauthContext bounds ctx by the request timeout and routes oauth2 through our http.Client.
func (c *Client) oauthContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), cancel
}

// ExchangePasswordForToken runs the password grant for an end user against
// the application realm.
func (c *Client) ExchangePasswordForToken(ctx context.Context, username, password string) (*oauth2.Token, error) {
	ctx, cancel := c.oauthContext(ctx)
	defer cancel()

	conf := &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL(c.cfg.Realm),
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{"openid"},
	}
	tok, err := conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return tok, nil
}

// ExchangeAdminCredentialsForToken obtains the privileged token used for
// admin API calls.
func (c *Client) ExchangeAdminCredentialsForToken(ctx context.Context) (*oauth2.Token, error) {
	ctx, cancel := c.oauthContext(ctx)
	defer cancel()

	if c.cfg.AdminClientSecret != "" {
		conf := &clientcredentials.Config{
			ClientID:     c.cfg.AdminClientID,
			ClientSecret: c.cfg.AdminClientSecret,
			TokenURL:     c.tokenURL(c.cfg.AdminRealm),
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		tok, err := conf.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("admin client credentials grant: %w", err)
		}
		return tok, nil
	}

	conf := &oauth2.Config{
		ClientID: c.cfg.AdminClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL(c.cfg.AdminRealm),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	tok, err := conf.PasswordCredentialsToken(ctx, c.cfg.AdminUsername, c.cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("admin password grant: %w", err)
	}
	return tok, nil
}

// ListDirectoryUsers returns one page of realm users.
func (c *Client) ListDirectoryUsers(ctx context.Context, tok *oauth2.Token, page Page) ([]DirectoryUser, error) {
	q := url.Values{}
	q.Set("first", strconv.Itoa(page.First))
	q.Set("max", strconv.Itoa(page.Max))
	q.Set("briefRepresentation", "false")

	var users []DirectoryUser
	if err := c.getJSON(ctx, tok, c.adminPath("users"), q, &users); err != nil {
		return nil, fmt.Errorf("list users (first=%d max=%d): %w", page.First, page.Max, err)
	}
	return users, nil
}

// GetUserRoleAssignments returns the realm roles directly mapped to a user.
func (c *Client) GetUserRoleAssignments(ctx context.Context, tok *oauth2.Token, externalID string) ([]RoleAssignment, error) {
	var assignments []RoleAssignment
	path := c.adminPath("users", externalID, "role-mappings", "realm")
	if err := c.getJSON(ctx, tok, path, nil, &assignments); err != nil {
		return nil, fmt.Errorf("get role mappings for %s: %w", externalID, err)
	}
	for i := range assignments {
		assignments[i].ExternalID = externalID
	}
	return assignments, nil
}

func (c *Client) adminPath(segments ...string) string {
	escaped := make([]string, 0, len(segments)+2)
	escaped = append(escaped, "admin/realms", url.PathEscape(c.cfg.Realm))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return "/" + strings.Join(escaped, "/")
}

func (c *Client) getJSON(ctx context.Context, tok *oauth2.Token, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("keycloak admin call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Method: http.MethodGet, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
