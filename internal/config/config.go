package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
// Nested keys map to upper snake case: keycloak.base_url -> STORE_KEYCLOAK_BASE_URL.
const EnvPrefix = "STORE"

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN). postgres:// selects PostgreSQL, anything else SQLite.
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Public base URL of this server
	ServerURL string

	// Maximum database connection pool size (PostgreSQL only)
	MaxDBConnections int

	// Enable debug logging
	Debug bool

	Log           LogConfig
	Keycloak      KeycloakConfig
	Sync          SyncConfig
	Session       SessionConfig
	Redis         RedisConfig
	Authz         AuthzConfig
	Observability ObservabilityConfig
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string
	Dev   bool
}

// KeycloakConfig describes the identity provider this service trusts.
//
// The issuer is derived as BaseURL + "/realms/" + Realm and must match the
// iss claim of every accepted token exactly.
type KeycloakConfig struct {
	BaseURL      string // e.g. "https://sso.example.com"
	Realm        string // application realm, e.g. "hardwarestore"
	ClientID     string // this application's client id (audience)
	ClientSecret string // optional, confidential clients only

	// AdditionalAudiences lists audiences accepted besides ClientID. Empty by
	// default: Keycloak puts "account" in aud for most user tokens, so listing
	// it would accept tokens minted for any client in the realm.
	AdditionalAudiences []string

	// RequestTimeout bounds every call to the provider (token, list, roles, JWKS).
	RequestTimeout time.Duration

	// ClockSkew is the leeway applied to exp/nbf/iat checks.
	ClockSkew time.Duration
}

// Issuer returns the expected iss claim for the configured realm.
func (c KeycloakConfig) Issuer() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/realms/" + c.Realm
}

// SyncConfig holds the directory reconciliation settings, including the
// privileged credentials used against the admin API.
type SyncConfig struct {
	Enabled      bool
	Interval     time.Duration
	FallbackRole string
	PageSize     int
	Workers      int

	// Admin API throttling (requests per second and burst).
	RateLimit float64
	RateBurst int

	// Privileged credentials. A client secret selects the client-credentials
	// grant; otherwise username/password are exchanged with the password grant.
	AdminRealm        string
	AdminClientID     string
	AdminClientSecret string
	AdminUsername     string
	AdminPassword     string
}

// UsesClientCredentials reports whether the admin token comes from the client-credentials grant.
func (s SyncConfig) UsesClientCredentials() bool {
	return s.AdminClientSecret != ""
}

// SessionConfig controls cookie sessions created by the login endpoint.
type SessionConfig struct {
	Store        string // "db" or "redis"
	TTL          time.Duration
	CookieSecure bool
}

// RedisConfig is only consulted when Session.Store is "redis".
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthzConfig points at an optional Casbin CSV policy overriding the built-in one.
type AuthzConfig struct {
	PolicyPath string
}

// ObservabilityConfig controls OpenTelemetry export. An empty endpoint disables it.
type ObservabilityConfig struct {
	OTLPEndpoint   string
	OTLPInsecure   bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

const (
	SessionStoreDB    = "db"
	SessionStoreRedis = "redis"
)

func setDefaults() {
	viper.SetDefault("database_url", "hardwarestore.db")
	viper.SetDefault("server_addr", "localhost:8080")
	viper.SetDefault("server_url", "http://localhost:8080")
	viper.SetDefault("max_db_connections", 25)
	viper.SetDefault("debug", false)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.dev", false)

	viper.SetDefault("keycloak.additional_audiences", []string{})
	viper.SetDefault("keycloak.request_timeout", 10*time.Second)
	viper.SetDefault("keycloak.clock_skew", 30*time.Second)

	viper.SetDefault("sync.enabled", true)
	viper.SetDefault("sync.interval", 2*time.Minute)
	viper.SetDefault("sync.fallback_role", "Staff")
	viper.SetDefault("sync.page_size", 100)
	viper.SetDefault("sync.workers", 4)
	viper.SetDefault("sync.rate_limit", 20.0)
	viper.SetDefault("sync.rate_burst", 10)
	viper.SetDefault("sync.admin_realm", "master")
	viper.SetDefault("sync.admin_client_id", "admin-cli")

	viper.SetDefault("session.store", SessionStoreDB)
	viper.SetDefault("session.ttl", 8*time.Hour)
	viper.SetDefault("session.cookie_secure", false)

	viper.SetDefault("redis.db", 0)

	viper.SetDefault("observability.service_name", "storeapi")
	viper.SetDefault("observability.service_version", "dev")
	viper.SetDefault("observability.environment", "development")
}

// Load reads configuration from the active viper instance (config file, if
// one was read) and STORE_ prefixed environment variables. Environment
// variables take precedence over the file.
func Load() (*Config, error) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	// Nested keys are read one by one: AutomaticEnv does not populate
	// nested structs through Unmarshal/AllSettings.
	cfg := &Config{
		DatabaseURL:      viper.GetString("database_url"),
		ServerAddr:       viper.GetString("server_addr"),
		ServerURL:        viper.GetString("server_url"),
		MaxDBConnections: viper.GetInt("max_db_connections"),
		Debug:            viper.GetBool("debug"),
		Log: LogConfig{
			Level: viper.GetString("log.level"),
			Dev:   viper.GetBool("log.dev"),
		},
		Keycloak: KeycloakConfig{
			BaseURL:             strings.TrimSuffix(viper.GetString("keycloak.base_url"), "/"),
			Realm:               viper.GetString("keycloak.realm"),
			ClientID:            viper.GetString("keycloak.client_id"),
			ClientSecret:        viper.GetString("keycloak.client_secret"),
			AdditionalAudiences: stringList("keycloak.additional_audiences"),
			RequestTimeout:      viper.GetDuration("keycloak.request_timeout"),
			ClockSkew:           viper.GetDuration("keycloak.clock_skew"),
		},
		Sync: SyncConfig{
			Enabled:           viper.GetBool("sync.enabled"),
			Interval:          viper.GetDuration("sync.interval"),
			FallbackRole:      viper.GetString("sync.fallback_role"),
			PageSize:          viper.GetInt("sync.page_size"),
			Workers:           viper.GetInt("sync.workers"),
			RateLimit:         viper.GetFloat64("sync.rate_limit"),
			RateBurst:         viper.GetInt("sync.rate_burst"),
			AdminRealm:        viper.GetString("sync.admin_realm"),
			AdminClientID:     viper.GetString("sync.admin_client_id"),
			AdminClientSecret: viper.GetString("sync.admin_client_secret"),
			AdminUsername:     viper.GetString("sync.admin_username"),
			AdminPassword:     viper.GetString("sync.admin_password"),
		},
		Session: SessionConfig{
			Store:        viper.GetString("session.store"),
			TTL:          viper.GetDuration("session.ttl"),
			CookieSecure: viper.GetBool("session.cookie_secure"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Authz: AuthzConfig{
			PolicyPath: viper.GetString("authz.policy_path"),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint:   viper.GetString("observability.otlp_endpoint"),
			OTLPInsecure:   viper.GetBool("observability.otlp_insecure"),
			ServiceName:    viper.GetString("observability.service_name"),
			ServiceVersion: viper.GetString("observability.service_version"),
			Environment:    viper.GetString("observability.environment"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (env: %s_DATABASE_URL)", EnvPrefix)
	}
	if c.Keycloak.BaseURL == "" {
		return fmt.Errorf("keycloak.base_url is required (env: %s_KEYCLOAK_BASE_URL)", EnvPrefix)
	}
	if c.Keycloak.Realm == "" {
		return fmt.Errorf("keycloak.realm is required (env: %s_KEYCLOAK_REALM)", EnvPrefix)
	}
	if c.Keycloak.ClientID == "" {
		return fmt.Errorf("keycloak.client_id is required (env: %s_KEYCLOAK_CLIENT_ID)", EnvPrefix)
	}
	if c.Keycloak.RequestTimeout <= 0 {
		return fmt.Errorf("keycloak.request_timeout must be positive, got %s", c.Keycloak.RequestTimeout)
	}

	if c.Sync.Enabled {
		if c.Sync.Interval <= 0 {
			return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
		}
		if !c.Sync.UsesClientCredentials() && (c.Sync.AdminUsername == "" || c.Sync.AdminPassword == "") {
			return fmt.Errorf("sync credentials are required: set %s_SYNC_ADMIN_CLIENT_SECRET or %s_SYNC_ADMIN_USERNAME and %s_SYNC_ADMIN_PASSWORD",
				EnvPrefix, EnvPrefix, EnvPrefix)
		}
	}
	if c.Sync.FallbackRole == "" {
		return fmt.Errorf("sync.fallback_role must not be empty")
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be positive, got %d", c.Sync.PageSize)
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive, got %d", c.Sync.Workers)
	}

	switch c.Session.Store {
	case SessionStoreDB:
	case SessionStoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when session.store=redis (env: %s_REDIS_ADDR)", EnvPrefix)
		}
	default:
		return fmt.Errorf("session.store must be %q or %q, got %q", SessionStoreDB, SessionStoreRedis, c.Session.Store)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}

	return nil
}

// stringList reads a list key that may arrive as a YAML list or as a
// comma-separated environment variable.
func stringList(key string) []string {
	var out []string
	for _, item := range viper.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
