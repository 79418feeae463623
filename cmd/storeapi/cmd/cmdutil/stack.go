// Package cmdutil wires the storage, identity-provider and sync components
// shared by the storeapi subcommands.
package cmdutil

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/config"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/bunx"
	"github.com/SevenofThr4wn/HardwareStore/internal/keycloak"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/directory"
	"github.com/SevenofThr4wn/HardwareStore/internal/telemetry"
)

// Stack bundles the database connection with the repositories built on it
// so callers can release everything with one Close.
type Stack struct {
	DB       *bun.DB
	Redis    *redis.Client // nil unless session.store=redis
	Users    *repository.BunLocalUserRepository
	Sessions repository.SessionRepository
}

// Close releases the database and Redis connections.
func (s *Stack) Close() {
	if s == nil {
		return
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		_ = bunx.Close(s.DB)
	}
}

// OpenStack connects to the database and, when configured, Redis.
func OpenStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stack, error) {
	db, err := bunx.NewDB(cfg.DatabaseURL, bunx.WithMaxConns(cfg.MaxDBConnections))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("connected to database", zap.String("type", string(bunx.DetectDatabaseType(cfg.DatabaseURL))))

	s := &Stack{
		DB:    db,
		Users: repository.NewBunLocalUserRepository(db),
	}

	switch cfg.Session.Store {
	case config.SessionStoreRedis:
		client, err := repository.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Redis = client
		s.Sessions = repository.NewRedisSessionStore(client)
		logger.Info("sessions stored in redis", zap.String("addr", cfg.Redis.Addr))
	default:
		s.Sessions = repository.NewBunSessionRepository(db)
	}
	return s, nil
}

// NewEnforcer loads the Casbin policy from the configured CSV file or the
// authz_rules table.
func NewEnforcer(db *bun.DB, cfg *config.Config) (casbin.IEnforcer, error) {
	enforcer, err := auth.NewEnforcer(db, cfg.Authz.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize casbin enforcer: %w", err)
	}
	return enforcer, nil
}

// NewKeycloakClient builds the provider client from the keycloak and sync sections.
func NewKeycloakClient(cfg *config.Config, logger *zap.Logger) *keycloak.Client {
	return keycloak.New(keycloak.Config{
		BaseURL:           cfg.Keycloak.BaseURL,
		Realm:             cfg.Keycloak.Realm,
		ClientID:          cfg.Keycloak.ClientID,
		ClientSecret:      cfg.Keycloak.ClientSecret,
		AdminRealm:        cfg.Sync.AdminRealm,
		AdminClientID:     cfg.Sync.AdminClientID,
		AdminClientSecret: cfg.Sync.AdminClientSecret,
		AdminUsername:     cfg.Sync.AdminUsername,
		AdminPassword:     cfg.Sync.AdminPassword,
		RequestTimeout:    cfg.Keycloak.RequestTimeout,
		RateLimit:         cfg.Sync.RateLimit,
		RateBurst:         cfg.Sync.RateBurst,
	}, keycloak.WithLogger(logger.Named("keycloak")))
}

// NewSyncEngine builds the directory sync engine. metrics may be nil.
func NewSyncEngine(cfg *config.Config, dir directory.Directory, users repository.LocalUserRepository, metrics *telemetry.SyncMetrics, logger *zap.Logger) *directory.Engine {
	return directory.NewEngine(dir, users, directory.Options{
		PageSize:     cfg.Sync.PageSize,
		Workers:      cfg.Sync.Workers,
		FallbackRole: cfg.Sync.FallbackRole,
		Metrics:      metrics,
	}, logger.Named("sync"))
}
