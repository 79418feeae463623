package repository

import (
	"context"
	"errors"
	"time"

	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// UpsertResult tells the caller what Upsert did to the row.
type UpsertResult string

const (
	UpsertCreated   UpsertResult = "created"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
)

// ListOptions pages through List results. A zero Limit means no limit.
type ListOptions struct {
	Limit  int
	Offset int
}

// LocalUserRepository persists users mirrored from the identity provider.
type LocalUserRepository interface {
	// Upsert creates or updates the user keyed by desired.ExternalID inside
	// one transaction. Only synced fields are written, updated_at moves only
	// when one of them changed, and desired is filled with the stored row.
	Upsert(ctx context.Context, desired *models.LocalUser) (UpsertResult, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.LocalUser, error)
	List(ctx context.Context, opts ListOptions) ([]models.LocalUser, error)
	Count(ctx context.Context) (int, error)
	UpdateLastLogin(ctx context.Context, externalID string, at time.Time) error
}

// SessionRepository stores cookie sessions. Implementations: BunSessionRepository, RedisSessionStore.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	UpdateLastUsed(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
