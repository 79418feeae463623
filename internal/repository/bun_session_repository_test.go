package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(hash string, expiresAt time.Time) *models.Session {
	return &models.Session{
		TokenHash: hash,
		Subject:   "kc-1",
		Name:      "ada",
		Email:     "ada@example.com",
		Roles:     models.StringList{"admin", "offline_access"},
		Scheme:    "session",
		ExpiresAt: expiresAt,
	}
}

func TestBunSessionRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewBunSessionRepository(setupTestDB(t))

	s := newTestSession("hash-1", time.Now().Add(time.Hour))
	require.NoError(t, repo.Create(ctx, s))
	require.NotEmpty(t, s.ID)

	got, err := repo.GetByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, models.StringList{"admin", "offline_access"}, got.Roles)
	assert.False(t, got.Revoked)

	require.NoError(t, repo.UpdateLastUsed(ctx, s.ID))
	require.NoError(t, repo.Revoke(ctx, s.ID))

	got, err = repo.GetByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	_, err = repo.GetByTokenHash(ctx, "unknown")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBunSessionRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewBunSessionRepository(setupTestDB(t))

	require.NoError(t, repo.Create(ctx, newTestSession("live", time.Now().Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, newTestSession("stale", time.Now().Add(-time.Hour))))

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetByTokenHash(ctx, "live")
	assert.NoError(t, err)
	_, err = repo.GetByTokenHash(ctx, "stale")
	assert.True(t, errors.Is(err, ErrNotFound))
}
