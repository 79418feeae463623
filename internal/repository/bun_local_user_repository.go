package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SevenofThr4wn/HardwareStore/internal/db/bunx"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/uptrace/bun"
)

// BunLocalUserRepository implements LocalUserRepository using Bun ORM
type BunLocalUserRepository struct {
	db  *bun.DB
	now func() time.Time
}

// NewBunLocalUserRepository creates a new Bun-based local user repository
func NewBunLocalUserRepository(db *bun.DB) *BunLocalUserRepository {
	return &BunLocalUserRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *BunLocalUserRepository) Upsert(ctx context.Context, desired *models.LocalUser) (UpsertResult, error) {
	if desired.ExternalID == "" {
		return "", fmt.Errorf("upsert local user: external id is required")
	}

	var result UpsertResult
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(models.LocalUser)
		err := tx.NewSelect().
			Model(existing).
			Where("external_id = ?", desired.ExternalID).
			Scan(ctx)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			now := r.now()
			desired.ID = bunx.NewUUIDv7()
			desired.CreatedAt = now
			desired.UpdatedAt = now
			if _, err := tx.NewInsert().Model(desired).Exec(ctx); err != nil {
				return fmt.Errorf("insert local user: %w", err)
			}
			result = UpsertCreated
			return nil
		case err != nil:
			return fmt.Errorf("find local user: %w", err)
		}

		if existing.SameIdentity(desired) {
			*desired = *existing
			result = UpsertUnchanged
			return nil
		}

		columns := changedColumns(existing, desired)
		applySyncedFields(existing, desired)
		existing.UpdatedAt = r.now()
		columns = append(columns, "updated_at")

		if _, err := tx.NewUpdate().Model(existing).Column(columns...).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update local user: %w", err)
		}
		*desired = *existing
		result = UpsertUpdated
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upsert local user %s: %w", desired.ExternalID, err)
	}
	return result, nil
}

// changedColumns lists the synced columns whose value differs.
func changedColumns(cur, next *models.LocalUser) []string {
	var cols []string
	add := func(changed bool, col string) {
		if changed {
			cols = append(cols, col)
		}
	}
	add(cur.Username != next.Username, "username")
	add(cur.FirstName != next.FirstName, "first_name")
	add(cur.LastName != next.LastName, "last_name")
	add(cur.FullName != next.FullName, "full_name")
	add(cur.Email != next.Email, "email")
	add(cur.Active != next.Active, "active")
	add(cur.EmailVerified != next.EmailVerified, "email_verified")
	add(cur.Role != next.Role, "role")
	add(!models.EqualTimePtr(cur.ProviderCreatedAt, next.ProviderCreatedAt), "provider_created_at")
	return cols
}

func applySyncedFields(dst, src *models.LocalUser) {
	dst.Username = src.Username
	dst.FirstName = src.FirstName
	dst.LastName = src.LastName
	dst.FullName = src.FullName
	dst.Email = src.Email
	dst.Active = src.Active
	dst.EmailVerified = src.EmailVerified
	dst.Role = src.Role
	dst.ProviderCreatedAt = src.ProviderCreatedAt
}

// FindByExternalID retrieves a user by provider subject id
func (r *BunLocalUserRepository) FindByExternalID(ctx context.Context, externalID string) (*models.LocalUser, error) {
	user := new(models.LocalUser)
	err := r.db.NewSelect().
		Model(user).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("local user %s: %w", externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("get local user by external id: %w", err)
	}
	return user, nil
}

// List returns users ordered by username
func (r *BunLocalUserRepository) List(ctx context.Context, opts ListOptions) ([]models.LocalUser, error) {
	var users []models.LocalUser
	q := r.db.NewSelect().Model(&users).Order("username ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list local users: %w", err)
	}
	return users, nil
}

func (r *BunLocalUserRepository) Count(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().Model((*models.LocalUser)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count local users: %w", err)
	}
	return n, nil
}

// UpdateLastLogin stamps last_login_at. It is the only column the request
// path writes.
func (r *BunLocalUserRepository) UpdateLastLogin(ctx context.Context, externalID string, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.LocalUser)(nil)).
		Set("last_login_at = ?", at.UTC()).
		Where("external_id = ?", externalID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("local user %s: %w", externalID, ErrNotFound)
	}
	return nil
}
