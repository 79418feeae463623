package migrations

import (
	"context"
	"fmt"

	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20251020090001, down_20251020090001)
}

// up_20251020090001 creates the sessions table for cookie logins
func up_20251020090001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating sessions table...")
	_, err := db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.ExecContext(ctx, `ALTER TABLE sessions ALTER COLUMN roles TYPE JSONB USING roles::jsonb`)
		if err != nil {
			return fmt.Errorf("failed to convert sessions.roles to jsonb: %w", err)
		}
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_subject ON sessions(subject)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create sessions index: %w", err)
		}
	}
	fmt.Println(" OK")
	return nil
}

func down_20251020090001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping sessions table...")
	_, err := db.NewDropTable().Model((*models.Session)(nil)).IfExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop sessions table: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
