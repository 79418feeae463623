package migrations

import (
	"context"
	"fmt"

	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20251020090000, down_20251020090000)
}

// up_20251020090000 creates the local_users table populated by directory sync
func up_20251020090000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating local_users table...")
	_, err := db.NewCreateTable().
		Model((*models.LocalUser)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create local_users table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_local_users_external_id ON local_users(external_id)`,
		`CREATE INDEX IF NOT EXISTS idx_local_users_username ON local_users(username)`,
		`CREATE INDEX IF NOT EXISTS idx_local_users_role ON local_users(role)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create local_users index: %w", err)
		}
	}
	fmt.Println(" OK")
	return nil
}

func down_20251020090000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping local_users table...")
	_, err := db.NewDropTable().Model((*models.LocalUser)(nil)).IfExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop local_users table: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
