package migrations

import (
	"context"
	"fmt"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/auth/bunadapter"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20251020090002, down_20251020090002)
}

// up_20251020090002 creates authz_rules and seeds the default role policy
func up_20251020090002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating authz_rules table...")
	_, err := db.NewCreateTable().
		Model((*bunadapter.Rule)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create authz_rules table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding default policies...")
	rules := make([]*bunadapter.Rule, 0)
	for _, line := range auth.DefaultPolicies() {
		rules = append(rules, bunadapter.NewRule(line[0], line[1:]...))
	}
	_, err = db.NewInsert().
		Model(&rules).
		On("CONFLICT DO NOTHING"). // Idempotent
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed default policies: %w", err)
	}
	fmt.Println(" OK")
	return nil
}

func down_20251020090002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping authz_rules table...")
	_, err := db.NewDropTable().Model((*bunadapter.Rule)(nil)).IfExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop authz_rules table: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
