// Package bunadapter persists Casbin policy lines in the authz_rules table
// through the application's *bun.DB, so SQLite and PostgreSQL share one
// policy store.
package bunadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	"github.com/uptrace/bun"
)

// Rule is one stored policy line. The store model uses at most three values
// (sub, obj, act) so V3 is spare.
type Rule struct {
	bun.BaseModel `bun:"table:authz_rules,alias:ar"`

	Ptype string `bun:",pk,type:varchar(16),notnull"` // "p" or "g"
	V0    string `bun:",pk,type:varchar(255)"`
	V1    string `bun:",pk,type:varchar(255)"`
	V2    string `bun:",pk,type:varchar(255)"`
	V3    string `bun:",pk,type:varchar(255)"`
}

// NewRule builds a Rule from a Casbin policy line.
func NewRule(ptype string, values ...string) *Rule {
	r := &Rule{Ptype: ptype}
	fields := []*string{&r.V0, &r.V1, &r.V2, &r.V3}
	for i := 0; i < len(values) && i < len(fields); i++ {
		*fields[i] = values[i]
	}
	return r
}

func (r *Rule) values() []string {
	vals := []string{r.V0, r.V1, r.V2, r.V3}
	last := len(vals) - 1
	for last >= 0 && vals[last] == "" {
		last--
	}
	return vals[:last+1]
}

// String renders the rule as a CSV policy line ("p, Admin, sync, trigger").
func (r *Rule) String() string {
	return strings.Join(append([]string{r.Ptype}, r.values()...), ", ")
}

// Adapter implements persist.Adapter on top of bun.
type Adapter struct {
	db *bun.DB
}

var _ persist.Adapter = (*Adapter)(nil)

// NewAdapter expects the authz_rules table to exist (see migrations).
func NewAdapter(db *bun.DB) *Adapter {
	return &Adapter{db: db}
}

func (a *Adapter) LoadPolicy(m model.Model) error {
	var rules []*Rule
	if err := a.db.NewSelect().Model(&rules).OrderExpr("ptype, v0, v1, v2").Scan(context.Background()); err != nil {
		return fmt.Errorf("load authz rules: %w", err)
	}
	for _, r := range rules {
		if len(r.values()) == 0 {
			continue
		}
		if err := persist.LoadPolicyLine(r.String(), m); err != nil {
			return fmt.Errorf("load authz rule %q: %w", r.String(), err)
		}
	}
	return nil
}

// SavePolicy replaces the stored policy with the model's.
func (a *Adapter) SavePolicy(m model.Model) error {
	var rules []*Rule
	for _, sec := range []string{"p", "g"} {
		for ptype, assertion := range m[sec] {
			for _, line := range assertion.Policy {
				rules = append(rules, NewRule(ptype, line...))
			}
		}
	}

	return a.db.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Rule)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return fmt.Errorf("clear authz rules: %w", err)
		}
		if len(rules) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rules).Exec(ctx); err != nil {
			return fmt.Errorf("save authz rules: %w", err)
		}
		return nil
	})
}

func (a *Adapter) AddPolicy(_ string, ptype string, rule []string) error {
	_, err := a.db.NewInsert().Model(NewRule(ptype, rule...)).On("CONFLICT DO NOTHING").Exec(context.Background())
	if err != nil {
		return fmt.Errorf("add authz rule: %w", err)
	}
	return nil
}

func (a *Adapter) RemovePolicy(_ string, ptype string, rule []string) error {
	r := NewRule(ptype, rule...)
	_, err := a.db.NewDelete().Model((*Rule)(nil)).
		Where("ptype = ?", r.Ptype).
		Where("v0 = ?", r.V0).
		Where("v1 = ?", r.V1).
		Where("v2 = ?", r.V2).
		Where("v3 = ?", r.V3).
		Exec(context.Background())
	if err != nil {
		return fmt.Errorf("remove authz rule: %w", err)
	}
	return nil
}

// RemoveFilteredPolicy deletes rules whose values starting at fieldIndex
// match fieldValues. Empty filter values match anything.
func (a *Adapter) RemoveFilteredPolicy(_ string, ptype string, fieldIndex int, fieldValues ...string) error {
	columns := []string{"v0", "v1", "v2", "v3"}
	q := a.db.NewDelete().Model((*Rule)(nil)).Where("ptype = ?", ptype)
	for i, v := range fieldValues {
		col := fieldIndex + i
		if v == "" || col < 0 || col >= len(columns) {
			continue
		}
		q = q.Where("? = ?", bun.Ident(columns[col]), v)
	}
	if _, err := q.Exec(context.Background()); err != nil {
		return fmt.Errorf("remove filtered authz rules: %w", err)
	}
	return nil
}
