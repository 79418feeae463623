package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/uptrace/bun"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth/bunadapter"
)

// casbinModel is plain RBAC: the subject is a primary role, roles inherit
// through g.
const casbinModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// NewEnforcer builds a synced enforcer. With policyPath set the CSV file is
// the policy; otherwise policies are loaded from the authz_rules table.
func NewEnforcer(db *bun.DB, policyPath string) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if policyPath != "" {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(policyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m, bunadapter.NewAdapter(db))
	}
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load casbin policies: %w", err)
	}
	return enforcer, nil
}

// NewDefaultEnforcer builds an in-memory enforcer holding DefaultPolicies.
func NewDefaultEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	for _, line := range DefaultPolicies() {
		switch line[0] {
		case "p":
			_, err = enforcer.AddPolicy(line[1], line[2], line[3])
		case "g":
			_, err = enforcer.AddGroupingPolicy(line[1], line[2])
		}
		if err != nil {
			return nil, fmt.Errorf("add default policy %v: %w", line, err)
		}
	}
	return enforcer, nil
}
