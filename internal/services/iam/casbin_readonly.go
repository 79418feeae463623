package iam

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"go.uber.org/zap"
)

// AuthorizeRole checks whether role may perform act on obj.
//
// This is a READ-ONLY check: the enforcer is only queried, never mutated,
// so it is safe for concurrent use from request handlers. Role inheritance
// (Admin → Manager → Staff) comes from the policy's grouping rules. An
// empty role is always denied.
func AuthorizeRole(enforcer casbin.IEnforcer, role, obj, act string, logger *zap.Logger) (bool, error) {
	if enforcer == nil {
		return false, fmt.Errorf("casbin enforcer not initialized")
	}
	if role == "" {
		logger.Debug("authorization denied: no primary role", zap.String("obj", obj), zap.String("act", act))
		return false, nil
	}

	allowed, err := enforcer.Enforce(role, obj, act)
	if err != nil {
		return false, fmt.Errorf("casbin enforce error for role %s: %w", role, err)
	}

	logger.Debug("authorization check",
		zap.String("role", role),
		zap.String("obj", obj),
		zap.String("act", act),
		zap.Bool("allowed", allowed))
	return allowed, nil
}
