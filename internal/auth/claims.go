package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// RoleClaimShape tags the JSON layout a role claim arrived in.
type RoleClaimShape int

const (
	// ShapeAbsent: claim missing, empty or null
	ShapeAbsent RoleClaimShape = iota
	// ShapeObjectWithArray: {"roles": ["admin", ...]} (realm_access)
	ShapeObjectWithArray
	// ShapeArray: ["admin", ...]
	ShapeArray
	// ShapeObjectOfObjects: {"store-web": {"roles": [...]}, ...} (resource_access)
	ShapeObjectOfObjects
	// ShapeUnparsable: anything else, including a non-string role entry
	ShapeUnparsable
)

func (s RoleClaimShape) String() string {
	switch s {
	case ShapeAbsent:
		return "absent"
	case ShapeObjectWithArray:
		return "object_with_array"
	case ShapeArray:
		return "array"
	case ShapeObjectOfObjects:
		return "object_of_objects"
	default:
		return "unparsable"
	}
}

// ParsedRoleClaim is the tagged result of ParseRoleClaim.
type ParsedRoleClaim struct {
	Shape RoleClaimShape
	// Roles is every role name in the claim, in document order. For
	// ShapeObjectOfObjects clients are visited in name order.
	Roles []string
	// Clients maps client id to its roles. Only set for ShapeObjectOfObjects.
	Clients map[string][]string
}

// HasClient reports whether an object-of-objects claim has a top-level key equal to clientID.
func (p ParsedRoleClaim) HasClient(clientID string) bool {
	_, ok := p.Clients[clientID]
	return ok
}

type realmRoles struct {
	Roles []string `mapstructure:"roles"`
}

// ParseRoleClaim classifies raw claim JSON and extracts its role names.
// The returned error is non-nil exactly when the shape is ShapeUnparsable.
func ParseRoleClaim(raw []byte) (ParsedRoleClaim, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ParsedRoleClaim{Shape: ShapeAbsent}, nil
	}

	var doc any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return unparsable(fmt.Errorf("invalid json: %w", err))
	}

	switch v := doc.(type) {
	case []any:
		var roles []string
		if err := decodeStrict(v, &roles); err != nil {
			return unparsable(fmt.Errorf("array: %w", err))
		}
		return ParsedRoleClaim{Shape: ShapeArray, Roles: roles}, nil

	case map[string]any:
		if inner, ok := v["roles"]; ok && isArrayOrNull(inner) {
			var rr realmRoles
			if err := decodeStrict(v, &rr); err != nil {
				return unparsable(fmt.Errorf("object with roles array: %w", err))
			}
			return ParsedRoleClaim{Shape: ShapeObjectWithArray, Roles: rr.Roles}, nil
		}

		var clients map[string]realmRoles
		if err := decodeStrict(v, &clients); err != nil {
			return unparsable(fmt.Errorf("object of objects: %w", err))
		}
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)

		parsed := ParsedRoleClaim{Shape: ShapeObjectOfObjects, Clients: make(map[string][]string, len(clients))}
		for _, name := range names {
			parsed.Clients[name] = clients[name].Roles
			parsed.Roles = append(parsed.Roles, clients[name].Roles...)
		}
		return parsed, nil

	default:
		return unparsable(fmt.Errorf("unexpected json type %T", doc))
	}
}

func unparsable(err error) (ParsedRoleClaim, error) {
	return ParsedRoleClaim{Shape: ShapeUnparsable}, err
}

func isArrayOrNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.([]any)
	return ok
}

// decodeStrict decodes without weak typing, so a number where a role name
// is expected is an error instead of "42".
func decodeStrict(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: false,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// RoleClaim is a named raw claim handed to NormalizeRoles.
type RoleClaim struct {
	Name string
	Raw  []byte
}

// NormalizeRoles unions the roles of every claim, dropping empty names and
// duplicates while keeping first-seen order. An unparsable claim is logged
// and contributes nothing.
func NormalizeRoles(logger *zap.Logger, claims ...RoleClaim) []string {
	seen := make(map[string]struct{})
	roles := make([]string, 0)

	for _, c := range claims {
		parsed, err := ParseRoleClaim(c.Raw)
		if err != nil {
			if logger != nil {
				logger.Warn("role claim unparsable, ignoring",
					zap.String("claim", c.Name),
					zap.String("shape", parsed.Shape.String()),
					zap.Error(err))
			}
			continue
		}
		for _, r := range parsed.Roles {
			if r == "" {
				continue
			}
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			roles = append(roles, r)
		}
	}
	return roles
}
