package auth

// tiers maps recognized provider role names to primary roles, highest first.
var tiers = []struct {
	providerRole string
	primary      string
}{
	{"admin", RoleAdmin},
	{"manager", RoleManager},
	{"staff", RoleStaff},
}

// DerivePrimaryRole picks the single role stored on a LocalUser.
//
// Recognized names win by tier (admin > manager > staff). Otherwise the
// first non-empty name in provider order is kept verbatim, and an empty set
// yields fallback. Matching is case-sensitive.
func DerivePrimaryRole(roles []string, fallback string) string {
	for _, tier := range tiers {
		if contains(roles, tier.providerRole) {
			return tier.primary
		}
	}
	for _, r := range roles {
		if r != "" {
			return r
		}
	}
	return fallback
}
