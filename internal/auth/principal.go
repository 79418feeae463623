package auth

// Authentication scheme tags. Authorization only trusts SchemeSession;
// principals built from bearer tokens are retagged by UnifyScheme.
const (
	SchemeSession = "session"
	SchemeBearer  = "Bearer"
)

// Transports record how the request presented its credentials.
const (
	TransportBearer  = "bearer"
	TransportSession = "session"
)

// Principal is the authenticated caller for one request. Treat it as a
// value: helpers in this package return modified copies.
type Principal struct {
	Subject string
	// Name is preferred_username, falling back to name.
	Name  string
	Email string
	// Roles are deduplicated provider role names (realm and client roles).
	Roles     []string
	Scheme    string
	Transport string
	// SessionID is set for cookie-session principals.
	SessionID string
}

// Authenticated reports whether p identifies a subject.
func (p *Principal) Authenticated() bool {
	return p != nil && p.Subject != ""
}

func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return contains(p.Roles, role)
}

// Clone returns a deep copy.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Roles = append([]string(nil), p.Roles...)
	return &cp
}

// UnifyScheme returns a copy of p tagged with canonical when p is
// authenticated under a different scheme. Otherwise p is returned as is.
// Claims, name and roles are never touched.
func UnifyScheme(p *Principal, canonical string) *Principal {
	if !p.Authenticated() || p.Scheme == canonical {
		return p
	}
	cp := p.Clone()
	cp.Scheme = canonical
	return cp
}
