package auth

import "encoding/json"

// AudienceEvidence is the token data the audience check looks at.
type AudienceEvidence struct {
	Audience        []string
	AuthorizedParty string
	ResourceAccess  []byte // raw resource_access claim
}

// AudienceValidator decides whether a token was issued for this application.
//
// Keycloak often leaves the client id out of aud (it lists "account"
// instead), so four signals are accepted: aud contains ClientID, azp equals
// ClientID, resource_access has a ClientID entry, or aud shares a value with
// AdditionalAudiences.
type AudienceValidator struct {
	ClientID            string
	AdditionalAudiences []string
}

// Validate returns nil when any signal matches, else an *AuthFailure of
// kind FailureAudienceRejected.
func (v AudienceValidator) Validate(ev AudienceEvidence) error {
	if v.ClientID != "" {
		if contains(ev.Audience, v.ClientID) {
			return nil
		}
		if ev.AuthorizedParty == v.ClientID {
			return nil
		}
		if hasTopLevelKey(ev.ResourceAccess, v.ClientID) {
			return nil
		}
	}
	for _, extra := range v.AdditionalAudiences {
		if extra != "" && contains(ev.Audience, extra) {
			return nil
		}
	}
	return &AuthFailure{Kind: FailureAudienceRejected}
}

// hasTopLevelKey reports whether raw is a JSON object with key present.
// Other entries are not inspected, so a malformed foreign client entry
// does not hide ours.
func hasTopLevelKey(raw []byte, key string) bool {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return false
	}
	_, ok := entries[key]
	return ok
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
