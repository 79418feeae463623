package auth

import (
	"fmt"
	"unicode"
)

// maxSubjectLength matches the width of local_users.external_id on PostgreSQL.
const maxSubjectLength = 255

// ValidateSubject checks a provider subject id (token sub claim or directory
// user id) before it is used as a lookup key.
func ValidateSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("subject is empty")
	}
	if len(subject) > maxSubjectLength {
		return fmt.Errorf("subject longer than %d bytes", maxSubjectLength)
	}
	for _, r := range subject {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("subject contains whitespace or control characters: %q", subject)
		}
	}
	return nil
}
