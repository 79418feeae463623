package keycloak

import (
	"fmt"
	"strings"
	"time"
)

// DirectoryUser is a user record from GET /admin/realms/{realm}/users.
type DirectoryUser struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email"`
	Enabled          bool   `json:"enabled"`
	EmailVerified    bool   `json:"emailVerified"`
	CreatedTimestamp int64  `json:"createdTimestamp"` // unix millis
}

// FullName joins first and last name, skipping blanks.
func (u DirectoryUser) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// CreatedAt converts CreatedTimestamp, or nil when the provider omitted it.
func (u DirectoryUser) CreatedAt() *time.Time {
	if u.CreatedTimestamp <= 0 {
		return nil
	}
	t := time.UnixMilli(u.CreatedTimestamp).UTC()
	return &t
}

// RoleAssignment is one realm role mapped to a user.
type RoleAssignment struct {
	ExternalID  string `json:"-"`
	RoleID      string `json:"id"`
	RoleName    string `json:"name"`
	Composite   bool   `json:"composite"`
	ClientRole  bool   `json:"clientRole"`
	ContainerID string `json:"containerId"`
}

// RoleNames returns assignment names in provider order.
func RoleNames(assignments []RoleAssignment) []string {
	names := make([]string, 0, len(assignments))
	for _, a := range assignments {
		names = append(names, a.RoleName)
	}
	return names
}

// Page selects a window of the user list.
type Page struct {
	First int
	Max   int
}

// Next returns the page after p.
func (p Page) Next() Page {
	return Page{First: p.First + p.Max, Max: p.Max}
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keycloak %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
