package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// StringList is stored as a JSON array in a text column so the same schema
// works on SQLite and PostgreSQL.
type StringList []string

// Scan implements sql.Scanner
func (l *StringList) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("scan StringList: unexpected type %T", value)
	}
}

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Session is a cookie session created by the login endpoint. It stores a
// snapshot of the principal so requests don't re-validate the access token.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID         string     `bun:"id,pk,type:varchar(36)"`
	TokenHash  string     `bun:"token_hash,notnull,unique"` // SHA256 of the cookie value
	Subject    string     `bun:"subject,notnull"`
	Name       string     `bun:"name,notnull,default:''"`
	Email      string     `bun:"email,notnull,default:''"`
	Roles      StringList `bun:"roles,type:text,notnull"`
	Scheme     string     `bun:"scheme,notnull"`
	ExpiresAt  time.Time  `bun:"expires_at,notnull"`
	CreatedAt  time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt time.Time  `bun:"last_used_at,notnull,default:current_timestamp"`
	Revoked    bool       `bun:"revoked,notnull,default:false"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
