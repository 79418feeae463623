package models

import (
	"time"

	"github.com/uptrace/bun"
)

// LocalUser mirrors one identity-provider account. The directory sync owns
// every field except LastLoginAt, which the login endpoint stamps.
type LocalUser struct {
	bun.BaseModel `bun:"table:local_users,alias:lu"`

	ID                string     `bun:"id,pk,type:varchar(36)"`
	ExternalID        string     `bun:"external_id,notnull,unique"` // provider subject id
	Username          string     `bun:"username,notnull"`
	FirstName         string     `bun:"first_name,notnull,default:''"`
	LastName          string     `bun:"last_name,notnull,default:''"`
	FullName          string     `bun:"full_name,notnull,default:''"`
	Email             string     `bun:"email,notnull,default:''"`
	Active            bool       `bun:"active,notnull"`
	EmailVerified     bool       `bun:"email_verified,notnull,default:false"`
	Role              string     `bun:"role,notnull"`
	ProviderCreatedAt *time.Time `bun:"provider_created_at"`
	CreatedAt         time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	LastLoginAt       *time.Time `bun:"last_login_at"`
}

// SameIdentity reports whether every synced field of u equals other's.
// Timestamps and the primary key are not compared.
func (u *LocalUser) SameIdentity(other *LocalUser) bool {
	return u.Username == other.Username &&
		u.FirstName == other.FirstName &&
		u.LastName == other.LastName &&
		u.FullName == other.FullName &&
		u.Email == other.Email &&
		u.Active == other.Active &&
		u.EmailVerified == other.EmailVerified &&
		u.Role == other.Role &&
		EqualTimePtr(u.ProviderCreatedAt, other.ProviderCreatedAt)
}

// EqualTimePtr compares optional timestamps by instant.
func EqualTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
