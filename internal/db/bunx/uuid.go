package bunx

import "github.com/google/uuid"

// NewUUIDv7 returns a time-ordered UUID for primary keys. IDs are generated
// in Go so both dialects share one schema without gen_random_uuid().
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
