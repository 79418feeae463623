package iam

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
)

// UserRoleCache provides lock-free access to the primary role of every
// synced local user, keyed by external id (the token subject).
//
// Readers see an immutable snapshot. Refresh builds a new one from the
// database and swaps the pointer, so the request path never queries
// local_users for authorization.
type UserRoleCache struct {
	snapshot atomic.Pointer[UserRoleSnapshot]
	users    repository.LocalUserRepository
}

// UserRoleSnapshot is one immutable view of local user roles.
type UserRoleSnapshot struct {
	Entries   map[string]UserRoleEntry
	CreatedAt time.Time
	Version   int
}

// UserRoleEntry is what authorization needs to know about a local user.
type UserRoleEntry struct {
	Role   string
	Active bool
}

// NewUserRoleCache creates a cache and performs the initial load.
func NewUserRoleCache(ctx context.Context, users repository.LocalUserRepository) (*UserRoleCache, error) {
	cache := &UserRoleCache{users: users}
	if err := cache.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial user role cache load: %w", err)
	}
	return cache, nil
}

// Get returns the current snapshot, or nil before the first load.
func (c *UserRoleCache) Get() *UserRoleSnapshot {
	return c.snapshot.Load()
}

// Refresh rebuilds the snapshot from local_users. Safe to call
// concurrently with readers; they see either the old or the new snapshot.
// Called at startup and after every sync run.
func (c *UserRoleCache) Refresh(ctx context.Context) error {
	users, err := c.users.List(ctx, repository.ListOptions{})
	if err != nil {
		return fmt.Errorf("list local users: %w", err)
	}

	entries := make(map[string]UserRoleEntry, len(users))
	for _, u := range users {
		entries[u.ExternalID] = UserRoleEntry{Role: u.Role, Active: u.Active}
	}

	prevVersion := 0
	if prev := c.snapshot.Load(); prev != nil {
		prevVersion = prev.Version
	}

	c.snapshot.Store(&UserRoleSnapshot{
		Entries:   entries,
		CreatedAt: time.Now(),
		Version:   prevVersion + 1,
	})
	return nil
}

// Lookup returns the cached entry for an external id.
func (c *UserRoleCache) Lookup(externalID string) (UserRoleEntry, bool) {
	snap := c.Get()
	if snap == nil {
		return UserRoleEntry{}, false
	}
	e, ok := snap.Entries[externalID]
	return e, ok
}
