package directory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/oauth2"

	"github.com/SevenofThr4wn/HardwareStore/internal/db/bunx"
	"github.com/SevenofThr4wn/HardwareStore/internal/keycloak"
	"github.com/SevenofThr4wn/HardwareStore/internal/migrations"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
)

// fakeDirectory serves a fixed directory from memory.
type fakeDirectory struct {
	mu       sync.Mutex
	users    []keycloak.DirectoryUser
	roles    map[string][]string
	roleErrs map[string]error
	tokenErr error
	listErr  error
	// listErrAt fails the list call whose page starts at this offset (-1: never).
	listErrAt int
	// onRoles runs inside GetUserRoleAssignments before it answers.
	onRoles func(ctx context.Context, externalID string) error
	// onList runs inside ListDirectoryUsers before it answers.
	onList func(ctx context.Context)
	panicOnToken bool

	tokenCalls atomic.Int32
	listCalls  atomic.Int32
	roleCalls  atomic.Int32
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		roles:     map[string][]string{},
		roleErrs:  map[string]error{},
		listErrAt: -1,
	}
}

func (f *fakeDirectory) addUser(id, username string, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, keycloak.DirectoryUser{
		ID:        id,
		Username:  username,
		FirstName: username,
		LastName:  "Tester",
		Email:     username + "@example.com",
		Enabled:   true,
	})
	f.roles[id] = roles
}

func (f *fakeDirectory) ExchangeAdminCredentialsForToken(ctx context.Context) (*oauth2.Token, error) {
	f.tokenCalls.Add(1)
	if f.panicOnToken {
		panic("token endpoint exploded")
	}
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	return &oauth2.Token{AccessToken: "admin-token"}, nil
}

func (f *fakeDirectory) ListDirectoryUsers(ctx context.Context, tok *oauth2.Token, page keycloak.Page) ([]keycloak.DirectoryUser, error) {
	f.listCalls.Add(1)
	if f.onList != nil {
		f.onList(ctx)
	}
	if f.listErr != nil && page.First == f.listErrAt {
		return nil, f.listErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if page.First >= len(f.users) {
		return []keycloak.DirectoryUser{}, nil
	}
	end := min(page.First+page.Max, len(f.users))
	return append([]keycloak.DirectoryUser(nil), f.users[page.First:end]...), nil
}

func (f *fakeDirectory) GetUserRoleAssignments(ctx context.Context, tok *oauth2.Token, externalID string) ([]keycloak.RoleAssignment, error) {
	f.roleCalls.Add(1)
	if f.onRoles != nil {
		if err := f.onRoles(ctx, externalID); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.roleErrs[externalID]; err != nil {
		return nil, err
	}
	var out []keycloak.RoleAssignment
	for _, name := range f.roles[externalID] {
		out = append(out, keycloak.RoleAssignment{ExternalID: externalID, RoleName: name})
	}
	return out, nil
}

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return db
}

func countUsers(t *testing.T, repo repository.LocalUserRepository) int {
	t.Helper()
	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	return n
}
