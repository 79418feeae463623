package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifyScheme(t *testing.T) {
	bearer := &Principal{Subject: "kc-1", Name: "ada", Roles: []string{"admin"}, Scheme: SchemeBearer, Transport: TransportBearer}

	unified := UnifyScheme(bearer, SchemeSession)
	require.NotSame(t, bearer, unified)
	assert.Equal(t, SchemeSession, unified.Scheme)
	assert.Equal(t, SchemeBearer, bearer.Scheme, "input must not be mutated")
	assert.Equal(t, bearer.Subject, unified.Subject)
	assert.Equal(t, bearer.Name, unified.Name)
	assert.Equal(t, bearer.Roles, unified.Roles)
	assert.Equal(t, TransportBearer, unified.Transport)

	already := &Principal{Subject: "kc-1", Scheme: SchemeSession}
	assert.Same(t, already, UnifyScheme(already, SchemeSession))

	anonymous := &Principal{Scheme: SchemeBearer}
	assert.Same(t, anonymous, UnifyScheme(anonymous, SchemeSession))

	assert.Nil(t, UnifyScheme(nil, SchemeSession))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := GetCurrentPrincipal(context.Background())
	assert.False(t, ok)

	p := &Principal{Subject: "kc-1", Roles: []string{"staff"}, Scheme: SchemeSession}
	ctx := SetPrincipalContext(context.Background(), p)

	got, ok := GetCurrentPrincipal(ctx)
	require.True(t, ok)
	assert.Equal(t, "kc-1", got.Subject)

	got.Roles[0] = "admin"
	again, _ := GetCurrentPrincipal(ctx)
	assert.Equal(t, []string{"staff"}, again.Roles, "callers get copies")

	_, ok = GetCurrentPrincipal(SetPrincipalContext(context.Background(), &Principal{}))
	assert.False(t, ok, "principal without subject is unauthenticated")
}

func TestSessionToken(t *testing.T) {
	token, hash, err := GenerateSessionToken()
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Equal(t, hash, HashSessionToken(token))
	assert.NotEqual(t, token, hash)
}
