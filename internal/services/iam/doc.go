// Package iam authenticates requests and authorizes principals for the
// store API.
//
// Two authenticators are tried in order:
//
//   - SessionAuthenticator: the store.session cookie created by Login
//   - BearerAuthenticator: an access token issued by the identity provider
//
// Both produce an *auth.Principal carrying the canonical session scheme, so
// handlers never care which transport a caller used.
//
// Request Flow:
//
//	Request → MultiAuth → Authenticator.Authenticate() → Principal
//	       ↓
//	   Handler → Service.Authorize(principal) → primary role → Casbin (read-only)
//
// The primary role comes from the synced local user (UserRoleCache) and
// falls back to the token's own roles for users sync has not seen yet.
package iam
