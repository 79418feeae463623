package auth

import (
	"net/http"
	"strings"

	"github.com/xenitab/go-oidc-middleware/oidctoken"
	"github.com/xenitab/go-oidc-middleware/options"
)

// bearerTokenStrings lists where a bearer token may appear, in order:
// "Authorization: Bearer <jwt>" first, then "X-Access-Token: <jwt>" for
// clients that cannot set Authorization.
var bearerTokenStrings = [][]options.TokenStringOption{
	{},
	{
		options.WithTokenStringHeaderName("X-Access-Token"),
		options.WithTokenStringTokenPrefix(""),
	},
}

// ExtractBearerToken returns the raw bearer token, or false when the
// headers carry none.
func ExtractBearerToken(h http.Header) (string, bool) {
	if h == nil {
		return "", false
	}
	token, err := oidctoken.GetTokenString(h.Get, bearerTokenStrings)
	if err != nil {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
