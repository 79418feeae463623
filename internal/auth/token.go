package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// keycloakClaims is the subset of a Keycloak access token we read. Role
// claims stay raw until NormalizeRoles classifies them.
type keycloakClaims struct {
	jwt.RegisteredClaims
	AuthorizedParty   string          `json:"azp,omitempty"`
	PreferredUsername string          `json:"preferred_username,omitempty"`
	Name              string          `json:"name,omitempty"`
	Email             string          `json:"email,omitempty"`
	RealmAccess       json.RawMessage `json:"realm_access,omitempty"`
	ResourceAccess    json.RawMessage `json:"resource_access,omitempty"`
}

type TokenValidatorConfig struct {
	// Issuer must equal the iss claim exactly ({base_url}/realms/{realm}).
	Issuer              string
	ClientID            string
	AdditionalAudiences []string
	// ClockSkew is the leeway for exp, nbf and iat.
	ClockSkew time.Duration
}

// TokenValidator verifies provider access tokens and builds principals.
// It is safe for concurrent use.
type TokenValidator struct {
	keys     KeySet
	audience AudienceValidator
	parser   *jwt.Parser
	logger   *zap.Logger
}

func NewTokenValidator(cfg TokenValidatorConfig, keys KeySet, logger *zap.Logger) *TokenValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenValidator{
		keys: keys,
		audience: AudienceValidator{
			ClientID:            cfg.ClientID,
			AdditionalAudiences: cfg.AdditionalAudiences,
		},
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{
				"RS256", "RS384", "RS512",
				"PS256", "PS384", "PS512",
				"ES256", "ES384", "ES512",
			}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.ClockSkew),
		),
		logger: logger,
	}
}

// ValidateBearerToken checks signature, issuer, lifetime and audience. On
// success the principal's roles are exactly realm_access roles plus
// resource_access roles, and its scheme is already unified to
// SchemeSession. Every error is an *AuthFailure.
func (v *TokenValidator) ValidateBearerToken(ctx context.Context, token string) (*Principal, error) {
	claims := &keycloakClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.LookupKey(ctx, kid)
	})
	if err != nil {
		return nil, v.reject(classifyParseError(err), err)
	}

	if err := ValidateSubject(claims.Subject); err != nil {
		return nil, v.reject(FailureMalformed, fmt.Errorf("sub claim: %w", err))
	}

	if err := v.audience.Validate(AudienceEvidence{
		Audience:        claims.Audience,
		AuthorizedParty: claims.AuthorizedParty,
		ResourceAccess:  claims.ResourceAccess,
	}); err != nil {
		return nil, v.reject(FailureAudienceRejected, errors.New("no accepted audience"))
	}

	name := claims.PreferredUsername
	if name == "" {
		name = claims.Name
	}

	p := &Principal{
		Subject: claims.Subject,
		Name:    name,
		Email:   claims.Email,
		Roles: NormalizeRoles(v.logger,
			RoleClaim{Name: "realm_access", Raw: claims.RealmAccess},
			RoleClaim{Name: "resource_access", Raw: claims.ResourceAccess},
		),
		Scheme:    SchemeBearer,
		Transport: TransportBearer,
	}
	return UnifyScheme(p, SchemeSession), nil
}

func (v *TokenValidator) reject(kind FailureKind, err error) error {
	v.logger.Debug("bearer token rejected", zap.String("kind", string(kind)), zap.NamedError("reason", err))
	return &AuthFailure{Kind: kind, Err: err}
}

// classifyParseError maps jwt and KeySet errors to a failure kind. Key
// errors are checked first: jwt reports them as "unverifiable".
func classifyParseError(err error) FailureKind {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return FailureMalformed
	case errors.Is(err, ErrUnknownKey):
		return FailureUnknownKey
	case errors.Is(err, ErrKeysUnavailable):
		return FailureKeysUnavailable
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return FailureBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return FailureExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return FailureNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return FailureWrongIssuer
	default:
		return FailureMalformed
	}
}
