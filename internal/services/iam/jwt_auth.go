package iam

import (
	"context"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
)

// BearerValidator validates provider access tokens; *auth.TokenValidator implements it.
type BearerValidator interface {
	ValidateBearerToken(ctx context.Context, token string) (*auth.Principal, error)
}

// BearerAuthenticator authenticates "Authorization: Bearer" (or
// X-Access-Token) requests with the token validator. The validator already
// returns principals under the canonical scheme.
type BearerAuthenticator struct {
	validator BearerValidator
}

func NewBearerAuthenticator(validator BearerValidator) *BearerAuthenticator {
	return &BearerAuthenticator{validator: validator}
}

func (a *BearerAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*auth.Principal, error) {
	token, ok := auth.ExtractBearerToken(req.Headers)
	if !ok {
		return nil, nil
	}

	principal, err := a.validator.ValidateBearerToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return principal, nil
}
