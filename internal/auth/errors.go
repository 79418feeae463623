package auth

import (
	"errors"
	"fmt"
)

// FailureKind names why a bearer token was rejected. Kinds are logged and
// counted, never shown to the caller.
type FailureKind string

const (
	FailureMalformed        FailureKind = "malformed"
	FailureUnknownKey       FailureKind = "unknown_key"
	FailureKeysUnavailable  FailureKind = "keys_unavailable"
	FailureBadSignature     FailureKind = "bad_signature"
	FailureExpired          FailureKind = "expired"
	FailureNotYetValid      FailureKind = "not_yet_valid"
	FailureWrongIssuer      FailureKind = "wrong_issuer"
	FailureAudienceRejected FailureKind = "audience_rejected"
)

// Sentinels returned by KeySet implementations.
var (
	ErrUnknownKey      = errors.New("signing key not found")
	ErrKeysUnavailable = errors.New("signing keys unavailable")
)

// AuthFailure is the only error type ValidateBearerToken returns.
type AuthFailure struct {
	Kind FailureKind
	Err  error
}

func (f *AuthFailure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("token rejected: %s", f.Kind)
	}
	return fmt.Sprintf("token rejected: %s: %v", f.Kind, f.Err)
}

func (f *AuthFailure) Unwrap() error { return f.Err }

// FailureKindOf extracts the kind from an error chain, or "" if err is not an *AuthFailure.
func FailureKindOf(err error) FailureKind {
	var f *AuthFailure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
