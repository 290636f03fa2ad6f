package auth

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/medconnect/signaling-relay/internal/config"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Verifier checks a credential and returns the authenticated subject.
//
// The subject is the caller identity supplied by the external identity
// provider (the JWT `sub` claim). The relay uses it for audit logging only;
// it is never asserted inside relayed envelopes and is empty for api_key
// mode, where the credential is shared rather than per-caller.
type Verifier interface {
	Verify(credential string) (subject string, err error)
}

func NewVerifier(cfg config.Config) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeAPIKey:
		return APIKeyVerifier{Expected: cfg.APIKey}, nil
	case config.AuthModeJWT:
		return NewJWTVerifier(cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

// CredentialFromQuery resolves the credential from connection query
// parameters (`apiKey` or `token` depending on mode).
func CredentialFromQuery(mode config.AuthMode, q url.Values) (string, error) {
	switch mode {
	case config.AuthModeAPIKey:
		if apiKey := q.Get("apiKey"); apiKey != "" {
			return apiKey, nil
		}
		return "", ErrMissingCredentials
	case config.AuthModeJWT:
		if token := q.Get("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingCredentials
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
}

// CredentialFromAuthEvent resolves the credential from a first-frame auth
// handshake.
func CredentialFromAuthEvent(mode config.AuthMode, apiKey, token string) (string, error) {
	switch mode {
	case config.AuthModeAPIKey:
		if apiKey != "" {
			return apiKey, nil
		}
		return "", ErrMissingCredentials
	case config.AuthModeJWT:
		if token != "" {
			return token, nil
		}
		return "", ErrMissingCredentials
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
}
