package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	ModeHTTP = "http"
	ModeJWT  = "jwt"

	HeaderSessionID = "X-Session-Id"
)

var (
	ErrMissingToken   = errors.New("authentication required")
	ErrInvalidSession = errors.New("invalid or expired session")
	ErrNotConfigured  = errors.New("session verification not configured")
)

// Credentials is what the gateway extracts from an inbound request.
type Credentials struct {
	Token     string
	SessionID string
}

// SessionVerifier returns nil only when the session is positively valid.
type SessionVerifier interface {
	Verify(ctx context.Context, creds Credentials) error
}

// DenyAll rejects every session. Used when no verification mode is set so
// protected routes fail closed.
type DenyAll struct{}

func (DenyAll) Verify(context.Context, Credentials) error {
	return ErrNotConfigured
}

type Options struct {
	Mode         string
	VerifyURL    string
	PublicKeyPEM string
	Timeout      time.Duration
}

func NewVerifier(o Options) (SessionVerifier, error) {
	switch o.Mode {
	case "":
		return DenyAll{}, nil
	case ModeHTTP:
		if o.VerifyURL == "" {
			return nil, fmt.Errorf("auth mode %q requires AUTH_VERIFY_URL", o.Mode)
		}
		return NewHTTPVerifier(o.VerifyURL, o.Timeout), nil
	case ModeJWT:
		key, err := ParseRSAPublicKey(o.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return NewJWTVerifier(key), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", o.Mode)
	}
}
