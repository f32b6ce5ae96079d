package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const sessionClaim = "sid"

// JWTVerifier validates RSA signed session tokens locally. The token must
// carry an expiry and a sid claim equal to the X-Session-Id header.
type JWTVerifier struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

func NewJWTVerifier(publicKey *rsa.PublicKey) *JWTVerifier {
	return &JWTVerifier{
		publicKey: publicKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (v *JWTVerifier) Verify(_ context.Context, creds Credentials) error {
	if creds.Token == "" {
		return ErrMissingToken
	}

	token, err := v.parser.Parse(creds.Token, func(*jwt.Token) (any, error) {
		return v.publicKey, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ErrInvalidSession
	}

	sid, _ := claims[sessionClaim].(string)
	if sid == "" || sid != creds.SessionID {
		return fmt.Errorf("%w: session id mismatch", ErrInvalidSession)
	}
	return nil
}

func ParseRSAPublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(normalizePEM(pemStr)))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}

var (
	pemHeaderRe = regexp.MustCompile(`(?i)(-----BEGIN [A-Z ]+-----)`)
	pemFooterRe = regexp.MustCompile(`(?i)(-----END [A-Z ]+-----)`)
)

// normalizePEM restores line breaks in keys passed through single-line env vars.
func normalizePEM(s string) string {
	if strings.Contains(s, "\n") {
		return s
	}
	s = pemHeaderRe.ReplaceAllString(s, "$1\n")
	s = pemFooterRe.ReplaceAllString(s, "\n$1")
	s = strings.TrimSpace(s)

	header, rest, ok := strings.Cut(s, "\n")
	if !ok {
		return s
	}
	body, footer, ok := strings.Cut(rest, "\n")
	if !ok {
		return s
	}
	return header + "\n" + strings.ReplaceAll(strings.TrimSpace(body), " ", "\n") + "\n" + footer + "\n"
}
