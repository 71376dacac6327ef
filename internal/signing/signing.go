// Package signing protects task payloads that carry webhook credentials while
// they sit on the broker.
package signing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kursadbilgin/notify/internal/domain"
)

const issuer = "notify"

type claims struct {
	Payload json.RawMessage `json:"payload"`
	jwt.RegisteredClaims
}

// Signer signs and verifies payloads as HS256 JWTs.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// Sign encodes payload as JSON and wraps it in a signed token.
func (s *Signer) Sign(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Payload: raw,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and decodes its payload into out.
// Tampered or malformed tokens return an error wrapping domain.ErrInvalidPayload.
func (s *Signer) Verify(token string, out any) error {
	parsed := &claims{}
	_, err := jwt.ParseWithClaims(token, parsed, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return fmt.Errorf("%w: bad signature", domain.ErrInvalidPayload)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	if len(parsed.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", domain.ErrInvalidPayload)
	}
	if err := json.Unmarshal(parsed.Payload, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}
