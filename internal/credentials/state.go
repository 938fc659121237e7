// Package credentials manages Google OAuth connections: signed state for the
// consent round trip and encrypted token storage.
package credentials

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
)

// DefaultStateTTL bounds how long a consent round trip may take.
const DefaultStateTTL = 10 * time.Minute

// State is the payload carried through the OAuth consent redirect.
type State struct {
	Nonce      string    `json:"nonce"`
	UserID     string    `json:"user_id"`
	RedirectTo string    `json:"redirect_to,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

type stateClaims struct {
	UserID     string `json:"user_id"`
	RedirectTo string `json:"redirect_to,omitempty"`
	jwt.RegisteredClaims
}

// StateEncoder signs and verifies OAuth state with HMAC-SHA256.
type StateEncoder struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateEncoder creates an encoder. A non-positive ttl uses DefaultStateTTL.
func NewStateEncoder(secret string, ttl time.Duration) (*StateEncoder, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "oauth state secret must be provided")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateEncoder{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source.
func (e *StateEncoder) WithClock(now func() time.Time) *StateEncoder {
	e.now = now
	return e
}

// Encode issues a signed state for userID.
func (e *StateEncoder) Encode(userID, redirectTo string) (string, *State, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil, apperrors.NewValidationError("user_id", userID, "is required")
	}

	issued := e.now().UTC().Truncate(time.Second)
	state := &State{
		Nonce:      uuid.New().String(),
		UserID:     userID,
		RedirectTo: redirectTo,
		IssuedAt:   issued,
	}

	claims := stateClaims{
		UserID:     userID,
		RedirectTo: redirectTo,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        state.Nonce,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(e.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing state: %w", err)
	}
	return token, state, nil
}

// Decode verifies a state token. An expired token yields ErrStateExpired; a
// bad signature or missing field yields ErrStateInvalid.
func (e *StateEncoder) Decode(token string) (*State, error) {
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return e.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(e.now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Wrap(apperrors.ErrStateExpired, "oauth state token has expired")
		}
		return nil, apperrors.Wrapf(apperrors.ErrStateInvalid, "invalid oauth state: %v", err)
	}

	if claims.IssuedAt == nil {
		return nil, apperrors.Wrap(apperrors.ErrStateInvalid, "missing issued_at in state token")
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, apperrors.Wrap(apperrors.ErrStateInvalid, "missing user identifier in state token")
	}

	return &State{
		Nonce:      claims.ID,
		UserID:     claims.UserID,
		RedirectTo: claims.RedirectTo,
		IssuedAt:   claims.IssuedAt.Time.UTC(),
	}, nil
}
