// Package auth issues and checks booking-scoped access tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Talkie/internal/domain"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

const DefaultTTL = 12 * time.Hour

var (
	ErrMissingToken   = errors.New("bearer token missing")
	ErrClaimsMismatch = errors.New("token does not cover this booking and role")
)

// Claims bind a token to one booking and one side of it.
type Claims struct {
	BookingCode domain.ConversationKey `json:"booking_code"`
	Role        domain.Role            `json:"role"`
	jwtlib.RegisteredClaims
}

// Manager signs and verifies HS256 tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil, errors.New("jwt: empty secret key")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{secret: []byte(s), ttl: ttl, now: time.Now}, nil
}

func (m *Manager) Issue(key domain.ConversationKey, role domain.Role) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	if !role.Valid() {
		return "", domain.InvalidArgument("role", "must be driver or passenger")
	}
	now := m.now()
	claims := Claims{
		BookingCode: key,
		Role:        role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   string(key) + "/" + string(role),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse verifies signature and expiry.
func (m *Manager) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrMissingToken)
	}
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(m.now),
	)
	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwtlib.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	return claims, nil
}

// Authorize parses token and checks it covers key and role.
func (m *Manager) Authorize(token string, key domain.ConversationKey, role domain.Role) error {
	claims, err := m.Parse(token)
	if err != nil {
		return err
	}
	if claims.BookingCode != key || claims.Role != role {
		return fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrClaimsMismatch)
	}
	return nil
}

// AuthorizeKey accepts a token of either role of key.
func (m *Manager) AuthorizeKey(token string, key domain.ConversationKey) error {
	claims, err := m.Parse(token)
	if err != nil {
		return err
	}
	if claims.BookingCode != key {
		return fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrClaimsMismatch)
	}
	return nil
}

// FromRequest reads "Authorization: Bearer <token>" or the token query parameter.
func FromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
