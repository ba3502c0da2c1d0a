package utils // package utils provides helpers for staff tokens and logging

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Staff roles carried in the "role" claim.
const (
	RolePitBoss    = "PIT_BOSS"
	RoleSupervisor = "SUPERVISOR"
	RoleDealer     = "DEALER"
)

// StaffRoles lists every role accepted by the API.
var StaffRoles = []string{RolePitBoss, RoleSupervisor, RoleDealer}

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid token")

// ValidRole reports whether r is a staff role.
func ValidRole(r string) bool {
	for _, s := range StaffRoles {
		if r == s {
			return true
		}
	}
	return false
}

// StaffClaims are the claims of a staff access token.  Subject holds the
// staff member id; CasinoID optionally pins the token to one casino.
type StaffClaims struct {
	Role     string `json:"role"`
	CasinoID string `json:"casino_id,omitempty"`
	jwt.RegisteredClaims
}

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token string    `json:"access_token"`
	Exp   time.Time `json:"expires_at"`
}

// NewAccessToken signs an HS256 token for a staff member.  Logins are
// handled elsewhere; this is used by floorctl and tests.
func NewAccessToken(secret, staffID, role, casinoID string, ttl time.Duration) (AccessToken, error) {
	if !ValidRole(role) {
		return AccessToken{}, fmt.Errorf("unknown role %q", role)
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := StaffClaims{
		Role:     role,
		CasinoID: casinoID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw and returns its claims.  Only HMAC-signed
// tokens with a staff role and a subject are accepted.
func ParseAccessToken(secret, raw string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || !ValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: missing subject or unknown role", ErrInvalidToken)
	}
	return claims, nil
}
