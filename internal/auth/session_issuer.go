package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionTTL = 12 * time.Hour

var (
	errMissingSigningSecret = errors.New("session issuer: signing secret required")
	errMissingSubject       = errors.New("session issuer: subject required")
)

// SessionIssuerConfig configures the portal session token issuer.
type SessionIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	SessionTTL    time.Duration
	Clock         func() time.Time
}

// SessionIssuer signs HS256 session tokens carried in the portal cookie.
type SessionIssuer struct {
	config SessionIssuerConfig
	clock  func() time.Time
}

// NewSessionIssuer constructs a SessionIssuer with sane defaults.
func NewSessionIssuer(cfg SessionIssuerConfig) *SessionIssuer {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionIssuer{
		config: SessionIssuerConfig{
			SigningSecret: cfg.SigningSecret,
			Issuer:        cfg.Issuer,
			SessionTTL:    ttl,
			Clock:         clock,
		},
		clock: clock,
	}
}

// SessionTTL exposes the configured token lifetime.
func (i *SessionIssuer) SessionTTL() time.Duration {
	return i.config.SessionTTL
}

// IssueSessionToken produces a signed JWT and its expiry (seconds) for the authenticated user.
func (i *SessionIssuer) IssueSessionToken(userID, email, displayName string, roles []string) (string, int64, error) {
	if len(i.config.SigningSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if userID == "" {
		return "", 0, errMissingSubject
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.config.SessionTTL).UTC()

	claims := SessionClaims{
		UserID:          userID,
		UserEmail:       email,
		UserDisplayName: displayName,
		UserRoles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}
