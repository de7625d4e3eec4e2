// internal/auth/auth.go
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Identity is the resolved caller identity attached to a session: either a
// registered Account or an anonymous Guest. Exactly one variant applies;
// consumers switch over the concrete type rather than testing a nullable
// field.
type Identity interface {
	identity()
}

// Account identifies a registered user verified via session token.
type Account struct {
	UserID   uuid.UUID
	Username string
}

func (Account) identity() {}

// Guest identifies an anonymous caller. The GuestID is minted per session
// and carries no proof of ownership.
type Guest struct {
	GuestID uuid.UUID
}

func (Guest) identity() {}

// sessionClaims is the JWT payload for registered accounts.
type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies the signed session tokens issued by the
// external account service. Both sides share the HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service with the given shared secret and
// token lifetime.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Mint issues a signed session token for a registered user.
func (s *TokenService) Mint(userID uuid.UUID, username string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ResolveIdentity turns a raw session token into a caller identity. A valid
// token resolves to an Account; an absent, expired, or malformed token
// resolves to a fresh Guest. Token problems are logged, never surfaced —
// anonymous play is a supported path, not an error.
func (s *TokenService) ResolveIdentity(tokenString string) Identity {
	if tokenString == "" {
		return Guest{GuestID: uuid.New()}
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		logrus.WithError(err).Debug("session token rejected, continuing as guest")
		return Guest{GuestID: uuid.New()}
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		logrus.WithError(err).Debug("session token subject malformed, continuing as guest")
		return Guest{GuestID: uuid.New()}
	}

	return Account{UserID: userID, Username: claims.Username}
}
