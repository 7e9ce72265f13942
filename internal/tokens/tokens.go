package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure kinds. They exist for logs; the HTTP boundary
// collapses all of them into a single unauthorized response.
var (
	ErrTokenEmpty       = errors.New("token is empty")
	ErrTokenMalformed   = errors.New("token is malformed")
	ErrTokenExpired     = errors.New("token is expired")
	ErrTokenUnsupported = errors.New("token is unsupported")
)

type AccessClaims struct {
	jwt.RegisteredClaims
}

// Issuer mints and verifies short-lived stateless access tokens. There is
// no revocation for these; short TTL is the only defense, the refresh token
// layer is the durable revocable one.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl}
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (i *Issuer) Issue(username string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.secret)
}

// Verify returns the username the token is bound to.
func (i *Issuer) Verify(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", ErrTokenEmpty
	}

	var claims AccessClaims
	t, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrTokenUnsupported
		}
		return i.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenUnsupported):
			return "", ErrTokenUnsupported
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenUnverifiable):
			return "", ErrTokenUnsupported
		default:
			return "", ErrTokenMalformed
		}
	}
	if !t.Valid || claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}
