package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is the JWT body: identity claims plus the registered ones.
type tokenClaims struct {
	Claims
	jwt.RegisteredClaims
}

// Tokens verifies and issues HS256 bearer tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens creates Tokens signing with secret.
func NewTokens(secret []byte) *Tokens {
	return &Tokens{secret: secret, now: time.Now}
}

// Verify checks the signature and expiry of raw and resolves the identity it
// carries. Any failure is reported as ErrUnauthenticated.
func (t *Tokens) Verify(raw string) (Identity, error) {
	var c tokenClaims
	_, err := jwt.ParseWithClaims(raw, &c, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, errors.Wrap(ErrUnauthenticated, err.Error())
	}
	return Resolve(c.Claims, c.Subject)
}

// Issue signs a token for id valid for ttl.
func (t *Tokens) Issue(id Identity, ttl time.Duration) (string, error) {
	now := t.now()
	c := tokenClaims{
		Claims: Claims{ID: id.UserID, Email: id.Email, Role: id.Role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// IdentityFromToken reads the identity carried by raw without checking the
// signature. Clients use it to learn who they are; servers must use Verify.
func IdentityFromToken(raw string) (Identity, error) {
	var c tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &c); err != nil {
		return Identity{}, errors.Wrap(ErrUnauthenticated, err.Error())
	}
	return Resolve(c.Claims, c.Subject)
}
