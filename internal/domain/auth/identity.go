package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// Roles recognised by the role guard.
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleDriver = "driver"
)

// ErrUnauthenticated is returned when no identity can be established.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the normalized caller identity. It is resolved once, when a
// credential is verified, and passed explicitly from then on.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IsZero reports whether id carries no user.
func (id Identity) IsZero() bool {
	return id.UserID == ""
}

// HasRole reports whether the identity holds one of roles (case-insensitive).
func (id Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if strings.EqualFold(id.Role, r) {
			return true
		}
	}
	return false
}

// CanActFor reports whether the identity may read or write data owned by
// ownerID.
func (id Identity) CanActFor(ownerID string) bool {
	return id.UserID == ownerID || id.HasRole(RoleAdmin)
}

// Claims is the subset of token claims an identity can be resolved from.
// Issuers disagree on the user id claim name, so all known spellings are
// accepted.
type Claims struct {
	ID      string `json:"id,omitempty"`
	MongoID string `json:"_id,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Resolve normalizes claims into an Identity. subject is the registered "sub"
// claim. The first non-empty of id, _id, sub, userId, email wins.
func Resolve(c Claims, subject string) (Identity, error) {
	var uid string
	for _, v := range []string{c.ID, c.MongoID, subject, c.UserID, c.Email} {
		if v = strings.TrimSpace(v); v != "" {
			uid = v
			break
		}
	}
	if uid == "" {
		return Identity{}, ErrUnauthenticated
	}

	role := strings.ToLower(strings.TrimSpace(c.Role))
	if role == "" {
		role = RoleUser
	}
	return Identity{UserID: uid, Email: c.Email, Role: role}, nil
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && !id.IsZero()
}
