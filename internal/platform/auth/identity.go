package auth

import (
	"context"
	"slices"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Roles recognised on back-office staff accounts.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Identity is the authenticated staff member behind a request.
type Identity struct {
	UID   string
	Email string
	// Roles are lower-cased and free of duplicates.
	Roles          []string
	SignInProvider string
	AuthTime       time.Time
}

// newIdentity reads the staff member from a verified token. roleClaim may hold a single role,
// a list of roles, or a map of role to bool.
func newIdentity(token *firebaseauth.Token, roleClaim string) *Identity {
	identity := &Identity{
		UID:            token.UID,
		SignInProvider: token.Firebase.SignInProvider,
	}
	if email, ok := token.Claims["email"].(string); ok {
		identity.Email = strings.TrimSpace(email)
	}
	if token.AuthTime > 0 {
		identity.AuthTime = time.Unix(token.AuthTime, 0).UTC()
	}

	var raw []string
	switch claim := token.Claims[roleClaim].(type) {
	case string:
		raw = append(raw, claim)
	case []string:
		raw = append(raw, claim...)
	case []any:
		for _, item := range claim {
			if role, ok := item.(string); ok {
				raw = append(raw, role)
			}
		}
	case map[string]any:
		for role, enabled := range claim {
			if on, _ := enabled.(bool); on {
				raw = append(raw, role)
			}
		}
	}
	for _, role := range raw {
		if role = canonicalRole(role); role != "" && !slices.Contains(identity.Roles, role) {
			identity.Roles = append(identity.Roles, role)
		}
	}
	slices.Sort(identity.Roles)
	return identity
}

// Actor is recorded as the requester on forwarded fulfillments and labels: the email when
// present, otherwise the uid.
func (i *Identity) Actor() string {
	switch {
	case i == nil:
		return ""
	case i.Email != "":
		return i.Email
	default:
		return i.UID
	}
}

// HasRole reports whether the identity holds role, ignoring case.
func (i *Identity) HasRole(role string) bool {
	role = canonicalRole(role)
	return i != nil && role != "" && slices.Contains(i.Roles, role)
}

func canonicalRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

type identityKey struct{}

// WithIdentity attaches identity to ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, _ := ctx.Value(identityKey{}).(*Identity)
	return identity, identity != nil
}
