package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/brc-ops/backoffice/internal/platform/httpx"
	"github.com/brc-ops/backoffice/internal/platform/requestctx"
)

var (
	// ErrTokenExpired lets verifiers report expiry without the Admin SDK error types.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens. FirebaseVerifier is the production implementation.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns bearer tokens into an Identity on the request context.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
	timeout   time.Duration
}

type Option func(*Authenticator)

// WithRoleClaim names the custom claim holding roles. Blank keeps "role".
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout bounds each verification call.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, roleClaim: "role", timeout: 5 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// rejection is an authentication or authorisation failure ready to be written.
type rejection struct {
	status  int
	code    string
	message string
}

func unauthenticated(code, message string) *rejection {
	return &rejection{status: http.StatusUnauthorized, code: code, message: message}
}

func forbidden(code, message string) *rejection {
	return &rejection{status: http.StatusForbidden, code: code, message: message}
}

// RequireRoles admits requests whose verified identity holds one of roles.
// An identity without any role is always refused.
func (a *Authenticator) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	admitted := make(map[string]bool, len(roles))
	for _, role := range roles {
		if role = canonicalRole(role); role != "" {
			admitted[role] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, rej := a.authenticate(ctx, r.Header.Get("Authorization"))
			if rej == nil {
				rej = authorise(identity, admitted)
			}
			if rej != nil {
				httpx.WriteError(ctx, w, httpx.NewError(rej.code, rej.message, rej.status))
				return
			}
			requestctx.SetActor(ctx, identity.Actor())
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func (a *Authenticator) authenticate(ctx context.Context, header string) (*Identity, *rejection) {
	raw, ok := bearerToken(header)
	if !ok {
		return nil, unauthenticated("unauthenticated", "authorization header missing or invalid")
	}
	if a == nil || a.verifier == nil {
		return nil, unauthenticated("unauthenticated", "authorization service unavailable")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	token, err := a.verifier.VerifyIDToken(verifyCtx, raw)
	switch {
	case err == nil:
		return newIdentity(token, a.roleClaim), nil
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return nil, unauthenticated("token_expired", "firebase id token expired")
	case errors.Is(err, ErrSessionRevoked):
		return nil, unauthenticated("session_revoked", "firebase session revoked")
	default:
		return nil, unauthenticated("invalid_token", "firebase id token invalid")
	}
}

func authorise(identity *Identity, admitted map[string]bool) *rejection {
	if len(identity.Roles) == 0 {
		return forbidden("missing_role", "no roles associated with identity")
	}
	if len(admitted) == 0 {
		return nil
	}
	for _, role := range identity.Roles {
		if admitted[role] {
			return nil
		}
	}
	return forbidden("insufficient_role", "identity does not have required role")
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
