package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/brc-ops/backoffice/internal/platform/config"
)

// ErrSessionRevoked reports a token whose session was revoked or whose user was disabled.
var ErrSessionRevoked = errors.New("auth: firebase session revoked")

// adminTokens is the part of the Admin SDK client the verifier relies on.
type adminTokens interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier checks staff ID tokens against the project's Firebase Auth tenant.
type FirebaseVerifier struct {
	tokens       adminTokens
	checkRevoked bool
}

// VerifierOption adjusts FirebaseVerifier.
type VerifierOption func(*FirebaseVerifier)

// WithRevocationCheck makes each verification also ask Firebase whether the
// session was revoked. It costs one Auth API call per request.
func WithRevocationCheck(enabled bool) VerifierOption {
	return func(v *FirebaseVerifier) { v.checkRevoked = enabled }
}

func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...VerifierOption) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase app for %s: %w", cfg.ProjectID, err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client: %w", err)
	}
	return newVerifier(client, opts...), nil
}

func newVerifier(tokens adminTokens, opts ...VerifierOption) *FirebaseVerifier {
	v := &FirebaseVerifier{tokens: tokens}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// VerifyIDToken validates signature, audience and expiry. With the revocation
// check enabled, revoked sessions and disabled users fail with ErrSessionRevoked.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.tokens == nil {
		return nil, errors.New("auth: firebase verifier not initialised")
	}
	if !v.checkRevoked {
		return v.tokens.VerifyIDToken(ctx, idToken)
	}
	token, err := v.tokens.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if firebaseauth.IsIDTokenRevoked(err) || firebaseauth.IsUserDisabled(err) {
		return nil, fmt.Errorf("%w: %v", ErrSessionRevoked, err)
	}
	return token, err
}
