package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// SecretResolver turns a "secret://name" reference into its value.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// SecretError wraps a failed lookup of Ref.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string { return fmt.Sprintf("resolve secret %q: %v", e.Ref, e.Err) }

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError lists required secret fields that resolved to an empty value. Its
// message carries only hashed field names.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return "missing required secrets [" + strings.Join(e.RedactedNames(), ", ") + "]"
}

// Names returns the sorted field names, e.g. "Shopify.AccessToken".
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	return slices.Clone(e.names)
}

// RedactedNames returns a short sha256 prefix per missing field, sorted.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.names))
	for i, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out[i] = hex.EncodeToString(sum[:8])
	}
	slices.Sort(out)
	return out
}

// secretFields are the Config fields that may hold a secret reference.
func secretFields(cfg *Config) map[string]*string {
	return map[string]*string{
		"Shopify.AccessToken": &cfg.Shopify.AccessToken,
		"FedEx.ClientSecret":  &cfg.FedEx.ClientSecret,
		"Flexport.APIToken":   &cfg.Flexport.APIToken,
	}
}

// resolveSecrets replaces every secret reference in cfg. "sm://x" is accepted as an alias of
// "secret://x". Plain values are kept as they are.
func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) error {
	for _, field := range secretFields(cfg) {
		value := strings.TrimSpace(*field)
		ref, isRef := secretRef(value)
		if !isRef {
			continue
		}
		if resolver == nil {
			return &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}
		secret, err := resolver.ResolveSecret(ctx, ref)
		if err != nil {
			return &SecretError{Ref: ref, Err: err}
		}
		*field = secret
	}
	return nil
}

func secretRef(value string) (string, bool) {
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest, true
	}
	return value, strings.HasPrefix(value, "secret://")
}

// checkRequiredSecrets reports required fields that are still empty. Unknown names are
// treated as missing.
func checkRequiredSecrets(cfg *Config, required []string, panicOnMissing bool) error {
	fields := secretFields(cfg)
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(missing, name) {
			continue
		}
		if field, ok := fields[name]; !ok || strings.TrimSpace(*field) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	err := &MissingSecretsError{names: missing}
	if panicOnMissing {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		panic(err)
	}
	return err
}
