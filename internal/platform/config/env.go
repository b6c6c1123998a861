package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// WithEnvFile reads local overrides from path instead of ".env". An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies values that win over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver resolves secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets names secret fields, e.g. "Shopify.AccessToken", that must end up non-empty.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// WithPanicOnMissingSecrets makes Load panic instead of returning MissingSecretsError.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) { o.panicOnMissingSecrets = true }
}

// EnvironmentValues merges the dotenv file, the process environment and the explicit map,
// later sources winning. The secret fetcher is built from it before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	o := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o.environment()
}

func (o loaderOptions) environment() (map[string]string, error) {
	values, err := readDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	if o.useSystemEnv {
		for _, entry := range os.Environ() {
			if key, value, ok := strings.Cut(entry, "="); ok && strings.TrimSpace(key) != "" {
				values[strings.TrimSpace(key)] = value
			}
		}
	}
	for key, value := range o.envMap {
		values[key] = value
	}
	return values, nil
}

// env reads BO_-prefixed keys. Blank and unparsable values fall back to the default.
type envVars map[string]string

func (e envVars) raw(key string) (string, bool) {
	value := strings.TrimSpace(e[envPrefix+key])
	return value, value != ""
}

func parsed[T any](e envVars, key string, fallback T, parse func(string) (T, error)) T {
	if value, ok := e.raw(key); ok {
		if v, err := parse(value); err == nil {
			return v
		}
	}
	return fallback
}

func (e envVars) str(key, fallback string) string {
	return parsed(e, key, fallback, func(s string) (string, error) { return s, nil })
}

func (e envVars) duration(key string, fallback time.Duration) time.Duration {
	return parsed(e, key, fallback, time.ParseDuration)
}

func (e envVars) integer(key string, fallback int) int {
	return parsed(e, key, fallback, strconv.Atoi)
}

func (e envVars) float(key string, fallback float64) float64 {
	return parsed(e, key, fallback, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func (e envVars) boolean(key string, fallback bool) bool {
	return parsed(e, key, fallback, strconv.ParseBool)
}

// csv splits on commas and drops empty items.
func (e envVars) csv(key string, fallback []string) []string {
	value, ok := e.raw(key)
	if !ok {
		return append([]string(nil), fallback...)
	}
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// readDotEnv parses KEY=VALUE lines. Comments, blank lines and a leading "export " are
// skipped, and surrounding quotes are stripped. A missing file yields an empty map.
func readDotEnv(path string) (map[string]string, error) {
	values := make(map[string]string)
	if path == "" {
		return values, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if key = strings.TrimSpace(key); !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}
