// Package idempotency replays the first response of a mutating API call when a client retries
// it with the same Idempotency-Key, so a retried label or forward request is not booked twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// DefaultTTL bounds how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the outcome of claiming a key.
type State int

const (
	// StateNew means the caller owns the key and must run the request.
	StateNew State = iota
	// StateReplay means a stored response exists for the key.
	StateReplay
	// StateInFlight means another request holds the key and has not finished.
	StateInFlight
)

// ErrKeyReused is returned when a key is presented with a different request than the one that claimed it.
var ErrKeyReused = errors.New("idempotency: key reused for a different request")

// Entry is the stored state of a key.
type Entry struct {
	Fingerprint string
	Done        bool
	Status      int
	Headers     map[string]string
	Body        []byte
	ExpiresAt   time.Time
}

// Store persists key claims and completed responses.
type Store interface {
	// Claim reserves key for fingerprint until expires unless an unexpired entry already holds it.
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Entry, error)
	// Complete records the response replayed for later claims.
	Complete(ctx context.Context, key string, entry Entry) error
	// Abandon drops the claim so the request can be retried.
	Abandon(ctx context.Context, key string) error
}

func documentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func expired(entry Entry, now time.Time) bool {
	return !entry.ExpiresAt.IsZero() && !now.Before(entry.ExpiresAt)
}
