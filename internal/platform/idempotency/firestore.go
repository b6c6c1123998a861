package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/brc-ops/backoffice/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// claimTxPolicy keeps key claims short; they run ahead of every guarded write.
var claimTxPolicy = pfirestore.TxPolicy{MaxAttempts: 3, Budget: 5 * time.Second}

// FirestoreStore keeps claims in a Firestore collection. A TTL policy on expiresAt removes
// stale documents; Claim also treats them as absent.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a FirestoreStore. An empty collection selects "idempotencyKeys".
func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}, nil
}

type entryDocument struct {
	Fingerprint string            `firestore:"fingerprint"`
	Done        bool              `firestore:"done"`
	Status      int               `firestore:"status,omitempty"`
	Headers     map[string]string `firestore:"headers,omitempty"`
	Body        []byte            `firestore:"body,omitempty"`
	ExpiresAt   time.Time         `firestore:"expiresAt"`
	UpdatedAt   time.Time         `firestore:"updatedAt"`
}

func (d entryDocument) entry() Entry {
	return Entry{
		Fingerprint: d.Fingerprint,
		Done:        d.Done,
		Status:      d.Status,
		Headers:     d.Headers,
		Body:        d.Body,
		ExpiresAt:   d.ExpiresAt,
	}
}

func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref, err := s.doc(ctx, key)
	if err != nil {
		return 0, Entry{}, err
	}

	var (
		state State
		entry Entry
	)
	err = s.provider.RunTransactionWith(ctx, claimTxPolicy, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc entryDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			current := doc.entry()
			if !expired(current, now) {
				if current.Fingerprint != fingerprint {
					return ErrKeyReused
				}
				state, entry = StateInFlight, current
				if current.Done {
					state = StateReplay
				}
				return nil
			}
		}

		fresh := entryDocument{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl), UpdatedAt: now}
		state, entry = StateNew, fresh.entry()
		return tx.Set(ref, fresh)
	})
	if err != nil {
		if errors.Is(err, ErrKeyReused) {
			return 0, Entry{}, ErrKeyReused
		}
		return 0, Entry{}, err
	}
	return state, entry, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key string, entry Entry) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, entryDocument{
		Fingerprint: entry.Fingerprint,
		Done:        true,
		Status:      entry.Status,
		Headers:     entry.Headers,
		Body:        entry.Body,
		ExpiresAt:   entry.ExpiresAt,
		UpdatedAt:   time.Now().UTC(),
	})
	return pfirestore.WrapError("idempotency.complete", err)
}

func (s *FirestoreStore) Abandon(ctx context.Context, key string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.abandon", err)
	}
	return nil
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}
