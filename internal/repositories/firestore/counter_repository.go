package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/brc-ops/backoffice/internal/platform/firestore"
	"github.com/brc-ops/backoffice/internal/repositories"
)

const countersCollection = "counters"

// counterState is the stored form of one sequence.
type counterState struct {
	Value     int64     `firestore:"value"`
	Step      int64     `firestore:"step"`
	Ceiling   *int64    `firestore:"ceiling,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// advance returns the state after one increment. A zero step reuses the stored step,
// falling back to 1.
func (c counterState) advance(id string, step int64) (counterState, error) {
	if step == 0 {
		step = c.Step
	}
	if step <= 0 {
		step = 1
	}
	next := c.Value + step
	if c.Ceiling != nil && next > *c.Ceiling {
		return c, repositories.ExhaustedCounter(id, *c.Ceiling)
	}
	c.Value = next
	c.Step = step
	return c, nil
}

// CounterRepository keeps sequences in the counters collection. Each increment is a single
// read-modify-write transaction, so concurrent callers never share a value.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.Collection[counterState]
	now      func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewCollection[counterState](provider, countersCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func counterKey(counterID string) (string, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return "", repositories.InvalidCounter("", "counter id is required")
	}
	if strings.Contains(id, "/") {
		return "", repositories.InvalidCounter(id, "counter id must not contain '/'")
	}
	return id, nil
}

// Next increments the counter and returns the new value. A counter that does not exist yet
// starts from zero.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id, err := counterKey(counterID)
	if err != nil {
		return 0, err
	}
	if step < 0 {
		return 0, repositories.InvalidCounter(id, fmt.Sprintf("negative step %d", step))
	}
	ref, err := r.counters.Ref(ctx, id)
	if err != nil {
		return 0, err
	}

	var issued int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current counterState
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			if err := snap.DataTo(&current); err != nil {
				return fmt.Errorf("decode counter %s: %w", id, err)
			}
		}

		next, err := current.advance(id, step)
		if err != nil {
			return err
		}
		next.UpdatedAt = r.now()
		if err := tx.Set(ref, next); err != nil {
			return err
		}
		issued = next.Value
		return nil
	})

	var counterErr *repositories.CounterError
	switch {
	case err == nil:
		return issued, nil
	case errors.As(err, &counterErr):
		return 0, counterErr
	default:
		return 0, pfirestore.WrapError("counters.next", err)
	}
}

// Configure merges the step, ceiling or starting value into the stored counter.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	id, err := counterKey(counterID)
	if err != nil {
		return err
	}
	if cfg.Step < 0 {
		return repositories.InvalidCounter(id, fmt.Sprintf("negative step %d", cfg.Step))
	}

	updates := map[string]any{"updatedAt": r.now()}
	if cfg.Step > 0 {
		updates["step"] = cfg.Step
	}
	if cfg.Ceiling != nil {
		updates["ceiling"] = *cfg.Ceiling
	}
	if cfg.Start != nil {
		updates["value"] = *cfg.Start
	}

	ref, err := r.counters.Ref(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, updates, firestore.MergeAll); err != nil {
		return pfirestore.WrapError("counters.configure", err)
	}
	return nil
}
