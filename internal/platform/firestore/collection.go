package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document pairs a decoded value with its id and last write time.
type Document[T any] struct {
	ID        string
	Data      T
	UpdatedAt time.Time
}

// QueryBuilder narrows or orders a collection scan.
type QueryBuilder func(firestore.Query) firestore.Query

// Collection reads and writes one top-level collection using Firestore's struct tags for T.
type Collection[T any] struct {
	provider *Provider
	name     string
}

func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Get decodes the document stored under id. A missing document is a not-found *Error.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.name+".get", err)
	}
	return decode[T](snap)
}

// Set overwrites the document stored under id.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) (time.Time, error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	res, err := ref.Set(ctx, value)
	if err != nil {
		return time.Time{}, WrapError(c.name+".set", err)
	}
	return res.UpdateTime, nil
}

// Delete removes id; deleting a document that does not exist is reported as not found.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return WrapError(c.name+".delete", err)
	}
	return nil
}

// List scans the collection. build may be nil.
func (c *Collection[T]) List(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	it := query.Documents(ctx)
	defer it.Stop()
	var out []Document[T]
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, WrapError(c.name+".list", err)
		}
		doc, err := decode[T](snap)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
}

// Ref returns the reference for id, for callers that need transactions or merges.
func (c *Collection[T]) Ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &Error{op: c.name + ".ref", err: errors.New("document id is required"), kind: KindInvalid}
	}
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil || c.name == "" {
		return nil, errors.New("firestore: collection is not configured")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func decode[T any](snap *firestore.DocumentSnapshot) (Document[T], error) {
	doc := Document[T]{ID: snap.Ref.ID, UpdatedAt: snap.UpdateTime}
	if err := snap.DataTo(&doc.Data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s: %w", snap.Ref.Path, err)
	}
	return doc, nil
}
