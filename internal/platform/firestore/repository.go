package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
)

// Snapshot is a decoded document together with the server timestamps that
// callers use as optimistic concurrency tokens.
type Snapshot[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Collection gives typed access to the documents of a single collection.
// T is the Firestore document shape, tagged with `firestore:"..."`.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed accessor to the named collection.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Get loads and decodes the document.
func (c *Collection[T]) Get(ctx context.Context, id string) (Snapshot[T], error) {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return Snapshot[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Snapshot[T]{}, WrapError(c.op("get"), err)
	}
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Snapshot[T]{}, fmt.Errorf("%s: decode %s: %w", c.op("get"), id, err)
	}
	return Snapshot[T]{
		ID:         snap.Ref.ID,
		Data:       data,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

// Set writes value under id. Pass firestore.Merge to touch only some fields.
func (c *Collection[T]) Set(ctx context.Context, id string, value any, opts ...firestore.SetOption) (time.Time, error) {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	res, err := ref.Set(ctx, value, opts...)
	if err != nil {
		return time.Time{}, WrapError(c.op("set"), err)
	}
	return res.UpdateTime, nil
}

// Create writes value under id and fails with a conflict when the document exists.
func (c *Collection[T]) Create(ctx context.Context, id string, value any) (time.Time, error) {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	res, err := ref.Create(ctx, value)
	if err != nil {
		return time.Time{}, WrapError(c.op("create"), err)
	}
	return res.UpdateTime, nil
}

// Update applies field updates to an existing document, subject to preconditions.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update, preconds ...firestore.Precondition) (time.Time, error) {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	res, err := ref.Update(ctx, updates, preconds...)
	if err != nil {
		return time.Time{}, WrapError(c.op("update"), err)
	}
	return res.UpdateTime, nil
}

func (c *Collection[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if c == nil || c.provider == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	if c.name == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: document id is required", c.op("doc"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name).Doc(id), nil
}

func (c *Collection[T]) op(action string) string {
	return c.name + "." + action
}
