package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outbox stores intents durably until the worker publishes them. Enqueue
// participates in the caller's transaction so an intent exists exactly when
// the state change it announces committed.
type Outbox interface {
	Enqueue(ctx context.Context, intent Intent) error
	// ListPending returns unpublished intents, oldest first.
	ListPending(ctx context.Context, limit int) ([]Intent, error)
	MarkPublished(ctx context.Context, intentID uuid.UUID, at time.Time) error
}

// InMemoryOutbox backs tests and single-process deployments.
type InMemoryOutbox struct {
	mu        sync.RWMutex
	intents   []Intent
	published map[uuid.UUID]bool
}

func NewInMemoryOutbox() *InMemoryOutbox {
	return &InMemoryOutbox{published: make(map[uuid.UUID]bool)}
}

func (o *InMemoryOutbox) Enqueue(_ context.Context, intent Intent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.intents = append(o.intents, intent)
	return nil
}

func (o *InMemoryOutbox) ListPending(_ context.Context, limit int) ([]Intent, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var pending []Intent
	for _, intent := range o.intents {
		if !o.published[intent.ID] {
			pending = append(pending, intent)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].OccurredAt.Before(pending[j].OccurredAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (o *InMemoryOutbox) MarkPublished(_ context.Context, intentID uuid.UUID, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published[intentID] = true
	return nil
}

// All returns every enqueued intent; test helper.
func (o *InMemoryOutbox) All() []Intent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Intent(nil), o.intents...)
}
