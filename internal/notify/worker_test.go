package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
)

func testIntent(eventType EventType, recipients ...id.ActorID) Intent {
	return NewIntent(eventType, DocumentRef{
		ID:        id.NewDocumentID(),
		FamilyKey: "POL-1",
		Version:   id.FirstVersion,
		Title:     "Quality Policy",
	}, time.Now(), "", recipients...)
}

func TestNewIntentDeduplicatesRecipients(t *testing.T) {
	intent := testIntent(EventApproved, "alice", "bob", "alice", "", "bob")

	assert.Equal(t, []id.ActorID{"alice", "bob"}, intent.Recipients)
	assert.NotEqual(t, intent.ID.String(), "00000000-0000-0000-0000-000000000000")
}

// capturingPublisher records published intents and optionally fails some.
type capturingPublisher struct {
	published []Intent
	failType  EventType
}

func (p *capturingPublisher) Publish(_ context.Context, intent Intent) error {
	if p.failType != "" && intent.EventType == p.failType {
		return dErrors.New(dErrors.CodeInternal, "broker unavailable")
	}
	p.published = append(p.published, intent)
	return nil
}

func TestDrainPublishesAndMarks(t *testing.T) {
	ctx := context.Background()
	outbox := NewInMemoryOutbox()
	require.NoError(t, outbox.Enqueue(ctx, testIntent(EventApproved, "alice")))
	require.NoError(t, outbox.Enqueue(ctx, testIntent(EventDocumentEffective, "alice")))

	publisher := &capturingPublisher{}
	worker := NewWorker(outbox, publisher, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	require.NoError(t, worker.drain(ctx))

	assert.Len(t, publisher.published, 2)
	pending, err := outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "published intents must leave the pending set")
}

func TestDrainLeavesFailedIntentsPending(t *testing.T) {
	ctx := context.Background()
	outbox := NewInMemoryOutbox()
	require.NoError(t, outbox.Enqueue(ctx, testIntent(EventApproved, "alice")))
	require.NoError(t, outbox.Enqueue(ctx, testIntent(EventDocumentEffective, "alice")))

	publisher := &capturingPublisher{failType: EventApproved}
	worker := NewWorker(outbox, publisher, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	require.NoError(t, worker.drain(ctx))

	assert.Len(t, publisher.published, 1)
	pending, err := outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "a failed publish stays pending for the next pass")
	assert.Equal(t, EventApproved, pending[0].EventType)
}
