// Package notify carries notification intents from the lifecycle core to the
// external delivery subsystem. The core never sends email or sockets itself:
// intents are written to an outbox in the same transaction as the state
// change and drained to Kafka by the worker.
package notify

import (
	"time"

	"github.com/google/uuid"

	id "charter/pkg/domain"
)

// EventType names a notifiable lifecycle event. Scheduling obsolescence and
// executing it are distinct events; neither implies the other.
type EventType string

const (
	EventSubmittedForReview    EventType = "submitted_for_review"
	EventReviewRejected        EventType = "review_rejected"
	EventReviewApproved        EventType = "review_approved"
	EventRoutedForApproval     EventType = "routed_for_approval"
	EventApprovalRejected      EventType = "approval_rejected"
	EventApproved              EventType = "approved"
	EventDocumentEffective     EventType = "document_effective"
	EventDocumentSuperseded    EventType = "document_superseded"
	EventObsolescenceScheduled EventType = "obsolescence_scheduled"
	EventDocumentObsoleted     EventType = "document_obsoleted"
	EventPeriodicReviewOpened  EventType = "periodic_review_opened"
	EventPeriodicReviewClosed  EventType = "periodic_review_closed"
	EventDraftSpawned          EventType = "draft_spawned"
	EventDraftTerminated       EventType = "draft_terminated"
)

// DocumentRef locates the document an intent is about without forcing the
// delivery subsystem back into our store.
type DocumentRef struct {
	ID        id.DocumentID `json:"id"`
	FamilyKey id.FamilyKey  `json:"family_key"`
	Version   id.Version    `json:"version"`
	Title     string        `json:"title"`
}

// Intent is one "notify these users of event X" instruction.
type Intent struct {
	ID         uuid.UUID    `json:"id"`
	EventType  EventType    `json:"event_type"`
	Recipients []id.ActorID `json:"recipients"`
	Document   DocumentRef  `json:"document"`
	Comment    string       `json:"comment,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewIntent builds an intent with deduplicated, non-empty recipients.
func NewIntent(eventType EventType, doc DocumentRef, occurredAt time.Time, comment string, recipients ...id.ActorID) Intent {
	seen := make(map[id.ActorID]bool, len(recipients))
	var deduped []id.ActorID
	for _, r := range recipients {
		if r.IsNil() || seen[r] {
			continue
		}
		seen[r] = true
		deduped = append(deduped, r)
	}
	return Intent{
		ID:         uuid.New(),
		EventType:  eventType,
		Recipients: deduped,
		Document:   doc,
		Comment:    comment,
		OccurredAt: occurredAt,
	}
}
