package models

import (
	"time"

	id "charter/pkg/domain"
)

// WorkflowType names the lifecycle phase a workflow instance tracks.
type WorkflowType string

const (
	WorkflowReview         WorkflowType = "REVIEW"
	WorkflowApproval       WorkflowType = "APPROVAL"
	WorkflowObsolete       WorkflowType = "OBSOLETE"
	WorkflowPeriodicReview WorkflowType = "PERIODIC_REVIEW"
)

// WorkflowInstance is the live process attached to a document. At most one
// non-terminated instance exists per document; the store enforces it with a
// check-and-insert.
type WorkflowInstance struct {
	ID              id.WorkflowID
	DocumentID      id.DocumentID
	Type            WorkflowType
	CurrentAssignee id.ActorID
	DueDate         *time.Time
	IsTerminated    bool
	History         []HistoryEvent
	CreatedAt       time.Time
}

// HistoryEventKind discriminates the closed set of history entries.
type HistoryEventKind string

const (
	HistorySubmitted       HistoryEventKind = "submitted"
	HistoryClaimed         HistoryEventKind = "claimed"
	HistoryRejected        HistoryEventKind = "rejected"
	HistoryApproved        HistoryEventKind = "approved"
	HistoryRouted          HistoryEventKind = "routed"
	HistoryScheduled       HistoryEventKind = "scheduled"
	HistoryExecuted        HistoryEventKind = "executed"
	HistoryReviewCompleted HistoryEventKind = "review_completed"
)

// HistoryEvent is one append-only entry in a workflow's trail. Modeled as a
// tagged struct rather than free-form JSON so reporting code operates on a
// closed, exhaustively-matchable set.
type HistoryEvent struct {
	Kind      HistoryEventKind
	Actor     id.ActorID
	Timestamp time.Time
	Comment   string
	// Outcome is set only for review_completed events.
	Outcome ReviewOutcomeKind
}

// ReviewOutcomeKind is the verdict of a periodic review.
type ReviewOutcomeKind string

const (
	OutcomeStillValid        ReviewOutcomeKind = "STILL_VALID"
	OutcomeNeedsMinorUpdates ReviewOutcomeKind = "NEEDS_MINOR_UPDATES"
	OutcomeNeedsMajorUpdates ReviewOutcomeKind = "NEEDS_MAJOR_UPDATES"
)

// ParseReviewOutcome validates an outcome string at trust boundaries.
func ParseReviewOutcome(s string) (ReviewOutcomeKind, bool) {
	o := ReviewOutcomeKind(s)
	switch o {
	case OutcomeStillValid, OutcomeNeedsMinorUpdates, OutcomeNeedsMajorUpdates:
		return o, true
	}
	return "", false
}

// ReviewOutcome is the immutable record of one completed periodic review.
type ReviewOutcome struct {
	DocumentID     id.DocumentID
	Reviewer       id.ActorID
	Outcome        ReviewOutcomeKind
	Comment        string
	NextReviewDate *time.Time
	// SpawnedVersion references the draft created for NEEDS_*_UPDATES outcomes.
	SpawnedVersion *id.DocumentID
	CompletedAt    time.Time
}

// DependencyEdge is a directed "references" relationship: From cannot be
// safely retired while To is active and still referencing it. Maintained by
// document content changes outside this core; read-only input here.
type DependencyEdge struct {
	From id.DocumentID
	To   id.DocumentID
}
