package models

import (
	"time"

	id "charter/pkg/domain"
)

// Status is a document's position in the controlled lifecycle.
// Invariant: the value must be one of the enumerated states; construct via
// ParseStatus at trust boundaries.
type Status string

const (
	StatusDraft                    Status = "DRAFT"
	StatusPendingReview            Status = "PENDING_REVIEW"
	StatusUnderReview              Status = "UNDER_REVIEW"
	StatusReviewed                 Status = "REVIEWED"
	StatusPendingApproval          Status = "PENDING_APPROVAL"
	StatusUnderApproval            Status = "UNDER_APPROVAL"
	StatusApprovedPendingEffective Status = "APPROVED_PENDING_EFFECTIVE"
	StatusEffective                Status = "EFFECTIVE"
	StatusUnderPeriodicReview      Status = "UNDER_PERIODIC_REVIEW"
	StatusScheduledForObsolescence Status = "SCHEDULED_FOR_OBSOLESCENCE"
	StatusSuperseded               Status = "SUPERSEDED"
	StatusObsolete                 Status = "OBSOLETE"
	StatusTerminated               Status = "TERMINATED"
)

var knownStatuses = map[Status]bool{
	StatusDraft:                    true,
	StatusPendingReview:            true,
	StatusUnderReview:              true,
	StatusReviewed:                 true,
	StatusPendingApproval:          true,
	StatusUnderApproval:            true,
	StatusApprovedPendingEffective: true,
	StatusEffective:                true,
	StatusUnderPeriodicReview:      true,
	StatusScheduledForObsolescence: true,
	StatusSuperseded:               true,
	StatusObsolete:                 true,
	StatusTerminated:               true,
}

// AllStatuses returns every lifecycle state, for closure tests and migrations.
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusPendingReview, StatusUnderReview, StatusReviewed,
		StatusPendingApproval, StatusUnderApproval, StatusApprovedPendingEffective,
		StatusEffective, StatusUnderPeriodicReview, StatusScheduledForObsolescence,
		StatusSuperseded, StatusObsolete, StatusTerminated,
	}
}

// ParseStatus validates a status string read from storage or transport.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, knownStatuses[st]
}

// Retired reports whether the status is out of service for good.
// SUPERSEDED is retired for its version, but the family continues.
func (s Status) Retired() bool {
	return s == StatusSuperseded || s == StatusObsolete || s == StatusTerminated
}

// Active reports whether a document in this status can still anchor
// dependency edges. SUPERSEDED counts as active: an old version can still be
// referenced by a live dependent.
func (s Status) Active() bool {
	return s != StatusObsolete && s != StatusTerminated
}

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusObsolete || s == StatusTerminated || s == StatusSuperseded
}

// Document is one version of one document family. Mutated only through the
// workflow orchestrator; never hard-deleted (terminal states stay for audit).
type Document struct {
	ID        id.DocumentID
	FamilyKey id.FamilyKey
	Version   id.Version
	Title     string
	Status    Status

	// Assignment fields are cleared on rejection so the next submission must
	// choose an assignee explicitly.
	Author   id.ActorID
	Reviewer id.ActorID
	Approver id.ActorID

	EffectiveDate    *time.Time
	ObsolescenceDate *time.Time
	NextReviewDate   *time.Time
	LastReviewDate   *time.Time
	ReviewFrequency  time.Duration

	// Supersedes points back at the prior effective version in the family.
	// Forward-only by construction: a new version's tuple is strictly greater.
	Supersedes *id.DocumentID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stakeholder reports whether the actor holds any assignment on the document.
func (d *Document) Stakeholder(actor id.ActorID) bool {
	return actor == d.Author || actor == d.Reviewer || actor == d.Approver
}
