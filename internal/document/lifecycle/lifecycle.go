// Package lifecycle is the pure decision core of the document state machine.
// Given a document, an action and the acting party it returns the next status
// or a typed rejection. No I/O happens here; the orchestrator owns persistence.
package lifecycle

import (
	"fmt"

	"charter/internal/document/models"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
)

// Action is one of the named lifecycle operations.
type Action string

const (
	ActionSubmitForReview      Action = "submit_for_review"
	ActionStartReview          Action = "start_review"
	ActionRejectReview         Action = "reject_review"
	ActionApproveReview        Action = "approve_review"
	ActionRouteForApproval     Action = "route_for_approval"
	ActionStartApproval        Action = "start_approval"
	ActionRejectApproval       Action = "reject_approval"
	ActionApprove              Action = "approve"
	ActionBecomeEffective      Action = "become_effective"
	ActionSupersede            Action = "supersede"
	ActionScheduleObsolescence Action = "schedule_obsolescence"
	ActionBecomeObsolete       Action = "become_obsolete"
	ActionStartPeriodicReview  Action = "start_periodic_review"
	ActionCompleteReview       Action = "complete_periodic_review"
	ActionTerminate            Action = "terminate"
)

// SystemActor marks scheduler-driven transitions. It bypasses assignment
// guards but not structural guards (e.g. a missing effective date still fails).
var SystemActor = id.NewActor("system", id.CapabilityAdministerAll)

// IsSystem reports whether the actor is the scheduler sentinel.
func IsSystem(actor id.Actor) bool {
	return actor.ID == SystemActor.ID
}

type guard func(doc *models.Document, actor id.Actor) error

type rule struct {
	to     models.Status
	guards []guard
}

// transitions is the full legality table. Anything absent here fails with
// CodeInvalidTransition and must leave status untouched.
var transitions = map[models.Status]map[Action]rule{
	models.StatusDraft: {
		ActionSubmitForReview: {to: models.StatusPendingReview, guards: []guard{isAuthor}},
		ActionTerminate:       {to: models.StatusTerminated, guards: []guard{isAuthor}},
	},
	models.StatusPendingReview: {
		ActionStartReview:  {to: models.StatusUnderReview, guards: []guard{isReviewer}},
		ActionRejectReview: {to: models.StatusDraft, guards: []guard{isReviewer}},
	},
	models.StatusUnderReview: {
		ActionApproveReview: {to: models.StatusReviewed, guards: []guard{isReviewer, notAuthor}},
		ActionRejectReview:  {to: models.StatusDraft, guards: []guard{isReviewer}},
	},
	models.StatusReviewed: {
		ActionRouteForApproval: {to: models.StatusPendingApproval, guards: []guard{isAuthor}},
	},
	models.StatusPendingApproval: {
		ActionStartApproval: {to: models.StatusUnderApproval, guards: []guard{isApprover}},
	},
	models.StatusUnderApproval: {
		ActionApprove:        {to: models.StatusApprovedPendingEffective, guards: []guard{isApprover, notAuthor, hasEffectiveDate}},
		ActionRejectApproval: {to: models.StatusDraft, guards: []guard{isApprover}},
	},
	models.StatusApprovedPendingEffective: {
		ActionBecomeEffective: {to: models.StatusEffective, guards: []guard{systemOnly}},
	},
	models.StatusEffective: {
		ActionSupersede:            {to: models.StatusSuperseded, guards: []guard{systemOnly}},
		ActionScheduleObsolescence: {to: models.StatusScheduledForObsolescence, guards: []guard{canObsolete}},
		ActionStartPeriodicReview:  {to: models.StatusUnderPeriodicReview, guards: []guard{systemOrStakeholder}},
	},
	models.StatusUnderPeriodicReview: {
		ActionCompleteReview: {to: models.StatusEffective, guards: []guard{systemOrStakeholder}},
	},
	models.StatusScheduledForObsolescence: {
		ActionBecomeObsolete: {to: models.StatusObsolete, guards: []guard{systemOnly}},
	},
	// SUPERSEDED, OBSOLETE, TERMINATED have no outgoing transitions.
}

// Evaluate returns the status the document would move to if the action were
// applied by the actor. It never mutates the document.
func Evaluate(doc *models.Document, action Action, actor id.Actor) (models.Status, error) {
	r, ok := transitions[doc.Status][action]
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("action %s is not legal from status %s", action, doc.Status))
	}
	for _, g := range r.guards {
		if err := g(doc, actor); err != nil {
			return "", err
		}
	}
	return r.to, nil
}

// Legal reports whether any actor could perform the action from the
// document's current status, ignoring guards. Used by list views.
func Legal(status models.Status, action Action) bool {
	_, ok := transitions[status][action]
	return ok
}

func isAuthor(doc *models.Document, actor id.Actor) error {
	if actor.ID != doc.Author {
		return dErrors.New(dErrors.CodeUnauthorized, "only the author may perform this action")
	}
	return nil
}

func isReviewer(doc *models.Document, actor id.Actor) error {
	if doc.Reviewer.IsNil() {
		return dErrors.New(dErrors.CodePreconditionFailed, "document has no assigned reviewer")
	}
	if actor.ID != doc.Reviewer {
		return dErrors.New(dErrors.CodeUnauthorized, "only the assigned reviewer may perform this action")
	}
	return nil
}

func isApprover(doc *models.Document, actor id.Actor) error {
	if doc.Approver.IsNil() {
		return dErrors.New(dErrors.CodePreconditionFailed, "document has no assigned approver")
	}
	if actor.ID != doc.Approver {
		return dErrors.New(dErrors.CodeUnauthorized, "only the assigned approver may perform this action")
	}
	return nil
}

// notAuthor enforces segregation of duties: one actor may not hold both the
// author role and the reviewer/approver role on an approval path.
func notAuthor(doc *models.Document, actor id.Actor) error {
	if actor.ID == doc.Author {
		return dErrors.New(dErrors.CodeUnauthorized, "segregation of duties: author may not review or approve their own document")
	}
	return nil
}

func hasEffectiveDate(doc *models.Document, _ id.Actor) error {
	if doc.EffectiveDate == nil {
		return dErrors.New(dErrors.CodePreconditionFailed, "effective date must be set before approval")
	}
	return nil
}

func canObsolete(_ *models.Document, actor id.Actor) error {
	if IsSystem(actor) || actor.Can(id.CapabilityObsolete) {
		return nil
	}
	return dErrors.New(dErrors.CodeUnauthorized, "actor lacks the obsolete capability")
}

func systemOnly(_ *models.Document, actor id.Actor) error {
	if !IsSystem(actor) {
		return dErrors.New(dErrors.CodeUnauthorized, "transition is scheduler-driven")
	}
	return nil
}

// systemOrStakeholder admits the scheduler and any actor with a stake in the
// document (author, reviewer, approver) or the review capability.
func systemOrStakeholder(doc *models.Document, actor id.Actor) error {
	if IsSystem(actor) || doc.Stakeholder(actor.ID) || actor.Can(id.CapabilityReview) {
		return nil
	}
	return dErrors.New(dErrors.CodeUnauthorized, "actor has no stake in this document")
}
