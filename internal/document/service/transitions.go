package service

import (
	"context"
	"time"

	"charter/internal/document/family"
	"charter/internal/document/lifecycle"
	"charter/internal/document/models"
	"charter/internal/document/obsolescence"
	"charter/internal/notify"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
	"charter/pkg/requestcontext"
)

// CreateDraft brings a document into existence in DRAFT: the first version
// of a new family, or the next minor version of an existing one.
func (s *Service) CreateDraft(ctx context.Context, actor id.Actor, familyKey id.FamilyKey, title string) (*Result, error) {
	if !actor.Can(id.CapabilityAuthor) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor lacks the author capability")
	}
	if familyKey.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "family key is required")
	}
	if title == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "title is required")
	}

	result := &Result{}
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		members, err := s.store.ListFamilyForUpdate(ctx, familyKey)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		doc := &models.Document{
			ID:              id.NewDocumentID(),
			FamilyKey:       familyKey,
			Version:         id.FirstVersion,
			Title:           title,
			Status:          models.StatusDraft,
			Author:          actor.ID,
			ReviewFrequency: s.defaultReviewFrequency,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if len(members) > 0 {
			doc.Version = family.NextVersion(members, models.OutcomeNeedsMinorUpdates)
			if current := family.Current(members); current != nil {
				doc.Supersedes = &current.ID
				doc.ReviewFrequency = current.ReviewFrequency
			}
		}
		if err := s.store.CreateDocument(ctx, doc); err != nil {
			return err
		}
		result.Document = doc
		result.Status = doc.Status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SubmitForReview routes a draft to the named reviewer. Choosing an actor
// who previously rejected this document's review is allowed but warned.
func (s *Service) SubmitForReview(ctx context.Context, actor id.Actor, docID id.DocumentID, reviewer id.ActorID) (*Result, error) {
	if reviewer.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "a reviewer must be chosen")
	}
	return s.transition(ctx, docID, lifecycle.ActionSubmitForReview, actor, nil,
		func(ctx context.Context, tx *txState) error {
			if reviewer == tx.doc.Author {
				return dErrors.New(dErrors.CodeUnauthorized, "segregation of duties: author may not review their own document")
			}
			if err := s.checkPreviousRejections(ctx, tx, models.WorkflowReview, reviewer); err != nil {
				return err
			}
			tx.doc.Reviewer = reviewer
			wf := &models.WorkflowInstance{
				ID:              id.NewWorkflowID(),
				DocumentID:      tx.doc.ID,
				Type:            models.WorkflowReview,
				CurrentAssignee: reviewer,
				CreatedAt:       requestcontext.Now(ctx),
				History:         []models.HistoryEvent{historyEvent(ctx, models.HistorySubmitted, actor, "")},
			}
			if err := s.store.CreateWorkflow(ctx, wf); err != nil {
				return err
			}
			s.emit(ctx, tx, notify.EventSubmittedForReview, "", reviewer)
			return nil
		})
}

// StartReview is the assignee's claim: PENDING_REVIEW becomes UNDER_REVIEW.
func (s *Service) StartReview(ctx context.Context, actor id.Actor, docID id.DocumentID) (*Result, error) {
	return s.transition(ctx, docID, lifecycle.ActionStartReview, actor, nil,
		func(ctx context.Context, tx *txState) error {
			return s.appendToActiveWorkflow(ctx, tx.doc.ID, historyEvent(ctx, models.HistoryClaimed, actor, ""))
		})
}

// CompleteReview records the reviewer's verdict. Rejection returns the
// document to DRAFT and clears the reviewer assignment; the rejection entry
// stays in the workflow history.
func (s *Service) CompleteReview(ctx context.Context, actor id.Actor, docID id.DocumentID, approved bool, comment string) (*Result, error) {
	if approved {
		return s.transition(ctx, docID, lifecycle.ActionApproveReview, actor, nil,
			func(ctx context.Context, tx *txState) error {
				if err := s.closeActiveWorkflow(ctx, tx.doc.ID, historyEvent(ctx, models.HistoryApproved, actor, comment)); err != nil {
					return err
				}
				s.emit(ctx, tx, notify.EventReviewApproved, comment, tx.doc.Author)
				return nil
			})
	}
	return s.transition(ctx, docID, lifecycle.ActionRejectReview, actor, nil,
		func(ctx context.Context, tx *txState) error {
			if err := s.closeActiveWorkflow(ctx, tx.doc.ID, historyEvent(ctx, models.HistoryRejected, actor, comment)); err != nil {
				return err
			}
			tx.doc.Reviewer = ""
			s.emit(ctx, tx, notify.EventReviewRejected, comment, tx.doc.Author)
			return nil
		})
}

// RouteForApproval sends a reviewed document to the named approver.
func (s *Service) RouteForApproval(ctx context.Context, actor id.Actor, docID id.DocumentID, approver id.ActorID) (*Result, error) {
	if approver.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "an approver must be chosen")
	}
	return s.transition(ctx, docID, lifecycle.ActionRouteForApproval, actor, nil,
		func(ctx context.Context, tx *txState) error {
			if approver == tx.doc.Author {
				return dErrors.New(dErrors.CodeUnauthorized, "segregation of duties: author may not approve their own document")
			}
			if err := s.checkPreviousRejections(ctx, tx, models.WorkflowApproval, approver); err != nil {
				return err
			}
			tx.doc.Approver = approver
			wf := &models.WorkflowInstance{
				ID:              id.NewWorkflowID(),
				DocumentID:      tx.doc.ID,
				Type:            models.WorkflowApproval,
				CurrentAssignee: approver,
				CreatedAt:       requestcontext.Now(ctx),
				History:         []models.HistoryEvent{historyEvent(ctx, models.HistoryRouted, actor, "")},
			}
			if err := s.store.CreateWorkflow(ctx, wf); err != nil {
				return err
			}
			s.emit(ctx, tx, notify.EventRoutedForApproval, "", approver)
			return nil
		})
}

// StartApproval is the approver's claim: PENDING_APPROVAL → UNDER_APPROVAL.
func (s *Service) StartApproval(ctx context.Context, actor id.Actor, docID id.DocumentID) (*Result, error) {
	return s.transition(ctx, docID, lifecycle.ActionStartApproval, actor, nil,
		func(ctx context.Context, tx *txState) error {
			return s.appendToActiveWorkflow(ctx, tx.doc.ID, historyEvent(ctx, models.HistoryClaimed, actor, ""))
		})
}

// CompleteApproval records the approver's verdict. Approval requires an
// effective date (either already on the document or passed here) and an open
// family slot; the document then waits for the scheduler to make it
// effective.
func (s *Service) CompleteApproval(ctx context.Context, actor id.Actor, docID id.DocumentID, approved bool, effectiveDate *time.Time, comment string) (*Result, error) {
	if !approved {
		return s.transition(ctx, docID, lifecycle.ActionRejectApproval, actor, nil,
			func(ctx context.Context, tx *txState) error {
				if err := s.closeActiveWorkflow(ctx, tx.doc.ID, historyEvent(ctx, models.HistoryRejected, actor, comment)); err != nil {
					return err
				}
				tx.doc.Approver = ""
				s.emit(ctx, tx, notify.EventApprovalRejected, comment, tx.doc.Author)
				return nil
			})
	}
	return s.transition(ctx, docID, lifecycle.ActionApprove, actor,
		func(tx *txState) error {
			if effectiveDate != nil {
				tx.doc.EffectiveDate = effectiveDate
			}
			return nil
		},
		func(ctx context.Context, tx *txState) error {
			if !family.HasEffectiveSlot(tx.family, tx.doc.ID) {
				return dErrors.New(dErrors.CodePreconditionFailed,
					"another version of this family is already approved and waiting to become effective")
			}
			if err := s.closeActiveWorkflow(ctx, tx.doc.ID, historyEvent(ctx, models.HistoryApproved, actor, comment)); err != nil {
				return err
			}
			s.emit(ctx, tx, notify.EventApproved, comment, tx.doc.Author, tx.doc.Reviewer)
			return nil
		})
}

// BecomeEffective is the scheduler-driven activation. The family's previous
// EFFECTIVE version, if any, moves to SUPERSEDED inside the same write.
func (s *Service) BecomeEffective(ctx context.Context, docID id.DocumentID) (*Result, error) {
	return s.transition(ctx, docID, lifecycle.ActionBecomeEffective, lifecycle.SystemActor, nil,
		func(ctx context.Context, tx *txState) error {
			now := requestcontext.Now(ctx)
			if prior := family.PriorEffective(tx.family, tx.doc.ID); prior != nil {
				if _, err := lifecycle.Evaluate(prior, lifecycle.ActionSupersede, lifecycle.SystemActor); err != nil {
					return err
				}
				prior.Status = models.StatusSuperseded
				if err := s.store.UpdateDocument(ctx, prior); err != nil {
					return err
				}
				tx.doc.Supersedes = &prior.ID
				tx.intents = append(tx.intents, notify.NewIntent(
					notify.EventDocumentSuperseded, docRef(prior), now, "", prior.Author))
			}
			if tx.doc.NextReviewDate == nil && tx.doc.ReviewFrequency > 0 {
				next := now.Add(tx.doc.ReviewFrequency)
				tx.doc.NextReviewDate = &next
			}
			s.emit(ctx, tx, notify.EventDocumentEffective, "", tx.doc.Author, tx.doc.Approver)
			return nil
		})
}

// PreviewObsolescence runs the family-wide dependency check read-only, for
// UIs that warn before committing. The committing path re-validates inside
// its transaction since edges can change between preview and commit.
func (s *Service) PreviewObsolescence(ctx context.Context, docID id.DocumentID) (*obsolescence.Report, error) {
	return obsolescence.Validate(ctx, s.store, docID)
}

// ScheduleObsolescence moves an effective document onto the obsolescence
// path. Blocked with the full dependency report when any active document
// still references any member of the family.
func (s *Service) ScheduleObsolescence(ctx context.Context, actor id.Actor, docID id.DocumentID, obsolescenceDate time.Time, reason string) (*Result, error) {
	if obsolescenceDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "an obsolescence date is required")
	}
	return s.transition(ctx, docID, lifecycle.ActionScheduleObsolescence, actor, nil,
		func(ctx context.Context, tx *txState) error {
			report, err := obsolescence.Validate(ctx, s.store, tx.doc.ID)
			if err != nil {
				return err
			}
			if !report.CanObsolete {
				return dErrors.NewWithDetails(dErrors.CodePreconditionFailed,
					"active documents still reference this family", report)
			}
			tx.doc.ObsolescenceDate = &obsolescenceDate
			wf := &models.WorkflowInstance{
				ID:              id.NewWorkflowID(),
				DocumentID:      tx.doc.ID,
				Type:            models.WorkflowObsolete,
				CurrentAssignee: actor.ID,
				DueDate:         &obsolescenceDate,
				CreatedAt:       requestcontext.Now(ctx),
				History:         []models.HistoryEvent{historyEvent(ctx, models.HistoryScheduled, actor, reason)},
			}
			if err := s.store.CreateWorkflow(ctx, wf); err != nil {
				return err
			}
			s.emit(ctx, tx, notify.EventObsolescenceScheduled, reason, tx.doc.Author)
			return nil
		})
}

// BecomeObsolete is the scheduler-driven execution of a scheduled
// obsolescence. A distinct notifiable event from the scheduling itself.
func (s *Service) BecomeObsolete(ctx context.Context, docID id.DocumentID) (*Result, error) {
	return s.transition(ctx, docID, lifecycle.ActionBecomeObsolete, lifecycle.SystemActor, nil,
		func(ctx context.Context, tx *txState) error {
			if err := s.closeActiveWorkflow(ctx, tx.doc.ID, historyEvent(ctx, models.HistoryExecuted, lifecycle.SystemActor, "")); err != nil &&
				!dErrors.HasCode(err, dErrors.CodeNotFound) {
				return err
			}
			s.emit(ctx, tx, notify.EventDocumentObsoleted, "", tx.doc.Author)
			return nil
		})
}

// OpenPeriodicReview starts the periodic-review cycle, either from the
// scheduler when next_review_date passes or manually by a stakeholder.
func (s *Service) OpenPeriodicReview(ctx context.Context, actor id.Actor, docID id.DocumentID) (*Result, error) {
	return s.transition(ctx, docID, lifecycle.ActionStartPeriodicReview, actor, nil,
		func(ctx context.Context, tx *txState) error {
			wf := &models.WorkflowInstance{
				ID:              id.NewWorkflowID(),
				DocumentID:      tx.doc.ID,
				Type:            models.WorkflowPeriodicReview,
				CurrentAssignee: tx.doc.Author,
				DueDate:         tx.doc.NextReviewDate,
				CreatedAt:       requestcontext.Now(ctx),
				History:         []models.HistoryEvent{historyEvent(ctx, models.HistorySubmitted, actor, "")},
			}
			if err := s.store.CreateWorkflow(ctx, wf); err != nil {
				return err
			}
			s.emit(ctx, tx, notify.EventPeriodicReviewOpened, "", tx.doc.Author, tx.doc.Reviewer)
			return nil
		})
}

// CompletePeriodicReview records the verdict of a periodic review. The
// document returns to EFFECTIVE regardless of outcome; NEEDS_MINOR_UPDATES
// and NEEDS_MAJOR_UPDATES additionally spawn a new DRAFT version that must
// run the full lifecycle before normal supersession retires this one.
func (s *Service) CompletePeriodicReview(ctx context.Context, actor id.Actor, docID id.DocumentID,
	outcome models.ReviewOutcomeKind, comment string, nextReviewDate *time.Time) (*Result, error) {

	if _, ok := models.ParseReviewOutcome(string(outcome)); !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown review outcome: "+string(outcome))
	}
	return s.transition(ctx, docID, lifecycle.ActionCompleteReview, actor, nil,
		func(ctx context.Context, tx *txState) error {
			now := requestcontext.Now(ctx)
			event := historyEvent(ctx, models.HistoryReviewCompleted, actor, comment)
			event.Outcome = outcome
			if err := s.closeActiveWorkflow(ctx, tx.doc.ID, event); err != nil {
				return err
			}

			tx.doc.LastReviewDate = &now
			if nextReviewDate != nil {
				tx.doc.NextReviewDate = nextReviewDate
			} else {
				freq := tx.doc.ReviewFrequency
				if freq <= 0 {
					freq = s.defaultReviewFrequency
				}
				next := now.Add(freq)
				tx.doc.NextReviewDate = &next
			}

			record := &models.ReviewOutcome{
				DocumentID:     tx.doc.ID,
				Reviewer:       actor.ID,
				Outcome:        outcome,
				Comment:        comment,
				NextReviewDate: tx.doc.NextReviewDate,
				CompletedAt:    now,
			}

			if outcome != models.OutcomeStillValid {
				draft := &models.Document{
					ID:              id.NewDocumentID(),
					FamilyKey:       tx.doc.FamilyKey,
					Version:         family.NextVersion(tx.family, outcome),
					Title:           tx.doc.Title,
					Status:          models.StatusDraft,
					Author:          tx.doc.Author,
					ReviewFrequency: tx.doc.ReviewFrequency,
					Supersedes:      &tx.doc.ID,
					CreatedAt:       now,
					UpdatedAt:       now,
				}
				if err := s.store.CreateDocument(ctx, draft); err != nil {
					return err
				}
				record.SpawnedVersion = &draft.ID
				tx.intents = append(tx.intents, notify.NewIntent(
					notify.EventDraftSpawned, docRef(draft), now, comment, draft.Author))
			}

			if err := s.store.SaveReviewOutcome(ctx, record); err != nil {
				return err
			}
			s.emit(ctx, tx, notify.EventPeriodicReviewClosed, comment, tx.doc.Author)
			return nil
		})
}

// Terminate abandons a draft for good. Terminal, retained for audit.
func (s *Service) Terminate(ctx context.Context, actor id.Actor, docID id.DocumentID, reason string) (*Result, error) {
	return s.transition(ctx, docID, lifecycle.ActionTerminate, actor, nil,
		func(ctx context.Context, tx *txState) error {
			if err := s.closeActiveWorkflow(ctx, tx.doc.ID, historyEvent(ctx, models.HistoryExecuted, actor, reason)); err != nil &&
				!dErrors.HasCode(err, dErrors.CodeNotFound) {
				return err
			}
			s.emit(ctx, tx, notify.EventDraftTerminated, reason, tx.doc.Author)
			return nil
		})
}

// appendToActiveWorkflow adds one history entry to the document's live
// workflow instance.
func (s *Service) appendToActiveWorkflow(ctx context.Context, docID id.DocumentID, event models.HistoryEvent) error {
	wf, err := s.store.ActiveWorkflow(ctx, docID)
	if err != nil {
		return err
	}
	return s.store.AppendHistory(ctx, wf.ID, event)
}

// closeActiveWorkflow appends a final history entry and terminates the live
// workflow instance.
func (s *Service) closeActiveWorkflow(ctx context.Context, docID id.DocumentID, event models.HistoryEvent) error {
	wf, err := s.store.ActiveWorkflow(ctx, docID)
	if err != nil {
		return err
	}
	if err := s.store.AppendHistory(ctx, wf.ID, event); err != nil {
		return err
	}
	return s.store.TerminateWorkflow(ctx, wf.ID)
}
