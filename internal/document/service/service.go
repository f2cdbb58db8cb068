// Package service is the workflow orchestrator: the only mutating layer of
// the lifecycle core. It consults the state machine for legality and the
// obsolescence validator for family-wide safety, then applies the change,
// workflow bookkeeping, history and notification intents inside one
// transaction. On any error the transaction rolls back whole.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"charter/internal/document/lifecycle"
	"charter/internal/document/models"
	"charter/internal/document/store"
	"charter/internal/notify"
	"charter/internal/platform/metrics"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
	"charter/pkg/requestcontext"
)

// WarningPreviouslyRejected flags a deliberate-but-confirmable assignee
// choice: the chosen actor rejected this document in the same phase before.
// Advisory, never blocking.
const WarningPreviouslyRejected = "previously_rejected_by"

// Warning is a non-fatal advisory returned alongside success.
type Warning struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Actors  []id.ActorID `json:"actors,omitempty"`
}

// Result is the outcome of a successful transition. Intents are already in
// the outbox (same transaction); the copy here is for the caller's response.
type Result struct {
	Document *models.Document `json:"document"`
	Status   models.Status    `json:"status"`
	Warnings []Warning        `json:"warnings,omitempty"`
	Intents  []notify.Intent  `json:"intents,omitempty"`
}

// Service orchestrates every document mutation. It holds no cross-request
// state; actor, document and clock all arrive per call.
type Service struct {
	store   store.Store
	outbox  notify.Outbox
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	defaultReviewFrequency time.Duration
}

func New(st store.Store, outbox notify.Outbox, logger *slog.Logger, m *metrics.Metrics, defaultReviewFrequency time.Duration) (*Service, error) {
	if st == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "store is required")
	}
	if outbox == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "outbox is required")
	}
	return &Service{
		store:                  st,
		outbox:                 outbox,
		logger:                 logger,
		metrics:                m,
		tracer:                 otel.Tracer("charter/document/service"),
		defaultReviewFrequency: defaultReviewFrequency,
	}, nil
}

// txState is the working set of one transition: the acted-on document, its
// family rows (locked in fixed order) and the result being assembled.
type txState struct {
	doc     *models.Document
	family  []*models.Document
	result  *Result
	intents []notify.Intent
}

func (t *txState) warn(w Warning) {
	t.result.Warnings = append(t.result.Warnings, w)
}

// transition runs one lifecycle action end to end: lock the family in
// ascending version order, re-read the document, ask the state machine, let
// apply do the bookkeeping, persist, enqueue intents. Everything inside one
// RunInTx; any error rolls the whole thing back. prepare, when non-nil, runs
// on the locked document before the legality check so incoming fields the
// guards read (e.g. the effective date) are in place.
func (s *Service) transition(ctx context.Context, docID id.DocumentID, action lifecycle.Action, actor id.Actor,
	prepare func(tx *txState) error,
	apply func(ctx context.Context, tx *txState) error) (*Result, error) {

	ctx, span := s.tracer.Start(ctx, "transition",
		trace.WithAttributes(
			attribute.String("document.id", docID.String()),
			attribute.String("action", string(action)),
		))
	defer span.End()

	start := time.Now()
	result := &Result{}
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		// Need the family key before we can lock the family; the second read
		// below is the locked, authoritative one.
		peek, err := s.store.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		family, err := s.store.ListFamilyForUpdate(ctx, peek.FamilyKey)
		if err != nil {
			return err
		}
		tx := &txState{family: family, result: result}
		for _, member := range family {
			if member.ID == docID {
				tx.doc = member
			}
		}
		if tx.doc == nil {
			return dErrors.New(dErrors.CodeNotFound, "document not found")
		}

		if prepare != nil {
			if err := prepare(tx); err != nil {
				return err
			}
		}

		next, err := lifecycle.Evaluate(tx.doc, action, actor)
		if err != nil {
			return err
		}
		from := tx.doc.Status
		tx.doc.Status = next

		if err := apply(ctx, tx); err != nil {
			return err
		}
		if err := s.store.UpdateDocument(ctx, tx.doc); err != nil {
			return err
		}
		for _, intent := range tx.intents {
			if err := s.outbox.Enqueue(ctx, intent); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.NotificationsQueued.Inc()
			}
		}

		result.Document = tx.doc
		result.Status = tx.doc.Status
		result.Intents = tx.intents

		s.logger.InfoContext(ctx, "transition committed",
			"document_id", docID.String(),
			"family_key", tx.doc.FamilyKey.String(),
			"action", string(action),
			"from", string(from),
			"to", string(next),
			"actor", actor.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil
	})
	if s.metrics != nil {
		s.metrics.TransitionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.TransitionErrorsTotal.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
		} else {
			s.metrics.TransitionsTotal.WithLabelValues(string(action), string(result.Status)).Inc()
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// emit queues an intent for the transaction, stamped with the request clock.
func (s *Service) emit(ctx context.Context, tx *txState, eventType notify.EventType, comment string, recipients ...id.ActorID) {
	tx.intents = append(tx.intents, notify.NewIntent(
		eventType,
		docRef(tx.doc),
		requestcontext.Now(ctx),
		comment,
		recipients...,
	))
}

func docRef(doc *models.Document) notify.DocumentRef {
	return notify.DocumentRef{
		ID:        doc.ID,
		FamilyKey: doc.FamilyKey,
		Version:   doc.Version,
		Title:     doc.Title,
	}
}

// historyEvent stamps an entry with the request clock.
func historyEvent(ctx context.Context, kind models.HistoryEventKind, actor id.Actor, comment string) models.HistoryEvent {
	return models.HistoryEvent{
		Kind:      kind,
		Actor:     actor.ID,
		Timestamp: requestcontext.Now(ctx),
		Comment:   comment,
	}
}

// checkPreviousRejections surfaces the advisory warning when the chosen
// assignee rejected this document in the given phase before.
func (s *Service) checkPreviousRejections(ctx context.Context, tx *txState, wfType models.WorkflowType, assignee id.ActorID) error {
	rejected, err := s.store.RejectionsByActor(ctx, tx.doc.ID, wfType)
	if err != nil {
		return err
	}
	for _, actor := range rejected {
		if actor == assignee {
			tx.warn(Warning{
				Code:    WarningPreviouslyRejected,
				Message: "chosen assignee previously rejected this document in this phase",
				Actors:  []id.ActorID{assignee},
			})
			return nil
		}
	}
	return nil
}
