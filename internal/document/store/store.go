// Package store persists documents, workflow instances, dependency edges and
// review outcomes. Implementations come in pairs: an in-memory store for unit
// tests and single-process use, and a Postgres store for production.
package store

import (
	"context"
	"time"

	"charter/internal/document/models"
	id "charter/pkg/domain"
)

// DocumentStore is transactional CRUD on document rows.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	// GetDocumentForUpdate locks the row for the duration of the surrounding
	// transaction. Outside a transaction it degrades to a plain read.
	GetDocumentForUpdate(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	ListFamily(ctx context.Context, key id.FamilyKey) ([]*models.Document, error)
	// ListFamilyForUpdate locks every family row in ascending
	// (family_key, version_major, version_minor) order so concurrent
	// family-wide operations cannot deadlock.
	ListFamilyForUpdate(ctx context.Context, key id.FamilyKey) ([]*models.Document, error)

	// Scheduler scans. Each returns documents whose trigger date has passed.
	ListEffectiveDue(ctx context.Context, now time.Time) ([]*models.Document, error)
	ListObsolescenceDue(ctx context.Context, now time.Time) ([]*models.Document, error)
	ListReviewDue(ctx context.Context, now time.Time) ([]*models.Document, error)

	// ListFamilyKeys returns every family key, for the list-filter contract.
	ListFamilyKeys(ctx context.Context) ([]id.FamilyKey, error)
}

// WorkflowStore manages the live process object per document.
type WorkflowStore interface {
	// CreateWorkflow check-and-inserts atomically: it fails with CodeConflict
	// when a non-terminated instance already exists for the document.
	CreateWorkflow(ctx context.Context, wf *models.WorkflowInstance) error
	// ActiveWorkflow returns the single non-terminated instance, or
	// CodeNotFound when the document has none.
	ActiveWorkflow(ctx context.Context, docID id.DocumentID) (*models.WorkflowInstance, error)
	AppendHistory(ctx context.Context, workflowID id.WorkflowID, event models.HistoryEvent) error
	TerminateWorkflow(ctx context.Context, workflowID id.WorkflowID) error
	// RejectionsByActor lists actors who rejected the document in the given
	// phase across all past workflow instances.
	RejectionsByActor(ctx context.Context, docID id.DocumentID, wfType models.WorkflowType) ([]id.ActorID, error)
}

// EdgeIndex exposes the dependency graph, derived from a relationship table
// maintained by document content changes outside this core.
type EdgeIndex interface {
	AddEdge(ctx context.Context, edge models.DependencyEdge) error
	RemoveEdge(ctx context.Context, edge models.DependencyEdge) error
	// EdgesTo resolves incident edges via an index on targets, not a scan.
	EdgesTo(ctx context.Context, targets []id.DocumentID) ([]models.DependencyEdge, error)
}

// OutcomeStore records immutable periodic-review outcomes.
type OutcomeStore interface {
	SaveReviewOutcome(ctx context.Context, outcome *models.ReviewOutcome) error
	ListReviewOutcomes(ctx context.Context, docID id.DocumentID) ([]*models.ReviewOutcome, error)
}

// TxRunner provides the transactional boundary. The Postgres implementation
// opens a database transaction and stashes it in the context for the stores;
// the memory implementation serializes on a coarse lock.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is the full persistence surface the orchestrator and scheduler wire.
type Store interface {
	DocumentStore
	WorkflowStore
	EdgeIndex
	OutcomeStore
	TxRunner
}
