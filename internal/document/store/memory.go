package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"charter/internal/document/models"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
)

// InMemoryStore is the test and single-process implementation. RunInTx
// serializes on a coarse lock, which gives the same observable atomicity as
// the Postgres transaction without a database.
type InMemoryStore struct {
	mu        sync.RWMutex
	documents map[id.DocumentID]*models.Document
	workflows map[id.WorkflowID]*models.WorkflowInstance
	// edgesByTarget is the index the validator's cost bound relies on.
	edgesByTarget map[id.DocumentID][]models.DependencyEdge
	outcomes      map[id.DocumentID][]*models.ReviewOutcome

	txMu sync.Mutex
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		documents:     make(map[id.DocumentID]*models.Document),
		workflows:     make(map[id.WorkflowID]*models.WorkflowInstance),
		edgesByTarget: make(map[id.DocumentID][]models.DependencyEdge),
		outcomes:      make(map[id.DocumentID][]*models.ReviewOutcome),
	}
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeConflict, "transaction aborted: context cancelled")
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

func (s *InMemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[doc.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "document already exists")
	}
	cp := *doc
	s.documents[doc.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetDocument(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[docID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	cp := *doc
	return &cp, nil
}

// GetDocumentForUpdate is a plain read in memory; RunInTx's coarse lock
// already excludes concurrent writers.
func (s *InMemoryStore) GetDocumentForUpdate(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	return s.GetDocument(ctx, docID)
}

func (s *InMemoryStore) UpdateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	doc.UpdatedAt = time.Now()
	cp := *doc
	s.documents[doc.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListFamily(_ context.Context, key id.FamilyKey) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var members []*models.Document
	for _, doc := range s.documents {
		if doc.FamilyKey == key {
			cp := *doc
			members = append(members, &cp)
		}
	}
	// Ascending lock order, same as the Postgres FOR UPDATE query.
	sort.Slice(members, func(i, j int) bool {
		return members[i].Version.Compare(members[j].Version) < 0
	})
	return members, nil
}

func (s *InMemoryStore) ListFamilyForUpdate(ctx context.Context, key id.FamilyKey) ([]*models.Document, error) {
	return s.ListFamily(ctx, key)
}

func (s *InMemoryStore) ListEffectiveDue(_ context.Context, now time.Time) ([]*models.Document, error) {
	return s.listDue(models.StatusApprovedPendingEffective, func(d *models.Document) *time.Time {
		return d.EffectiveDate
	}, now)
}

func (s *InMemoryStore) ListObsolescenceDue(_ context.Context, now time.Time) ([]*models.Document, error) {
	return s.listDue(models.StatusScheduledForObsolescence, func(d *models.Document) *time.Time {
		return d.ObsolescenceDate
	}, now)
}

func (s *InMemoryStore) ListReviewDue(_ context.Context, now time.Time) ([]*models.Document, error) {
	return s.listDue(models.StatusEffective, func(d *models.Document) *time.Time {
		return d.NextReviewDate
	}, now)
}

func (s *InMemoryStore) listDue(status models.Status, date func(*models.Document) *time.Time, now time.Time) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*models.Document
	for _, doc := range s.documents {
		d := date(doc)
		if doc.Status == status && d != nil && !d.After(now) {
			cp := *doc
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].FamilyKey != due[j].FamilyKey {
			return due[i].FamilyKey < due[j].FamilyKey
		}
		return due[i].Version.Compare(due[j].Version) < 0
	})
	return due, nil
}

func (s *InMemoryStore) ListFamilyKeys(_ context.Context) ([]id.FamilyKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[id.FamilyKey]bool)
	var keys []id.FamilyKey
	for _, doc := range s.documents {
		if !seen[doc.FamilyKey] {
			seen[doc.FamilyKey] = true
			keys = append(keys, doc.FamilyKey)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

func (s *InMemoryStore) CreateWorkflow(_ context.Context, wf *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.workflows {
		if existing.DocumentID == wf.DocumentID && !existing.IsTerminated {
			return dErrors.New(dErrors.CodeConflict, "document already has an active workflow")
		}
	}
	cp := *wf
	cp.History = append([]models.HistoryEvent(nil), wf.History...)
	s.workflows[wf.ID] = &cp
	return nil
}

func (s *InMemoryStore) ActiveWorkflow(_ context.Context, docID id.DocumentID) (*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, wf := range s.workflows {
		if wf.DocumentID == docID && !wf.IsTerminated {
			cp := *wf
			cp.History = append([]models.HistoryEvent(nil), wf.History...)
			return &cp, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no active workflow for document")
}

func (s *InMemoryStore) AppendHistory(_ context.Context, workflowID id.WorkflowID, event models.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "workflow not found")
	}
	wf.History = append(wf.History, event)
	return nil
}

func (s *InMemoryStore) TerminateWorkflow(_ context.Context, workflowID id.WorkflowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "workflow not found")
	}
	wf.IsTerminated = true
	return nil
}

func (s *InMemoryStore) RejectionsByActor(_ context.Context, docID id.DocumentID, wfType models.WorkflowType) ([]id.ActorID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[id.ActorID]bool)
	var actors []id.ActorID
	for _, wf := range s.workflows {
		if wf.DocumentID != docID || wf.Type != wfType {
			continue
		}
		for _, event := range wf.History {
			if event.Kind == models.HistoryRejected && !seen[event.Actor] {
				seen[event.Actor] = true
				actors = append(actors, event.Actor)
			}
		}
	}
	return actors, nil
}

func (s *InMemoryStore) AddEdge(_ context.Context, edge models.DependencyEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edgesByTarget[edge.To] = append(s.edgesByTarget[edge.To], edge)
	return nil
}

func (s *InMemoryStore) RemoveEdge(_ context.Context, edge models.DependencyEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	edges := s.edgesByTarget[edge.To]
	for i, e := range edges {
		if e.From == edge.From {
			s.edgesByTarget[edge.To] = append(edges[:i], edges[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) EdgesTo(_ context.Context, targets []id.DocumentID) ([]models.DependencyEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var edges []models.DependencyEdge
	for _, target := range targets {
		edges = append(edges, s.edgesByTarget[target]...)
	}
	return edges, nil
}

func (s *InMemoryStore) SaveReviewOutcome(_ context.Context, outcome *models.ReviewOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *outcome
	s.outcomes[outcome.DocumentID] = append(s.outcomes[outcome.DocumentID], &cp)
	return nil
}

func (s *InMemoryStore) ListReviewOutcomes(_ context.Context, docID id.DocumentID) ([]*models.ReviewOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ReviewOutcome
	for _, o := range s.outcomes[docID] {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}
