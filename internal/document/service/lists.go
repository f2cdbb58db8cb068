package service

import (
	"context"
	"sort"

	"charter/internal/document/family"
	"charter/internal/document/models"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
)

// ListFilter selects which slice of the corpus a list returns.
type ListFilter string

const (
	// FilterLibrary shows the controlled library: one row per family, the
	// version a reader should act on today.
	FilterLibrary ListFilter = "library"
	// FilterObsolete shows one row per fully retired family.
	FilterObsolete ListFilter = "obsolete"
	// FilterAll shows every version of every family.
	FilterAll ListFilter = "all"
)

// ParseListFilter validates a filter string from transport.
func ParseListFilter(s string) (ListFilter, error) {
	switch f := ListFilter(s); f {
	case FilterLibrary, FilterObsolete, FilterAll:
		return f, nil
	case "":
		return FilterLibrary, nil
	}
	return "", dErrors.New(dErrors.CodeBadRequest, "unknown list filter: "+s)
}

// GetDocument fetches one document, scope-checked against the actor.
func (s *Service) GetDocument(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !visibleTo(actor, doc) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return doc, nil
}

// ListDocuments walks every family and applies the filter. Library and
// obsolete views collapse each family to its single representative version;
// the all view returns the full version history.
func (s *Service) ListDocuments(ctx context.Context, actor id.Actor, filter ListFilter) ([]*models.Document, error) {
	keys, err := s.store.ListFamilyKeys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out []*models.Document
	for _, key := range keys {
		members, err := s.store.ListFamily(ctx, key)
		if err != nil {
			return nil, err
		}
		switch filter {
		case FilterLibrary:
			if doc := family.LibraryVisible(members); doc != nil && visibleTo(actor, doc) {
				out = append(out, doc)
			}
		case FilterObsolete:
			if doc := family.HighestObsolete(members); doc != nil && visibleTo(actor, doc) {
				out = append(out, doc)
			}
		case FilterAll:
			for _, doc := range family.Sort(members) {
				if visibleTo(actor, doc) {
					out = append(out, doc)
				}
			}
		}
	}
	return out, nil
}

// FamilyHistory returns every version of one family, newest first, with no
// status filtering. Scope-checked like any other read.
func (s *Service) FamilyHistory(ctx context.Context, actor id.Actor, key id.FamilyKey) ([]*models.Document, error) {
	members, err := s.store.ListFamily(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "family not found")
	}
	out := make([]*models.Document, 0, len(members))
	for _, doc := range family.Sort(members) {
		if visibleTo(actor, doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// WorkflowHistory returns the active workflow instance with its trail.
func (s *Service) WorkflowHistory(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.WorkflowInstance, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !visibleTo(actor, doc) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return s.store.ActiveWorkflow(ctx, docID)
}

// ReviewOutcomes returns the periodic-review record of one document.
func (s *Service) ReviewOutcomes(ctx context.Context, actor id.Actor, docID id.DocumentID) ([]*models.ReviewOutcome, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !visibleTo(actor, doc) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return s.store.ListReviewOutcomes(ctx, docID)
}

// visibleTo applies the actor's view scope: Self sees only documents the
// actor holds an assignment on; All sees everything.
func visibleTo(actor id.Actor, doc *models.Document) bool {
	if id.ScopeFor(actor) == id.ViewScopeAll {
		return true
	}
	return doc.Stakeholder(actor.ID)
}
