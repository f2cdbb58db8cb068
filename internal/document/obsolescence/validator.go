// Package obsolescence decides whether an entire version family can be
// safely moved into the obsolescence path. The check spans every family
// member including SUPERSEDED ones: an old version can still be referenced
// by an active dependent.
package obsolescence

import (
	"context"

	"charter/internal/document/family"
	"charter/internal/document/models"
	id "charter/pkg/domain"
)

// Stores is the read surface the validator needs. The orchestrator passes
// its transactional stores so the commit-time run sees locked rows; the
// preview path passes the plain ones.
type Stores interface {
	ListFamily(ctx context.Context, key id.FamilyKey) ([]*models.Document, error)
	// EdgesTo returns all dependency edges whose target is any of the given
	// documents, via an index on edge targets rather than a table scan.
	EdgesTo(ctx context.Context, targets []id.DocumentID) ([]models.DependencyEdge, error)
	GetDocument(ctx context.Context, docID id.DocumentID) (*models.Document, error)
}

// BlockingEntry names one family version that active dependents still
// reference, keyed for the caller's error display.
type BlockingEntry struct {
	Version    id.Version    `json:"version"`
	DocumentID id.DocumentID `json:"document_id"`
	Dependents []Dependent   `json:"dependents"`
}

// Dependent is one active document holding an edge to a family member.
type Dependent struct {
	DocumentID id.DocumentID `json:"document_id"`
	FamilyKey  id.FamilyKey  `json:"family_key"`
	Version    id.Version    `json:"version"`
	Status     models.Status `json:"status"`
}

// Report is the full validation result, surfaced verbatim to callers when
// scheduling is blocked so they can see exactly what must be retired first.
type Report struct {
	FamilyKey        id.FamilyKey    `json:"family_key"`
	CanObsolete      bool            `json:"can_obsolete"`
	AffectedVersions int             `json:"affected_versions"`
	Blocking         []BlockingEntry `json:"blocking,omitempty"`
}

// Validate runs the family-wide dependency check for the family containing
// docID. Cost is O(|family| + incident edges).
func Validate(ctx context.Context, stores Stores, docID id.DocumentID) (*Report, error) {
	doc, err := stores.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	members, err := stores.ListFamily(ctx, doc.FamilyKey)
	if err != nil {
		return nil, err
	}

	byID := make(map[id.DocumentID]*models.Document, len(members))
	targets := make([]id.DocumentID, 0, len(members))
	for _, m := range members {
		byID[m.ID] = m
		targets = append(targets, m.ID)
	}

	edges, err := stores.EdgesTo(ctx, targets)
	if err != nil {
		return nil, err
	}

	// Group active dependents by which family version they pin down.
	blockedBy := make(map[id.DocumentID][]Dependent)
	for _, edge := range edges {
		from, err := stores.GetDocument(ctx, edge.From)
		if err != nil {
			return nil, err
		}
		if !from.Status.Active() {
			continue
		}
		// Edges inside the family do not block retiring the family itself.
		if from.FamilyKey == doc.FamilyKey {
			continue
		}
		blockedBy[edge.To] = append(blockedBy[edge.To], Dependent{
			DocumentID: from.ID,
			FamilyKey:  from.FamilyKey,
			Version:    from.Version,
			Status:     from.Status,
		})
	}

	report := &Report{
		FamilyKey:        doc.FamilyKey,
		CanObsolete:      len(blockedBy) == 0,
		AffectedVersions: len(blockedBy),
	}
	// Deterministic order: newest family version first.
	for _, m := range family.Sort(members) {
		if deps, ok := blockedBy[m.ID]; ok {
			report.Blocking = append(report.Blocking, BlockingEntry{
				Version:    m.Version,
				DocumentID: m.ID,
				Dependents: deps,
			})
		}
	}
	return report, nil
}
