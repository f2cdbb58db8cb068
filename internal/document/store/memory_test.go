package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charter/internal/document/models"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
)

func newDocument(key id.FamilyKey, version id.Version, status models.Status) *models.Document {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	return &models.Document{
		ID:        id.NewDocumentID(),
		FamilyKey: key,
		Version:   version,
		Title:     "Quality Policy",
		Status:    status,
		Author:    "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	doc := newDocument("POL-1", id.FirstVersion, models.StatusDraft)
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, models.StatusDraft, got.Status)

	// Mutating the returned copy must not leak into the store.
	got.Status = models.StatusEffective
	again, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, again.Status)
}

func TestGetDocumentNotFound(t *testing.T) {
	s := NewInMemory()

	_, err := s.GetDocument(context.Background(), id.NewDocumentID())

	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestCreateDocumentDuplicateConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	doc := newDocument("POL-1", id.FirstVersion, models.StatusDraft)
	require.NoError(t, s.CreateDocument(ctx, doc))

	err := s.CreateDocument(ctx, doc)

	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestListFamilyAscendingVersionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	require.NoError(t, s.CreateDocument(ctx, newDocument("POL-1", id.Version{Major: 2, Minor: 0}, models.StatusDraft)))
	require.NoError(t, s.CreateDocument(ctx, newDocument("POL-1", id.Version{Major: 1, Minor: 0}, models.StatusSuperseded)))
	require.NoError(t, s.CreateDocument(ctx, newDocument("POL-1", id.Version{Major: 1, Minor: 2}, models.StatusEffective)))
	require.NoError(t, s.CreateDocument(ctx, newDocument("SOP-9", id.FirstVersion, models.StatusDraft)))

	members, err := s.ListFamily(ctx, "POL-1")

	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, id.Version{Major: 1, Minor: 0}, members[0].Version)
	assert.Equal(t, id.Version{Major: 1, Minor: 2}, members[1].Version)
	assert.Equal(t, id.Version{Major: 2, Minor: 0}, members[2].Version)
}

func TestDueScansMatchOnlyDueStatuses(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, -1, 0)
	future := now.AddDate(0, 1, 0)

	due := newDocument("POL-1", id.FirstVersion, models.StatusApprovedPendingEffective)
	due.EffectiveDate = &past
	notYet := newDocument("SOP-9", id.FirstVersion, models.StatusApprovedPendingEffective)
	notYet.EffectiveDate = &future
	wrongStatus := newDocument("WI-3", id.FirstVersion, models.StatusDraft)
	wrongStatus.EffectiveDate = &past
	require.NoError(t, s.CreateDocument(ctx, due))
	require.NoError(t, s.CreateDocument(ctx, notYet))
	require.NoError(t, s.CreateDocument(ctx, wrongStatus))

	docs, err := s.ListEffectiveDue(ctx, now)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, due.ID, docs[0].ID)
}

func TestSingleActiveWorkflowPerDocument(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	doc := newDocument("POL-1", id.FirstVersion, models.StatusPendingReview)
	require.NoError(t, s.CreateDocument(ctx, doc))

	first := &models.WorkflowInstance{
		ID:              id.NewWorkflowID(),
		DocumentID:      doc.ID,
		Type:            models.WorkflowReview,
		CurrentAssignee: "bob",
		CreatedAt:       time.Now(),
	}
	require.NoError(t, s.CreateWorkflow(ctx, first))

	second := &models.WorkflowInstance{
		ID:              id.NewWorkflowID(),
		DocumentID:      doc.ID,
		Type:            models.WorkflowApproval,
		CurrentAssignee: "carol",
		CreatedAt:       time.Now(),
	}
	err := s.CreateWorkflow(ctx, second)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict),
		"a second live workflow on the same document must be refused")

	require.NoError(t, s.TerminateWorkflow(ctx, first.ID))
	assert.NoError(t, s.CreateWorkflow(ctx, second),
		"terminating the first workflow frees the slot")
}

func TestRejectionsByActorScansTerminatedWorkflows(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	doc := newDocument("POL-1", id.FirstVersion, models.StatusDraft)
	require.NoError(t, s.CreateDocument(ctx, doc))

	wf := &models.WorkflowInstance{
		ID:              id.NewWorkflowID(),
		DocumentID:      doc.ID,
		Type:            models.WorkflowReview,
		CurrentAssignee: "bob",
		CreatedAt:       time.Now(),
	}
	require.NoError(t, s.CreateWorkflow(ctx, wf))
	require.NoError(t, s.AppendHistory(ctx, wf.ID, models.HistoryEvent{
		Kind:      models.HistoryRejected,
		Actor:     "bob",
		Timestamp: time.Now(),
		Comment:   "fix typo",
	}))
	require.NoError(t, s.TerminateWorkflow(ctx, wf.ID))

	rejected, err := s.RejectionsByActor(ctx, doc.ID, models.WorkflowReview)
	require.NoError(t, err)
	assert.Equal(t, []id.ActorID{"bob"}, rejected)

	// Approval-phase rejections are a separate record.
	rejected, err = s.RejectionsByActor(ctx, doc.ID, models.WorkflowApproval)
	require.NoError(t, err)
	assert.Empty(t, rejected)
}

func TestEdgeIndexLookupByTarget(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	target := id.NewDocumentID()
	other := id.NewDocumentID()
	edge := models.DependencyEdge{From: id.NewDocumentID(), To: target}
	require.NoError(t, s.AddEdge(ctx, edge))
	require.NoError(t, s.AddEdge(ctx, models.DependencyEdge{From: id.NewDocumentID(), To: other}))

	edges, err := s.EdgesTo(ctx, []id.DocumentID{target})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, edge, edges[0])

	require.NoError(t, s.RemoveEdge(ctx, edge))
	edges, err = s.EdgesTo(ctx, []id.DocumentID{target})
	require.NoError(t, err)
	assert.Empty(t, edges)
}
