package handler

import (
	"time"

	"charter/internal/document/models"
	id "charter/pkg/domain"
)

// Request DTOs. Kept separate from the domain types so wire evolution never
// forces a domain change.

type CreateDraftRequest struct {
	FamilyKey string `json:"family_key"`
	Title     string `json:"title"`
}

// AssignRequest names the next assignee for a review or approval phase.
type AssignRequest struct {
	Assignee string `json:"assignee"`
}

type VerdictRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment,omitempty"`
}

type CompleteApprovalRequest struct {
	Approved      bool       `json:"approved"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	Comment       string     `json:"comment,omitempty"`
}

type ScheduleObsolescenceRequest struct {
	ObsolescenceDate time.Time `json:"obsolescence_date"`
	Reason           string    `json:"reason,omitempty"`
}

type CompletePeriodicReviewRequest struct {
	Outcome        string     `json:"outcome"`
	Comment        string     `json:"comment,omitempty"`
	NextReviewDate *time.Time `json:"next_review_date,omitempty"`
}

type TerminateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// DocumentResponse is the wire shape of one document version.
type DocumentResponse struct {
	ID               id.DocumentID  `json:"id"`
	FamilyKey        id.FamilyKey   `json:"family_key"`
	Version          id.Version     `json:"version"`
	Title            string         `json:"title"`
	Status           models.Status  `json:"status"`
	Author           id.ActorID     `json:"author"`
	Reviewer         id.ActorID     `json:"reviewer,omitempty"`
	Approver         id.ActorID     `json:"approver,omitempty"`
	EffectiveDate    *time.Time     `json:"effective_date,omitempty"`
	ObsolescenceDate *time.Time     `json:"obsolescence_date,omitempty"`
	NextReviewDate   *time.Time     `json:"next_review_date,omitempty"`
	LastReviewDate   *time.Time     `json:"last_review_date,omitempty"`
	Supersedes       *id.DocumentID `json:"supersedes,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func FromDocument(d *models.Document) DocumentResponse {
	return DocumentResponse{
		ID:               d.ID,
		FamilyKey:        d.FamilyKey,
		Version:          d.Version,
		Title:            d.Title,
		Status:           d.Status,
		Author:           d.Author,
		Reviewer:         d.Reviewer,
		Approver:         d.Approver,
		EffectiveDate:    d.EffectiveDate,
		ObsolescenceDate: d.ObsolescenceDate,
		NextReviewDate:   d.NextReviewDate,
		LastReviewDate:   d.LastReviewDate,
		Supersedes:       d.Supersedes,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func FromDocuments(docs []*models.Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, FromDocument(d))
	}
	return out
}

// HistoryEventResponse is one workflow trail entry on the wire.
type HistoryEventResponse struct {
	Kind      models.HistoryEventKind  `json:"kind"`
	Actor     id.ActorID               `json:"actor"`
	Timestamp time.Time                `json:"timestamp"`
	Comment   string                   `json:"comment,omitempty"`
	Outcome   models.ReviewOutcomeKind `json:"outcome,omitempty"`
}

type WorkflowResponse struct {
	ID              id.WorkflowID          `json:"id"`
	DocumentID      id.DocumentID          `json:"document_id"`
	Type            models.WorkflowType    `json:"type"`
	CurrentAssignee id.ActorID             `json:"current_assignee"`
	DueDate         *time.Time             `json:"due_date,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	History         []HistoryEventResponse `json:"history"`
}

func FromWorkflow(wf *models.WorkflowInstance) WorkflowResponse {
	history := make([]HistoryEventResponse, 0, len(wf.History))
	for _, e := range wf.History {
		history = append(history, HistoryEventResponse{
			Kind:      e.Kind,
			Actor:     e.Actor,
			Timestamp: e.Timestamp,
			Comment:   e.Comment,
			Outcome:   e.Outcome,
		})
	}
	return WorkflowResponse{
		ID:              wf.ID,
		DocumentID:      wf.DocumentID,
		Type:            wf.Type,
		CurrentAssignee: wf.CurrentAssignee,
		DueDate:         wf.DueDate,
		CreatedAt:       wf.CreatedAt,
		History:         history,
	}
}

type ReviewOutcomeResponse struct {
	DocumentID     id.DocumentID            `json:"document_id"`
	Reviewer       id.ActorID               `json:"reviewer"`
	Outcome        models.ReviewOutcomeKind `json:"outcome"`
	Comment        string                   `json:"comment,omitempty"`
	NextReviewDate *time.Time               `json:"next_review_date,omitempty"`
	SpawnedVersion *id.DocumentID           `json:"spawned_version,omitempty"`
	CompletedAt    time.Time                `json:"completed_at"`
}

func FromReviewOutcomes(outcomes []*models.ReviewOutcome) []ReviewOutcomeResponse {
	out := make([]ReviewOutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, ReviewOutcomeResponse{
			DocumentID:     o.DocumentID,
			Reviewer:       o.Reviewer,
			Outcome:        o.Outcome,
			Comment:        o.Comment,
			NextReviewDate: o.NextReviewDate,
			SpawnedVersion: o.SpawnedVersion,
			CompletedAt:    o.CompletedAt,
		})
	}
	return out
}
