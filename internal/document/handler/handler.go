// Package handler exposes the document lifecycle over HTTP. It is a thin
// translation layer: decode, resolve the actor, call the orchestrator, map
// the result or error onto the wire. No lifecycle decisions live here.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"charter/internal/document/models"
	"charter/internal/document/obsolescence"
	doc "charter/internal/document/service"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
	"charter/pkg/platform/httputil"
	"charter/pkg/requestcontext"
)

// Service is the orchestrator surface the handler consumes.
type Service interface {
	CreateDraft(ctx context.Context, actor id.Actor, familyKey id.FamilyKey, title string) (*doc.Result, error)
	SubmitForReview(ctx context.Context, actor id.Actor, docID id.DocumentID, reviewer id.ActorID) (*doc.Result, error)
	StartReview(ctx context.Context, actor id.Actor, docID id.DocumentID) (*doc.Result, error)
	CompleteReview(ctx context.Context, actor id.Actor, docID id.DocumentID, approved bool, comment string) (*doc.Result, error)
	RouteForApproval(ctx context.Context, actor id.Actor, docID id.DocumentID, approver id.ActorID) (*doc.Result, error)
	StartApproval(ctx context.Context, actor id.Actor, docID id.DocumentID) (*doc.Result, error)
	CompleteApproval(ctx context.Context, actor id.Actor, docID id.DocumentID, approved bool, effectiveDate *time.Time, comment string) (*doc.Result, error)
	PreviewObsolescence(ctx context.Context, docID id.DocumentID) (*obsolescence.Report, error)
	ScheduleObsolescence(ctx context.Context, actor id.Actor, docID id.DocumentID, obsolescenceDate time.Time, reason string) (*doc.Result, error)
	OpenPeriodicReview(ctx context.Context, actor id.Actor, docID id.DocumentID) (*doc.Result, error)
	CompletePeriodicReview(ctx context.Context, actor id.Actor, docID id.DocumentID, outcome models.ReviewOutcomeKind, comment string, nextReviewDate *time.Time) (*doc.Result, error)
	Terminate(ctx context.Context, actor id.Actor, docID id.DocumentID, reason string) (*doc.Result, error)

	GetDocument(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.Document, error)
	ListDocuments(ctx context.Context, actor id.Actor, filter doc.ListFilter) ([]*models.Document, error)
	FamilyHistory(ctx context.Context, actor id.Actor, key id.FamilyKey) ([]*models.Document, error)
	WorkflowHistory(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.WorkflowInstance, error)
	ReviewOutcomes(ctx context.Context, actor id.Actor, docID id.DocumentID) ([]*models.ReviewOutcome, error)
}

// Handler wires document lifecycle endpoints to the orchestrator.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts all document endpoints on the router. The caller is
// responsible for wrapping the router in the auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/documents", h.HandleCreateDraft)
	r.Get("/documents", h.HandleList)
	r.Get("/documents/{documentID}", h.HandleGet)
	r.Get("/documents/{documentID}/workflow", h.HandleWorkflow)
	r.Get("/documents/{documentID}/review-outcomes", h.HandleReviewOutcomes)
	r.Get("/documents/{documentID}/obsolescence-preview", h.HandlePreviewObsolescence)
	r.Get("/families/{familyKey}/history", h.HandleFamilyHistory)

	r.Post("/documents/{documentID}/submit-for-review", h.HandleSubmitForReview)
	r.Post("/documents/{documentID}/start-review", h.HandleStartReview)
	r.Post("/documents/{documentID}/complete-review", h.HandleCompleteReview)
	r.Post("/documents/{documentID}/route-for-approval", h.HandleRouteForApproval)
	r.Post("/documents/{documentID}/start-approval", h.HandleStartApproval)
	r.Post("/documents/{documentID}/complete-approval", h.HandleCompleteApproval)
	r.Post("/documents/{documentID}/schedule-obsolescence", h.HandleScheduleObsolescence)
	r.Post("/documents/{documentID}/periodic-review", h.HandleOpenPeriodicReview)
	r.Post("/documents/{documentID}/complete-periodic-review", h.HandleCompletePeriodicReview)
	r.Post("/documents/{documentID}/terminate", h.HandleTerminate)
}

// requireActor resolves the authenticated actor or writes the 403 itself.
func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (id.Actor, bool) {
	actor := requestcontext.ActorFrom(r.Context())
	if actor.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.Actor{}, false
	}
	return actor, true
}

// pathDocumentID parses the {documentID} segment or writes the 400 itself.
func (h *Handler) pathDocumentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document id"))
		return docID, false
	}
	return docID, true
}

// writeResult logs the committed transition and returns it to the caller.
func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, operation string, result *doc.Result) {
	h.logger.InfoContext(r.Context(), operation,
		"request_id", requestcontext.RequestID(r.Context()),
		"document_id", result.Document.ID.String(),
		"status", string(result.Status),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[CreateDraftRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.CreateDraft(r.Context(), actor, id.FamilyKey(req.FamilyKey), req.Title)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "draft created",
		"request_id", requestcontext.RequestID(r.Context()),
		"document_id", result.Document.ID.String(),
		"family_key", req.FamilyKey,
	)
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleSubmitForReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[AssignRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.SubmitForReview(r.Context(), actor, docID, id.ActorID(req.Assignee))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeResult(w, r, "submitted for review", result)
}

func (h *Handler) HandleStartReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	result, err := h.service.StartReview(r.Context(), actor, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeResult(w, r, "review started", result)
}

func (h *Handler) HandleCompleteReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[VerdictRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.CompleteReview(r.Context(), actor, docID, req.Approved, req.Comment)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeResult(w, r, "review completed", result)
}

func (h *Handler) HandleRouteForApproval(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[AssignRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.RouteForApproval(r.Context(), actor, docID, id.ActorID(req.Assignee))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeResult(w, r, "routed for approval", result)
}

func (h *Handler) HandleStartApproval(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	result, err := h.service.StartApproval(r.Context(), actor, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeResult(w, r, "approval started", result)
}

func (h *Handler) HandleCompleteApproval(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[CompleteApprovalRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.CompleteApproval(r.Context(), actor, docID, req.Approved, req.EffectiveDate, req.Comment)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeResult(w, r, "approval completed", result)
}

func (h *Handler) HandlePreviewObsolescence(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	report, err := h.service.PreviewObsolescence(r.Context(), docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleScheduleObsolescence(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ScheduleObsolescenceRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.ScheduleObsolescence(r.Context(), actor, docID, req.ObsolescenceDate, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeResult(w, r, "obsolescence scheduled", result)
}

func (h *Handler) HandleOpenPeriodicReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	result, err := h.service.OpenPeriodicReview(r.Context(), actor, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeResult(w, r, "periodic review opened", result)
}

func (h *Handler) HandleCompletePeriodicReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[CompletePeriodicReviewRequest](w, r, h.logger)
	if !ok {
		return
	}
	outcome, valid := models.ParseReviewOutcome(req.Outcome)
	if !valid {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown review outcome: "+req.Outcome))
		return
	}
	result, err := h.service.CompletePeriodicReview(r.Context(), actor, docID, outcome, req.Comment, req.NextReviewDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeResult(w, r, "periodic review completed", result)
}

func (h *Handler) HandleTerminate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[TerminateRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.Terminate(r.Context(), actor, docID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeResult(w, r, "document terminated", result)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	document, err := h.service.GetDocument(r.Context(), actor, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocument(document))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	filter, err := doc.ParseListFilter(r.URL.Query().Get("filter"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docs, err := h.service.ListDocuments(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocuments(docs))
}

func (h *Handler) HandleFamilyHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	key := id.FamilyKey(chi.URLParam(r, "familyKey"))
	if key.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "family key is required"))
		return
	}
	docs, err := h.service.FamilyHistory(r.Context(), actor, key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocuments(docs))
}

func (h *Handler) HandleWorkflow(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	wf, err := h.service.WorkflowHistory(r.Context(), actor, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromWorkflow(wf))
}

func (h *Handler) HandleReviewOutcomes(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathDocumentID(w, r)
	if !ok {
		return
	}
	outcomes, err := h.service.ReviewOutcomes(r.Context(), actor, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromReviewOutcomes(outcomes))
}
