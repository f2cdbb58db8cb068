package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"charter/internal/document/models"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
	txcontext "charter/pkg/platform/tx"
)

// PostgresStore persists everything in PostgreSQL. Writes performed inside
// RunInTx share one transaction via the context; row locks are taken with
// FOR UPDATE in fixed (family_key, version_major, version_minor) order.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) dbConn {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapPgError(err, "commit transaction")
	}
	return nil
}

const documentColumns = `id, family_key, version_major, version_minor, title, status,
	author, reviewer, approver,
	effective_date, obsolescence_date, next_review_date, last_review_date,
	review_frequency_seconds, supersedes, created_at, updated_at`

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		uuid.UUID(doc.ID), doc.FamilyKey.String(), doc.Version.Major, doc.Version.Minor,
		doc.Title, string(doc.Status),
		nullActor(doc.Author), nullActor(doc.Reviewer), nullActor(doc.Approver),
		nullTime(doc.EffectiveDate), nullTime(doc.ObsolescenceDate),
		nullTime(doc.NextReviewDate), nullTime(doc.LastReviewDate),
		int64(doc.ReviewFrequency/time.Second), nullDocID(doc.Supersedes),
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return mapPgError(err, "create document")
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, uuid.UUID(docID))
	return scanDocument(row)
}

func (s *PostgresStore) GetDocumentForUpdate(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	conn := s.conn(ctx)
	if _, inTx := txcontext.From(ctx); !inTx {
		return s.GetDocument(ctx, docID)
	}
	row := conn.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, uuid.UUID(docID))
	return scanDocument(row)
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE documents SET
			title = $2, status = $3,
			author = $4, reviewer = $5, approver = $6,
			effective_date = $7, obsolescence_date = $8,
			next_review_date = $9, last_review_date = $10,
			review_frequency_seconds = $11, supersedes = $12,
			updated_at = now()
		WHERE id = $1`,
		uuid.UUID(doc.ID), doc.Title, string(doc.Status),
		nullActor(doc.Author), nullActor(doc.Reviewer), nullActor(doc.Approver),
		nullTime(doc.EffectiveDate), nullTime(doc.ObsolescenceDate),
		nullTime(doc.NextReviewDate), nullTime(doc.LastReviewDate),
		int64(doc.ReviewFrequency/time.Second), nullDocID(doc.Supersedes),
	)
	if err != nil {
		return mapPgError(err, "update document")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return nil
}

func (s *PostgresStore) ListFamily(ctx context.Context, key id.FamilyKey) ([]*models.Document, error) {
	return s.listDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE family_key = $1
		ORDER BY family_key, version_major, version_minor`, key.String())
}

func (s *PostgresStore) ListFamilyForUpdate(ctx context.Context, key id.FamilyKey) ([]*models.Document, error) {
	if _, inTx := txcontext.From(ctx); !inTx {
		return s.ListFamily(ctx, key)
	}
	return s.listDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE family_key = $1
		ORDER BY family_key, version_major, version_minor
		FOR UPDATE`, key.String())
}

func (s *PostgresStore) ListEffectiveDue(ctx context.Context, now time.Time) ([]*models.Document, error) {
	return s.listDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = $1 AND effective_date <= $2
		ORDER BY family_key, version_major, version_minor`,
		string(models.StatusApprovedPendingEffective), now)
}

func (s *PostgresStore) ListObsolescenceDue(ctx context.Context, now time.Time) ([]*models.Document, error) {
	return s.listDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = $1 AND obsolescence_date <= $2
		ORDER BY family_key, version_major, version_minor`,
		string(models.StatusScheduledForObsolescence), now)
}

func (s *PostgresStore) ListReviewDue(ctx context.Context, now time.Time) ([]*models.Document, error) {
	return s.listDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = $1 AND next_review_date <= $2
		ORDER BY family_key, version_major, version_minor`,
		string(models.StatusEffective), now)
}

func (s *PostgresStore) ListFamilyKeys(ctx context.Context) ([]id.FamilyKey, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT DISTINCT family_key FROM documents ORDER BY family_key`)
	if err != nil {
		return nil, mapPgError(err, "list family keys")
	}
	defer rows.Close()
	var keys []id.FamilyKey
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan family key: %w", err)
		}
		keys = append(keys, id.FamilyKey(key))
	}
	return keys, rows.Err()
}

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.WorkflowInstance) error {
	// The partial unique index on (document_id) WHERE NOT is_terminated makes
	// this a check-and-insert; a duplicate surfaces as 23505.
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO workflows (id, document_id, type, current_assignee, due_date, is_terminated, created_at)
		VALUES ($1,$2,$3,$4,$5,false,$6)`,
		uuid.UUID(wf.ID), uuid.UUID(wf.DocumentID), string(wf.Type),
		nullActor(wf.CurrentAssignee), nullTime(wf.DueDate), wf.CreatedAt,
	)
	if err != nil {
		return mapPgError(err, "create workflow")
	}
	for _, event := range wf.History {
		if err := s.AppendHistory(ctx, wf.ID, event); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ActiveWorkflow(ctx context.Context, docID id.DocumentID) (*models.WorkflowInstance, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, document_id, type, current_assignee, due_date, is_terminated, created_at
		FROM workflows
		WHERE document_id = $1 AND NOT is_terminated`, uuid.UUID(docID))

	wf, err := scanWorkflow(row)
	if err != nil {
		return nil, err
	}
	history, err := s.loadHistory(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	wf.History = history
	return wf, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, workflowID id.WorkflowID, event models.HistoryEvent) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO workflow_history (workflow_id, kind, actor, occurred_at, comment, outcome)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		uuid.UUID(workflowID), string(event.Kind), event.Actor.String(),
		event.Timestamp, event.Comment, nullString(string(event.Outcome)),
	)
	if err != nil {
		return mapPgError(err, "append workflow history")
	}
	return nil
}

func (s *PostgresStore) TerminateWorkflow(ctx context.Context, workflowID id.WorkflowID) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE workflows SET is_terminated = true WHERE id = $1`, uuid.UUID(workflowID))
	if err != nil {
		return mapPgError(err, "terminate workflow")
	}
	return nil
}

func (s *PostgresStore) RejectionsByActor(ctx context.Context, docID id.DocumentID, wfType models.WorkflowType) ([]id.ActorID, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT DISTINCT h.actor
		FROM workflow_history h
		JOIN workflows w ON w.id = h.workflow_id
		WHERE w.document_id = $1 AND w.type = $2 AND h.kind = $3`,
		uuid.UUID(docID), string(wfType), string(models.HistoryRejected),
	)
	if err != nil {
		return nil, mapPgError(err, "list rejections")
	}
	defer rows.Close()
	var actors []id.ActorID
	for rows.Next() {
		var actor string
		if err := rows.Scan(&actor); err != nil {
			return nil, fmt.Errorf("scan rejection actor: %w", err)
		}
		actors = append(actors, id.ActorID(actor))
	}
	return actors, rows.Err()
}

func (s *PostgresStore) AddEdge(ctx context.Context, edge models.DependencyEdge) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO dependency_edges (from_document, to_document)
		VALUES ($1,$2)
		ON CONFLICT DO NOTHING`,
		uuid.UUID(edge.From), uuid.UUID(edge.To))
	if err != nil {
		return mapPgError(err, "add dependency edge")
	}
	return nil
}

func (s *PostgresStore) RemoveEdge(ctx context.Context, edge models.DependencyEdge) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`DELETE FROM dependency_edges WHERE from_document = $1 AND to_document = $2`,
		uuid.UUID(edge.From), uuid.UUID(edge.To))
	if err != nil {
		return mapPgError(err, "remove dependency edge")
	}
	return nil
}

func (s *PostgresStore) EdgesTo(ctx context.Context, targets []id.DocumentID) ([]models.DependencyEdge, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.String()
	}
	// idx_dependency_edges_to makes this the O(incident edges) lookup the
	// validator depends on.
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT from_document, to_document FROM dependency_edges WHERE to_document = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, mapPgError(err, "list incident edges")
	}
	defer rows.Close()
	var edges []models.DependencyEdge
	for rows.Next() {
		var from, to uuid.UUID
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("scan dependency edge: %w", err)
		}
		edges = append(edges, models.DependencyEdge{From: id.DocumentID(from), To: id.DocumentID(to)})
	}
	return edges, rows.Err()
}

func (s *PostgresStore) SaveReviewOutcome(ctx context.Context, outcome *models.ReviewOutcome) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO review_outcomes (document_id, reviewer, outcome, comment, next_review_date, spawned_version, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		uuid.UUID(outcome.DocumentID), outcome.Reviewer.String(), string(outcome.Outcome),
		outcome.Comment, nullTime(outcome.NextReviewDate), nullDocID(outcome.SpawnedVersion),
		outcome.CompletedAt,
	)
	if err != nil {
		return mapPgError(err, "save review outcome")
	}
	return nil
}

func (s *PostgresStore) ListReviewOutcomes(ctx context.Context, docID id.DocumentID) ([]*models.ReviewOutcome, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT document_id, reviewer, outcome, comment, next_review_date, spawned_version, completed_at
		FROM review_outcomes
		WHERE document_id = $1
		ORDER BY completed_at`, uuid.UUID(docID))
	if err != nil {
		return nil, mapPgError(err, "list review outcomes")
	}
	defer rows.Close()
	var outcomes []*models.ReviewOutcome
	for rows.Next() {
		var (
			o        models.ReviewOutcome
			docUUID  uuid.UUID
			reviewer string
			outcome  string
			nextDate sql.NullTime
			spawned  uuid.NullUUID
		)
		if err := rows.Scan(&docUUID, &reviewer, &outcome, &o.Comment, &nextDate, &spawned, &o.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan review outcome: %w", err)
		}
		o.DocumentID = id.DocumentID(docUUID)
		o.Reviewer = id.ActorID(reviewer)
		o.Outcome = models.ReviewOutcomeKind(outcome)
		o.NextReviewDate = timePtr(nextDate)
		if spawned.Valid {
			sv := id.DocumentID(spawned.UUID)
			o.SpawnedVersion = &sv
		}
		outcomes = append(outcomes, &o)
	}
	return outcomes, rows.Err()
}

func (s *PostgresStore) listDocuments(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err, "list documents")
	}
	defer rows.Close()
	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) loadHistory(ctx context.Context, workflowID id.WorkflowID) ([]models.HistoryEvent, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT kind, actor, occurred_at, comment, outcome
		FROM workflow_history
		WHERE workflow_id = $1
		ORDER BY occurred_at, id`, uuid.UUID(workflowID))
	if err != nil {
		return nil, mapPgError(err, "load workflow history")
	}
	defer rows.Close()
	var history []models.HistoryEvent
	for rows.Next() {
		var (
			event   models.HistoryEvent
			kind    string
			actor   string
			outcome sql.NullString
		)
		if err := rows.Scan(&kind, &actor, &event.Timestamp, &event.Comment, &outcome); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		event.Kind = models.HistoryEventKind(kind)
		event.Actor = id.ActorID(actor)
		event.Outcome = models.ReviewOutcomeKind(outcome.String)
		history = append(history, event)
	}
	return history, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc         models.Document
		docUUID     uuid.UUID
		familyKey   string
		status      string
		author      sql.NullString
		reviewer    sql.NullString
		approver    sql.NullString
		effective   sql.NullTime
		obsolete    sql.NullTime
		nextReview  sql.NullTime
		lastReview  sql.NullTime
		freqSeconds int64
		supersedes  uuid.NullUUID
	)
	err := row.Scan(&docUUID, &familyKey, &doc.Version.Major, &doc.Version.Minor,
		&doc.Title, &status, &author, &reviewer, &approver,
		&effective, &obsolete, &nextReview, &lastReview,
		&freqSeconds, &supersedes, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, mapPgError(err, "scan document")
	}
	doc.ID = id.DocumentID(docUUID)
	doc.FamilyKey = id.FamilyKey(familyKey)
	doc.Status = models.Status(status)
	doc.Author = id.ActorID(author.String)
	doc.Reviewer = id.ActorID(reviewer.String)
	doc.Approver = id.ActorID(approver.String)
	doc.EffectiveDate = timePtr(effective)
	doc.ObsolescenceDate = timePtr(obsolete)
	doc.NextReviewDate = timePtr(nextReview)
	doc.LastReviewDate = timePtr(lastReview)
	doc.ReviewFrequency = time.Duration(freqSeconds) * time.Second
	if supersedes.Valid {
		sv := id.DocumentID(supersedes.UUID)
		doc.Supersedes = &sv
	}
	return &doc, nil
}

func scanWorkflow(row rowScanner) (*models.WorkflowInstance, error) {
	var (
		wf       models.WorkflowInstance
		wfUUID   uuid.UUID
		docUUID  uuid.UUID
		wfType   string
		assignee sql.NullString
		dueDate  sql.NullTime
	)
	err := row.Scan(&wfUUID, &docUUID, &wfType, &assignee, &dueDate, &wf.IsTerminated, &wf.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no active workflow for document")
		}
		return nil, mapPgError(err, "scan workflow")
	}
	wf.ID = id.WorkflowID(wfUUID)
	wf.DocumentID = id.DocumentID(docUUID)
	wf.Type = models.WorkflowType(wfType)
	wf.CurrentAssignee = id.ActorID(assignee.String)
	wf.DueDate = timePtr(dueDate)
	return &wf, nil
}

// mapPgError converts driver-level failures into the shared taxonomy.
// Unique violations and serialization failures are retryable conflicts.
func mapPgError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return dErrors.Wrap(err, dErrors.CodeConflict, op+": already exists")
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return dErrors.Wrap(err, dErrors.CodeConflict, op+": transaction conflict, retry")
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullActor(actor id.ActorID) sql.NullString {
	return nullString(actor.String())
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullDocID(docID *id.DocumentID) uuid.NullUUID {
	if docID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*docID), Valid: true}
}
