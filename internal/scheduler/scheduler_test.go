package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"charter/internal/document/models"
	doc "charter/internal/document/service"
	"charter/internal/document/store"
	"charter/internal/notify"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
	"charter/pkg/requestcontext"
)

var (
	author   = id.NewActor("alice", id.CapabilityAuthor)
	reviewer = id.NewActor("bob", id.CapabilityReview)
	approver = id.NewActor("carol", id.CapabilityApprove)
)

type SchedulerSuite struct {
	suite.Suite

	store  *store.InMemoryStore
	svc    *doc.Service
	driver *Driver
	now    time.Time
	ctx    context.Context
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.store = store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := doc.New(s.store, notify.NewInMemoryOutbox(), logger, nil, 365*24*time.Hour)
	s.Require().NoError(err)
	s.svc = svc
	s.driver = New(svc, s.store, nil, logger, nil, time.Hour)
	s.now = time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now.AddDate(0, -1, 0))
}

// pendingEffective creates a document approved with the given effective date.
func (s *SchedulerSuite) pendingEffective(key id.FamilyKey, effective time.Time) id.DocumentID {
	res, err := s.svc.CreateDraft(s.ctx, author, key, "Quality Policy")
	s.Require().NoError(err)
	docID := res.Document.ID
	_, err = s.svc.SubmitForReview(s.ctx, author, docID, reviewer.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartReview(s.ctx, reviewer, docID)
	s.Require().NoError(err)
	_, err = s.svc.CompleteReview(s.ctx, reviewer, docID, true, "")
	s.Require().NoError(err)
	_, err = s.svc.RouteForApproval(s.ctx, author, docID, approver.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartApproval(s.ctx, approver, docID)
	s.Require().NoError(err)
	_, err = s.svc.CompleteApproval(s.ctx, approver, docID, true, &effective, "")
	s.Require().NoError(err)
	return docID
}

func (s *SchedulerSuite) TestActivatesDueDocuments() {
	docID := s.pendingEffective("POL-1", s.now)

	summary, err := s.driver.Tick(context.Background(), s.now)

	s.Require().NoError(err)
	s.Equal(1, summary.ActivatedCount)
	s.Zero(summary.Failures)

	stored, err := s.store.GetDocument(context.Background(), docID)
	s.Require().NoError(err)
	s.Equal(models.StatusEffective, stored.Status)
}

func (s *SchedulerSuite) TestFutureDatesUntouched() {
	docID := s.pendingEffective("POL-1", s.now.AddDate(0, 1, 0))

	summary, err := s.driver.Tick(context.Background(), s.now)

	s.Require().NoError(err)
	s.Zero(summary.ActivatedCount)

	stored, err := s.store.GetDocument(context.Background(), docID)
	s.Require().NoError(err)
	s.Equal(models.StatusApprovedPendingEffective, stored.Status)
}

func (s *SchedulerSuite) TestTickIsIdempotent() {
	s.pendingEffective("POL-1", s.now)

	first, err := s.driver.Tick(context.Background(), s.now)
	s.Require().NoError(err)
	s.Equal(1, first.ActivatedCount)

	second, err := s.driver.Tick(context.Background(), s.now)
	s.Require().NoError(err)
	s.Zero(second.ActivatedCount, "a second tick on the same day must be a no-op")
	s.Zero(second.Failures)
}

func (s *SchedulerSuite) TestExecutesScheduledObsolescence() {
	docID := s.pendingEffective("POL-1", s.now.AddDate(0, -1, 0))
	_, err := s.driver.Tick(context.Background(), s.now.AddDate(0, -1, 0))
	s.Require().NoError(err)

	obsoleter := id.NewActor("dave", id.CapabilityObsolete)
	when := s.now
	_, err = s.svc.ScheduleObsolescence(s.ctx, obsoleter, docID, when, "retired product")
	s.Require().NoError(err)

	summary, err := s.driver.Tick(context.Background(), s.now)

	s.Require().NoError(err)
	s.Equal(1, summary.ObsoletedCount)

	stored, err := s.store.GetDocument(context.Background(), docID)
	s.Require().NoError(err)
	s.Equal(models.StatusObsolete, stored.Status)
}

func (s *SchedulerSuite) TestOpensDueReviews() {
	docID := s.pendingEffective("POL-1", s.now.AddDate(-1, 0, 0))
	_, err := s.driver.Tick(context.Background(), s.now.AddDate(-1, 0, 0))
	s.Require().NoError(err)

	// Default review frequency is one year, so the review comes due now.
	summary, err := s.driver.Tick(context.Background(), s.now.AddDate(0, 0, 1))

	s.Require().NoError(err)
	s.Equal(1, summary.ReviewsOpened)

	stored, err := s.store.GetDocument(context.Background(), docID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderPeriodicReview, stored.Status)

	wf, err := s.store.ActiveWorkflow(context.Background(), docID)
	s.Require().NoError(err)
	s.Equal(models.WorkflowPeriodicReview, wf.Type)
}

func (s *SchedulerSuite) TestFailureIsolatedPerDocument() {
	good := s.pendingEffective("POL-1", s.now)
	bad := s.pendingEffective("SOP-9", s.now)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	driver := New(&failingService{inner: s.svc, failOn: bad}, s.store, nil, logger, nil, time.Hour)

	summary, err := driver.Tick(context.Background(), s.now)

	s.Require().NoError(err)
	s.Equal(1, summary.ActivatedCount)
	s.Equal(1, summary.Failures, "one document failing must not stop the scan")

	activated, err := s.store.GetDocument(context.Background(), good)
	s.Require().NoError(err)
	s.Equal(models.StatusEffective, activated.Status)
}

// failingService injects a storage-style failure for one document.
type failingService struct {
	inner  Service
	failOn id.DocumentID
}

func (f *failingService) BecomeEffective(ctx context.Context, docID id.DocumentID) (*doc.Result, error) {
	if docID == f.failOn {
		return nil, dErrors.New(dErrors.CodeInternal, "simulated storage failure")
	}
	return f.inner.BecomeEffective(ctx, docID)
}

func (f *failingService) BecomeObsolete(ctx context.Context, docID id.DocumentID) (*doc.Result, error) {
	return f.inner.BecomeObsolete(ctx, docID)
}

func (f *failingService) OpenPeriodicReview(ctx context.Context, actor id.Actor, docID id.DocumentID) (*doc.Result, error) {
	return f.inner.OpenPeriodicReview(ctx, actor, docID)
}
