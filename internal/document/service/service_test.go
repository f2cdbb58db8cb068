package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"charter/internal/document/models"
	"charter/internal/document/store"
	"charter/internal/notify"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
	"charter/pkg/testutil"
)

const familyPOL = id.FamilyKey("POL-1")

var (
	alice = id.NewActor("alice", id.CapabilityAuthor)
	bob   = id.NewActor("bob", id.CapabilityReview)
	carol = id.NewActor("carol", id.CapabilityApprove)
	dave  = id.NewActor("dave", id.CapabilityObsolete, id.CapabilityApprove)
	admin = id.NewActor("admin", id.CapabilityAdministerAll)
)

type ServiceSuite struct {
	suite.Suite

	store  *store.InMemoryStore
	outbox *notify.InMemoryOutbox
	svc    *Service
	ctx    context.Context
	now    time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.outbox = notify.NewInMemoryOutbox()
	svc, err := New(s.store, s.outbox, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 365*24*time.Hour)
	s.Require().NoError(err)
	s.svc = svc
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = testutil.ContextAt(s.now)
}

// draft creates a fresh draft document authored by alice.
func (s *ServiceSuite) draft(key id.FamilyKey, title string) *models.Document {
	res, err := s.svc.CreateDraft(s.ctx, alice, key, title)
	s.Require().NoError(err)
	return res.Document
}

// toEffective walks a draft through review, approval and activation.
func (s *ServiceSuite) toEffective(doc *models.Document, effective time.Time) *models.Document {
	_, err := s.svc.SubmitForReview(s.ctx, alice, doc.ID, bob.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartReview(s.ctx, bob, doc.ID)
	s.Require().NoError(err)
	_, err = s.svc.CompleteReview(s.ctx, bob, doc.ID, true, "looks good")
	s.Require().NoError(err)
	_, err = s.svc.RouteForApproval(s.ctx, alice, doc.ID, carol.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartApproval(s.ctx, carol, doc.ID)
	s.Require().NoError(err)
	_, err = s.svc.CompleteApproval(s.ctx, carol, doc.ID, true, &effective, "")
	s.Require().NoError(err)
	res, err := s.svc.BecomeEffective(s.ctx, doc.ID)
	s.Require().NoError(err)
	return res.Document
}

func (s *ServiceSuite) TestCreateDraftFirstVersion() {
	doc := s.draft(familyPOL, "Quality Policy")

	s.Equal(models.StatusDraft, doc.Status)
	s.Equal(id.Version{Major: 1, Minor: 0}, doc.Version)
	s.Equal(alice.ID, doc.Author)
	s.Nil(doc.Supersedes)
}

func (s *ServiceSuite) TestCreateDraftRequiresAuthorCapability() {
	_, err := s.svc.CreateDraft(s.ctx, bob, familyPOL, "Quality Policy")

	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestRejectionReturnsToDraftAndClearsReviewer() {
	doc := s.draft(familyPOL, "Quality Policy")
	_, err := s.svc.SubmitForReview(s.ctx, alice, doc.ID, bob.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartReview(s.ctx, bob, doc.ID)
	s.Require().NoError(err)

	res, err := s.svc.CompleteReview(s.ctx, bob, doc.ID, false, "fix typo")

	s.Require().NoError(err)
	s.Equal(models.StatusDraft, res.Status)
	s.True(res.Document.Reviewer.IsNil(), "rejection must clear the reviewer assignment")

	wf, err := s.store.ActiveWorkflow(s.ctx, doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "rejected workflow must be terminated, got %v", wf)
}

func (s *ServiceSuite) TestResubmissionWarnsAboutPreviousRejector() {
	doc := s.draft(familyPOL, "Quality Policy")
	_, err := s.svc.SubmitForReview(s.ctx, alice, doc.ID, bob.ID)
	s.Require().NoError(err)
	_, err = s.svc.CompleteReview(s.ctx, bob, doc.ID, false, "fix typo")
	s.Require().NoError(err)

	res, err := s.svc.SubmitForReview(s.ctx, alice, doc.ID, bob.ID)

	s.Require().NoError(err)
	s.Require().Len(res.Warnings, 1)
	s.Equal(WarningPreviouslyRejected, res.Warnings[0].Code)
	s.Equal([]id.ActorID{bob.ID}, res.Warnings[0].Actors)
}

func (s *ServiceSuite) TestAuthorCannotReviewOwnDocument() {
	selfReviewer := id.NewActor("alice", id.CapabilityAuthor, id.CapabilityReview)
	res, err := s.svc.CreateDraft(s.ctx, selfReviewer, familyPOL, "Quality Policy")
	s.Require().NoError(err)

	_, err = s.svc.SubmitForReview(s.ctx, selfReviewer, res.Document.ID, selfReviewer.ID)

	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestApprovalRequiresEffectiveDate() {
	doc := s.draft(familyPOL, "Quality Policy")
	_, err := s.svc.SubmitForReview(s.ctx, alice, doc.ID, bob.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartReview(s.ctx, bob, doc.ID)
	s.Require().NoError(err)
	_, err = s.svc.CompleteReview(s.ctx, bob, doc.ID, true, "")
	s.Require().NoError(err)
	_, err = s.svc.RouteForApproval(s.ctx, alice, doc.ID, carol.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartApproval(s.ctx, carol, doc.ID)
	s.Require().NoError(err)

	_, err = s.svc.CompleteApproval(s.ctx, carol, doc.ID, true, nil, "")

	s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))

	stored, getErr := s.store.GetDocument(s.ctx, doc.ID)
	s.Require().NoError(getErr)
	s.Equal(models.StatusUnderApproval, stored.Status, "failed approval must not mutate the document")
}

func (s *ServiceSuite) TestApprovalWaitsPendingEffective() {
	doc := s.draft(familyPOL, "Quality Policy")
	effective := s.now.AddDate(0, 1, 0)
	_, err := s.svc.SubmitForReview(s.ctx, alice, doc.ID, bob.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartReview(s.ctx, bob, doc.ID)
	s.Require().NoError(err)
	_, err = s.svc.CompleteReview(s.ctx, bob, doc.ID, true, "")
	s.Require().NoError(err)
	_, err = s.svc.RouteForApproval(s.ctx, alice, doc.ID, carol.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartApproval(s.ctx, carol, doc.ID)
	s.Require().NoError(err)

	res, err := s.svc.CompleteApproval(s.ctx, carol, doc.ID, true, &effective, "approved")

	s.Require().NoError(err)
	s.Equal(models.StatusApprovedPendingEffective, res.Status)
	s.Require().NotNil(res.Document.EffectiveDate)
	s.True(res.Document.EffectiveDate.Equal(effective))
}

func (s *ServiceSuite) TestSecondPendingEffectiveBlocked() {
	v1 := s.draft(familyPOL, "Quality Policy")
	s.advanceToPendingEffective(v1, s.now.AddDate(0, 1, 0))
	v2 := s.draft(familyPOL, "Quality Policy")

	_, err := s.svc.SubmitForReview(s.ctx, alice, v2.ID, bob.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartReview(s.ctx, bob, v2.ID)
	s.Require().NoError(err)
	_, err = s.svc.CompleteReview(s.ctx, bob, v2.ID, true, "")
	s.Require().NoError(err)
	_, err = s.svc.RouteForApproval(s.ctx, alice, v2.ID, carol.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartApproval(s.ctx, carol, v2.ID)
	s.Require().NoError(err)
	effective := s.now.AddDate(0, 2, 0)

	_, err = s.svc.CompleteApproval(s.ctx, carol, v2.ID, true, &effective, "")

	s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed),
		"a second approved-pending-effective version in the family must be refused")
}

// advanceToPendingEffective stops just short of activation.
func (s *ServiceSuite) advanceToPendingEffective(doc *models.Document, effective time.Time) {
	_, err := s.svc.SubmitForReview(s.ctx, alice, doc.ID, bob.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartReview(s.ctx, bob, doc.ID)
	s.Require().NoError(err)
	_, err = s.svc.CompleteReview(s.ctx, bob, doc.ID, true, "")
	s.Require().NoError(err)
	_, err = s.svc.RouteForApproval(s.ctx, alice, doc.ID, carol.ID)
	s.Require().NoError(err)
	_, err = s.svc.StartApproval(s.ctx, carol, doc.ID)
	s.Require().NoError(err)
	_, err = s.svc.CompleteApproval(s.ctx, carol, doc.ID, true, &effective, "")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestActivationSupersedesPriorEffective() {
	v1 := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)
	s.Equal(models.StatusEffective, v1.Status)

	v2 := s.draft(familyPOL, "Quality Policy")
	s.Equal(id.Version{Major: 1, Minor: 1}, v2.Version)
	v2 = s.toEffective(v2, s.now.AddDate(0, 1, 0))

	s.Equal(models.StatusEffective, v2.Status)
	s.Require().NotNil(v2.Supersedes)
	s.Equal(v1.ID, *v2.Supersedes)

	prior, err := s.store.GetDocument(s.ctx, v1.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSuperseded, prior.Status,
		"prior effective version must be superseded in the same operation")
}

func (s *ServiceSuite) TestActivationSetsNextReviewDate() {
	doc := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)

	s.Require().NotNil(doc.NextReviewDate)
	s.True(doc.NextReviewDate.After(s.now))
}

func (s *ServiceSuite) TestObsolescenceBlockedByActiveDependent() {
	v1 := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)
	v2 := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now.AddDate(0, 1, 0))

	sop := s.toEffective(s.draft(id.FamilyKey("SOP-9"), "Calibration SOP"), s.now)
	s.Require().NoError(s.store.AddEdge(s.ctx, models.DependencyEdge{From: sop.ID, To: v1.ID}))

	report, err := s.svc.PreviewObsolescence(s.ctx, v2.ID)
	s.Require().NoError(err)
	s.False(report.CanObsolete)
	s.Equal(1, report.AffectedVersions)
	s.Require().Len(report.Blocking, 1)
	s.Equal(v1.ID, report.Blocking[0].DocumentID,
		"a superseded family member with an active dependent still blocks")

	_, err = s.svc.ScheduleObsolescence(s.ctx, dave, v2.ID, s.now.AddDate(0, 3, 0), "retired product")
	s.Require().True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	var dErr *dErrors.Error
	s.Require().ErrorAs(err, &dErr)
	s.NotNil(dErr.Details, "blocked scheduling must carry the dependency report")
}

func (s *ServiceSuite) TestObsolescenceScheduleAndExecute() {
	doc := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)
	when := s.now.AddDate(0, 3, 0)

	res, err := s.svc.ScheduleObsolescence(s.ctx, dave, doc.ID, when, "retired product")
	s.Require().NoError(err)
	s.Equal(models.StatusScheduledForObsolescence, res.Status)
	s.Require().NotNil(res.Document.ObsolescenceDate)
	s.Require().Len(res.Intents, 1)
	s.Equal(notify.EventObsolescenceScheduled, res.Intents[0].EventType)

	res, err = s.svc.BecomeObsolete(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusObsolete, res.Status)
	s.Require().Len(res.Intents, 1)
	s.Equal(notify.EventDocumentObsoleted, res.Intents[0].EventType,
		"scheduling and execution are distinct notifiable events")
}

func (s *ServiceSuite) TestScheduleObsolescenceRequiresCapability() {
	doc := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)

	_, err := s.svc.ScheduleObsolescence(s.ctx, alice, doc.ID, s.now.AddDate(0, 1, 0), "")

	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestPeriodicReviewStillValid() {
	doc := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)
	_, err := s.svc.OpenPeriodicReview(s.ctx, admin, doc.ID)
	s.Require().NoError(err)

	res, err := s.svc.CompletePeriodicReview(s.ctx, alice, doc.ID, models.OutcomeStillValid, "all current", nil)

	s.Require().NoError(err)
	s.Equal(models.StatusEffective, res.Status)
	s.Require().NotNil(res.Document.LastReviewDate)

	family, err := s.store.ListFamily(s.ctx, familyPOL)
	s.Require().NoError(err)
	s.Len(family, 1, "STILL_VALID must not spawn a draft")

	outcomes, err := s.store.ListReviewOutcomes(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Require().Len(outcomes, 1)
	s.Equal(models.OutcomeStillValid, outcomes[0].Outcome)
	s.Nil(outcomes[0].SpawnedVersion)
}

func (s *ServiceSuite) TestPeriodicReviewSpawnsMinorDraft() {
	doc := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)
	_, err := s.svc.OpenPeriodicReview(s.ctx, admin, doc.ID)
	s.Require().NoError(err)

	res, err := s.svc.CompletePeriodicReview(s.ctx, alice, doc.ID, models.OutcomeNeedsMinorUpdates, "update refs", nil)

	s.Require().NoError(err)
	s.Equal(models.StatusEffective, res.Status, "reviewed document stays effective until the draft replaces it")

	family, err := s.store.ListFamily(s.ctx, familyPOL)
	s.Require().NoError(err)
	s.Require().Len(family, 2)

	spawned := family[len(family)-1]
	s.Equal(models.StatusDraft, spawned.Status)
	s.Equal(id.Version{Major: 1, Minor: 1}, spawned.Version)
	s.Require().NotNil(spawned.Supersedes)
	s.Equal(doc.ID, *spawned.Supersedes)
	s.Equal(doc.Author, spawned.Author)
}

func (s *ServiceSuite) TestPeriodicReviewSpawnsMajorDraft() {
	doc := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)
	_, err := s.svc.OpenPeriodicReview(s.ctx, admin, doc.ID)
	s.Require().NoError(err)

	_, err = s.svc.CompletePeriodicReview(s.ctx, alice, doc.ID, models.OutcomeNeedsMajorUpdates, "rewrite", nil)
	s.Require().NoError(err)

	family, err := s.store.ListFamily(s.ctx, familyPOL)
	s.Require().NoError(err)
	s.Require().Len(family, 2)
	s.Equal(id.Version{Major: 2, Minor: 0}, family[len(family)-1].Version,
		"a major rework bumps the major and resets the minor")
}

func (s *ServiceSuite) TestOpenPeriodicReviewIsIdempotentPerCycle() {
	doc := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)
	_, err := s.svc.OpenPeriodicReview(s.ctx, admin, doc.ID)
	s.Require().NoError(err)

	_, err = s.svc.OpenPeriodicReview(s.ctx, admin, doc.ID)

	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition),
		"a document already under periodic review cannot open a second cycle")
}

func (s *ServiceSuite) TestTerminateDraft() {
	doc := s.draft(familyPOL, "Quality Policy")

	res, err := s.svc.Terminate(s.ctx, alice, doc.ID, "abandoned")

	s.Require().NoError(err)
	s.Equal(models.StatusTerminated, res.Status)

	// Terminal states stay queryable for audit.
	stored, err := s.store.GetDocument(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusTerminated, stored.Status)
}

func (s *ServiceSuite) TestTerminateEffectiveRefused() {
	doc := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)

	_, err := s.svc.Terminate(s.ctx, alice, doc.ID, "")

	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestIntentsEnqueuedWithTransaction() {
	doc := s.draft(familyPOL, "Quality Policy")
	res, err := s.svc.SubmitForReview(s.ctx, alice, doc.ID, bob.ID)
	s.Require().NoError(err)

	s.Require().Len(res.Intents, 1)
	s.Equal(notify.EventSubmittedForReview, res.Intents[0].EventType)
	s.Equal([]id.ActorID{bob.ID}, res.Intents[0].Recipients)

	queued := s.outbox.All()
	s.Require().Len(queued, 1)
	s.Equal(res.Intents[0].ID, queued[0].ID)
}

func (s *ServiceSuite) TestFailedTransitionQueuesNothing() {
	doc := s.draft(familyPOL, "Quality Policy")

	_, err := s.svc.CompleteReview(s.ctx, bob, doc.ID, true, "")

	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	s.Empty(s.outbox.All())
}

func (s *ServiceSuite) TestLibraryListShowsOneVersionPerFamily() {
	s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)
	v2 := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now.AddDate(0, 1, 0))
	s.draft(id.FamilyKey("SOP-9"), "Calibration SOP")

	docs, err := s.svc.ListDocuments(s.ctx, admin, FilterLibrary)

	s.Require().NoError(err)
	s.Require().Len(docs, 2)
	s.Equal(v2.ID, docs[0].ID, "library shows the newest non-retired version")
}

func (s *ServiceSuite) TestSelfScopeHidesOtherActorsDocuments() {
	s.draft(familyPOL, "Quality Policy")
	outsider := id.NewActor("eve", id.CapabilityAuthor)

	docs, err := s.svc.ListDocuments(s.ctx, outsider, FilterAll)

	s.Require().NoError(err)
	s.Empty(docs)
}

func (s *ServiceSuite) TestFamilyHistoryNewestFirst() {
	v1 := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now)
	v2 := s.toEffective(s.draft(familyPOL, "Quality Policy"), s.now.AddDate(0, 1, 0))

	history, err := s.svc.FamilyHistory(s.ctx, admin, familyPOL)

	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(v2.ID, history[0].ID)
	s.Equal(v1.ID, history[1].ID)
}
