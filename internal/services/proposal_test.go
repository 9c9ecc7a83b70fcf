package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

type proposalFixture struct {
	db       *gorm.DB
	svc      *ProposalService
	notifier *recordingNotifier
	hod      *models.User
	mentor   *models.User
}

func newProposalFixture(t *testing.T) *proposalFixture {
	t.Helper()
	db := newTestDB(t)
	n := &recordingNotifier{}
	svc := NewProposalService(db, n)
	svc.SetClock(fixedClock(baseNow))
	return &proposalFixture{
		db:       db,
		svc:      svc,
		notifier: n,
		hod:      createUser(t, db, models.RoleHOD, "hod"),
		mentor:   createUser(t, db, models.RoleMentor, "mentor"),
	}
}

func proposalInput(name string, co, mentor *models.User) ProposalInput {
	in := ProposalInput{
		Name:       name,
		Background: "background of " + name,
		Objectives: "objectives of " + name,
	}
	if co != nil {
		in.CoStudentID = uintPtr(co.ID)
	}
	if mentor != nil {
		in.SuggestedMentorID = uintPtr(mentor.ID)
	}
	return in
}

func (f *proposalFixture) draft(t *testing.T, author *models.User, in ProposalInput) *models.Proposal {
	t.Helper()
	p, err := f.svc.SaveDraft(actorOf(author), &SaveDraftRequest{ProposalInput: in})
	if err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	return p
}

func (f *proposalFixture) submitted(t *testing.T, author *models.User, in ProposalInput) *models.Proposal {
	t.Helper()
	p := f.draft(t, author, in)
	p, err := f.svc.Submit(actorOf(author), p.ID, nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return p
}

// insertPending writes a Pending proposal directly, as a racing submission
// that slipped past the eligibility check would.
func insertPending(t *testing.T, db *gorm.DB, author uint, co *uint, name string) *models.Proposal {
	t.Helper()
	p := &models.Proposal{
		Name:        name,
		Background:  "b",
		Objectives:  "o",
		AuthorID:    author,
		CoStudentID: co,
	}
	p.SetStatus(models.ProposalStatusPending)
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("insert pending proposal: %v", err)
	}
	return p
}

func TestProposal_SaveDraftSnapshotsAndReuses(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")

	first := f.draft(t, s1, proposalInput("Robot", nil, nil))
	if first.Status != models.ProposalStatusDraft {
		t.Errorf("Status = %s, expected Draft", first.Status)
	}
	if first.AuthorSnapshot.IDNumber != s1.IDNumber || first.AuthorSnapshot.FirstName != "ada" {
		t.Errorf("author snapshot = %+v", first.AuthorSnapshot)
	}
	if first.PendingAuthorID != nil {
		t.Error("drafts must not hold pending keys")
	}

	second := f.draft(t, s1, proposalInput("Robot v2", nil, nil))
	if second.ID != first.ID {
		t.Errorf("save without id should reuse draft %d, got %d", first.ID, second.ID)
	}
	if second.Name != "Robot v2" {
		t.Errorf("Name = %q", second.Name)
	}
}

func TestProposal_SaveDraftValidation(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")

	foreign := &models.File{AuthorID: s2.ID, OriginalName: "x.pdf", StoredName: "x.pdf"}
	f.db.Create(foreign)

	tests := []struct {
		name  string
		actor Actor
		in    ProposalInput
		check func(error) bool
	}{
		{"mentor cannot author", actorOf(f.mentor), proposalInput("p", nil, nil), response.IsForbidden},
		{"author as own co-student", actorOf(s1), proposalInput("p", s1, nil), response.IsBadRequest},
		{"suggested mentor is a student", actorOf(s1), proposalInput("p", nil, s2), response.IsBadRequest},
		{"co-student is not a student", actorOf(s1), proposalInput("p", f.mentor, nil), response.IsConflict},
		{"missing co-student", actorOf(s1), ProposalInput{CoStudentID: uintPtr(9999)}, response.IsNotFound},
		{"foreign attachment", actorOf(s1), ProposalInput{AttachmentID: uintPtr(foreign.ID)}, response.IsForbidden},
		{"missing attachment", actorOf(s1), ProposalInput{AttachmentID: uintPtr(9999)}, response.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SaveDraft(tt.actor, &SaveDraftRequest{ProposalInput: tt.in})
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestProposal_SaveDraftLinksAttachment(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	file := &models.File{AuthorID: s1.ID, OriginalName: "pitch.pdf", StoredName: "a.pdf"}
	f.db.Create(file)

	in := proposalInput("Robot", nil, nil)
	in.AttachmentID = uintPtr(file.ID)
	p := f.draft(t, s1, in)

	var stored models.File
	f.db.First(&stored, file.ID)
	if stored.ProposalID == nil || *stored.ProposalID != p.ID {
		t.Errorf("file.ProposalID = %v, expected %d", stored.ProposalID, p.ID)
	}
}

func TestProposal_SubmitRequiresContent(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	p := f.draft(t, s1, ProposalInput{Name: "only a name"})

	_, err := f.svc.Submit(actorOf(s1), p.ID, nil)
	if !response.IsBadRequest(err) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if !strings.Contains(err.Error(), "background") || !strings.Contains(err.Error(), "objectives") {
		t.Errorf("error should list missing fields: %v", err)
	}
}

func TestProposal_SubmitByOtherStudentForbidden(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	p := f.draft(t, s1, proposalInput("Robot", nil, nil))

	if _, err := f.svc.Submit(actorOf(s2), p.ID, nil); !response.IsForbidden(err) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.Submit(actorOf(s1), 9999, nil); !response.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestProposal_SubmitNotifies(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	p := f.submitted(t, s1, proposalInput("Robot", nil, nil))

	if p.Status != models.ProposalStatusPending || p.SubmittedAt == nil {
		t.Fatalf("proposal = %s submitted_at=%v", p.Status, p.SubmittedAt)
	}
	pending := f.notifier.ofType(EventProposalPending)
	if len(pending) != 1 || pending[0].role != models.RoleHOD {
		t.Errorf("expected one proposal.pending to HODs, got %+v", pending)
	}
	if inv := f.notifier.ofType(EventCoStudentsInvalidated); len(inv) != 1 || !inv[0].all {
		t.Errorf("expected a co_students.invalidated broadcast, got %+v", inv)
	}
}

// Submission without any mentor succeeds; approval needs one.
func TestProposal_MentorResolvedOnlyAtApproval(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	p := f.submitted(t, s1, proposalInput("Solo", nil, nil))

	_, err := f.svc.Approve(actorOf(f.hod), p.ID, nil)
	if !response.IsBadRequest(err) {
		t.Fatalf("approval without mentor should be a validation error, got %v", err)
	}
	if got := reloadProposal(t, f.db, p.ID); got.Status != models.ProposalStatusPending {
		t.Errorf("failed approval changed status to %s", got.Status)
	}

	res, err := f.svc.Approve(actorOf(f.hod), p.ID, uintPtr(f.mentor.ID))
	if err != nil {
		t.Fatalf("Approve() with override error = %v", err)
	}
	if res.Project.MentorID != f.mentor.ID {
		t.Errorf("project mentor = %d, expected %d", res.Project.MentorID, f.mentor.ID)
	}
}

func TestProposal_SecondPendingByAuthorConflicts(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	f.submitted(t, s1, proposalInput("P1", nil, f.mentor))

	p2 := &models.Proposal{Name: "P2", Background: "b", Objectives: "o", AuthorID: s1.ID, Status: models.ProposalStatusDraft}
	f.db.Create(p2)

	_, err := f.svc.Submit(actorOf(s1), p2.ID, nil)
	if !response.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var appErr *response.AppError
	if errors.As(err, &appErr) && appErr.Reason != ReasonPendingProposal {
		t.Errorf("Reason = %q, expected %q", appErr.Reason, ReasonPendingProposal)
	}
	if got := reloadProposal(t, f.db, p2.ID); got.Status != models.ProposalStatusDraft {
		t.Errorf("P2 status = %s, expected Draft", got.Status)
	}
}

func TestProposal_CoStudentOnTwoPendingConflicts(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	s3 := createUser(t, f.db, models.RoleStudent, "cy")

	p1 := f.draft(t, s1, proposalInput("P1", s2, nil))
	p3 := f.draft(t, s3, proposalInput("P3", s2, nil))

	if _, err := f.svc.Submit(actorOf(s1), p1.ID, nil); err != nil {
		t.Fatalf("Submit(P1) error = %v", err)
	}
	if _, err := f.svc.Submit(actorOf(s3), p3.ID, nil); !response.IsConflict(err) {
		t.Errorf("co-student already pending should conflict, got %v", err)
	}
}

func TestProposal_PendingUniquenessEnforcedByStorage(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	s3 := createUser(t, f.db, models.RoleStudent, "cy")

	insertPending(t, f.db, s1.ID, uintPtr(s2.ID), "first")

	dupAuthor := &models.Proposal{Name: "dup", AuthorID: s1.ID}
	dupAuthor.SetStatus(models.ProposalStatusPending)
	if err := f.db.Create(dupAuthor).Error; !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("second pending by author: expected ErrDuplicatedKey, got %v", err)
	}

	dupCo := &models.Proposal{Name: "dup", AuthorID: s3.ID, CoStudentID: uintPtr(s2.ID)}
	dupCo.SetStatus(models.ProposalStatusPending)
	if err := f.db.Create(dupCo).Error; !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("second pending with co-student: expected ErrDuplicatedKey, got %v", err)
	}

	// Non-pending rows never collide.
	for i := 0; i < 2; i++ {
		d := &models.Proposal{Name: "draft", AuthorID: s1.ID, CoStudentID: uintPtr(s2.ID)}
		d.SetStatus(models.ProposalStatusDraft)
		if err := f.db.Create(d).Error; err != nil {
			t.Errorf("draft insert %d: %v", i, err)
		}
	}
}

func TestProposal_ApproveCreatesProjectAndAssignsStudents(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	p := f.submitted(t, s1, proposalInput("Robot", s2, f.mentor))

	res, err := f.svc.Approve(actorOf(f.hod), p.ID, nil)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	if res.Proposal.Status != models.ProposalStatusApproved {
		t.Errorf("proposal status = %s", res.Proposal.Status)
	}
	if res.Proposal.ReviewedByID == nil || *res.Proposal.ReviewedByID != f.hod.ID {
		t.Errorf("ReviewedByID = %v", res.Proposal.ReviewedByID)
	}
	if res.Proposal.PendingAuthorID != nil || res.Proposal.PendingCoStudentID != nil {
		t.Error("approved proposal must release its pending keys")
	}

	project := res.Project
	if project.ProposalID != p.ID || project.Name != "Robot" || project.Status != models.ProjectStatusProposal {
		t.Errorf("project = %+v", project)
	}
	if project.CoStudentID == nil || *project.CoStudentID != s2.ID {
		t.Errorf("CoStudentID = %v", project.CoStudentID)
	}
	snap := project.Snapshot
	if snap.StudentName != "ada Test" || snap.CoStudentName != "bob Test" || snap.MentorName != "mentor Test" {
		t.Errorf("snapshot names = %+v", snap)
	}
	if snap.ApprovedByID != f.hod.ID || !snap.ApprovedAt.Equal(baseNow) {
		t.Errorf("snapshot approval = %+v", snap)
	}

	for _, id := range []uint{s1.ID, s2.ID} {
		u := reloadUser(t, f.db, id)
		if u.ProjectID == nil || *u.ProjectID != project.ID {
			t.Errorf("user %d ProjectID = %v", id, u.ProjectID)
		}
		if u.MentorID == nil || *u.MentorID != f.mentor.ID {
			t.Errorf("user %d MentorID = %v", id, u.MentorID)
		}
	}

	approved := f.notifier.ofType(EventProposalApproved)
	if len(approved) != 1 || !containsID(approved[0].userIDs, s2.ID) || !containsID(approved[0].userIDs, f.mentor.ID) {
		t.Errorf("proposal.approved notifications = %+v", approved)
	}
}

func TestProposal_ProjectBackReferenceInvariant(t *testing.T) {
	f := newProposalFixture(t)
	for _, name := range []string{"a", "b", "c"} {
		s := createUser(t, f.db, models.RoleStudent, name)
		p := f.submitted(t, s, proposalInput(name, nil, f.mentor))
		if _, err := f.svc.Approve(actorOf(f.hod), p.ID, nil); err != nil {
			t.Fatalf("Approve(%s) error = %v", name, err)
		}
	}

	var projects []models.Project
	f.db.Find(&projects)
	if len(projects) != 3 {
		t.Fatalf("projects = %d, expected 3", len(projects))
	}
	for _, project := range projects {
		var refs []models.Proposal
		f.db.Where("id = ?", project.ProposalID).Find(&refs)
		if len(refs) != 1 || refs[0].Status != models.ProposalStatusApproved {
			t.Errorf("project %d back-reference = %+v", project.ID, refs)
		}
	}
}

func TestProposal_ApprovalCascadesRejection(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	s3 := createUser(t, f.db, models.RoleStudent, "cy")
	s4 := createUser(t, f.db, models.RoleStudent, "dee")

	p1 := f.submitted(t, s1, proposalInput("Winner", s2, f.mentor))
	// Racing submissions: s1 as co-student elsewhere, s2 as author elsewhere.
	p2 := insertPending(t, f.db, s3.ID, uintPtr(s1.ID), "Loser A")
	p3 := insertPending(t, f.db, s2.ID, nil, "Loser B")
	untouched := insertPending(t, f.db, s4.ID, nil, "Unrelated")

	res, err := f.svc.Approve(actorOf(f.hod), p1.ID, nil)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if len(res.AutoRejected) != 2 || !containsID(res.AutoRejected, p2.ID) || !containsID(res.AutoRejected, p3.ID) {
		t.Errorf("AutoRejected = %v", res.AutoRejected)
	}

	for _, id := range []uint{p2.ID, p3.ID} {
		got := reloadProposal(t, f.db, id)
		if got.Status != models.ProposalStatusRejected {
			t.Errorf("proposal %d status = %s", id, got.Status)
		}
		if got.InvalidatedByID == nil || *got.InvalidatedByID != p1.ID {
			t.Errorf("proposal %d InvalidatedByID = %v", id, got.InvalidatedByID)
		}
		if !strings.Contains(got.RejectionReason, "Winner") || !strings.Contains(got.RejectionReason, "#") {
			t.Errorf("proposal %d reason %q should reference the approval", id, got.RejectionReason)
		}
		if got.ReviewDecision != ReviewDecisionAutoRejected {
			t.Errorf("proposal %d decision = %s", id, got.ReviewDecision)
		}
		if got.PendingAuthorID != nil || got.PendingCoStudentID != nil {
			t.Errorf("proposal %d kept pending keys", id)
		}
	}
	if got := reloadProposal(t, f.db, untouched.ID); got.Status != models.ProposalStatusPending {
		t.Errorf("unrelated proposal status = %s", got.Status)
	}

	rejected := f.notifier.ofType(EventProposalRejected)
	if len(rejected) != 2 {
		t.Errorf("expected 2 proposal.rejected notifications, got %d", len(rejected))
	}
}

func TestProposal_ApproveRollsBackWhenStudentTaken(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	other := createUser(t, f.db, models.RoleStudent, "cy")
	p := f.submitted(t, s1, proposalInput("Robot", s2, f.mentor))

	// s2 is consumed by a competing approval after submission.
	taken := createProject(t, f.db, f.mentor, other)
	f.db.Model(&models.User{}).Where("id = ?", s2.ID).Update("project_id", taken.ID)

	_, err := f.svc.Approve(actorOf(f.hod), p.ID, nil)
	if !response.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	var count int64
	f.db.Model(&models.Project{}).Where("proposal_id = ?", p.ID).Count(&count)
	if count != 0 {
		t.Error("no project may survive a failed approval")
	}
	if got := reloadProposal(t, f.db, p.ID); got.Status != models.ProposalStatusPending {
		t.Errorf("proposal status = %s, expected Pending", got.Status)
	}
	if u := reloadUser(t, f.db, s1.ID); u.ProjectID != nil {
		t.Error("author must stay unassigned")
	}
	if len(f.notifier.ofType(EventProposalApproved)) != 0 {
		t.Error("no notification after a failed approval")
	}
}

func TestProposal_ApprovePreconditions(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	p := f.submitted(t, s1, proposalInput("Robot", nil, f.mentor))
	draft := f.draft(t, s2, proposalInput("Draft", nil, f.mentor))

	if _, err := f.svc.Approve(actorOf(f.mentor), p.ID, nil); !response.IsForbidden(err) {
		t.Errorf("mentor approval should be forbidden, got %v", err)
	}
	if _, err := f.svc.Approve(actorOf(f.hod), draft.ID, nil); !response.IsConflict(err) {
		t.Errorf("approving a draft should conflict, got %v", err)
	}
	if _, err := f.svc.Approve(actorOf(f.hod), p.ID, uintPtr(s2.ID)); !response.IsBadRequest(err) {
		t.Errorf("student as mentor override should be rejected, got %v", err)
	}
	if _, err := f.svc.Approve(actorOf(f.hod), 9999, nil); !response.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := f.svc.Approve(actorOf(f.hod), p.ID, nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if _, err := f.svc.Approve(actorOf(f.hod), p.ID, nil); !response.IsConflict(err) {
		t.Errorf("second approval should conflict, got %v", err)
	}
}

func TestProposal_RejectAndResubmit(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	p := f.submitted(t, s1, proposalInput("Robot", nil, f.mentor))

	if _, err := f.svc.Reject(actorOf(f.hod), p.ID, "   "); !response.IsBadRequest(err) {
		t.Errorf("blank reason should be refused, got %v", err)
	}
	if _, err := f.svc.Reject(actorOf(s1), p.ID, "nope"); !response.IsForbidden(err) {
		t.Errorf("student rejection should be forbidden, got %v", err)
	}

	rejected, err := f.svc.Reject(actorOf(f.hod), p.ID, " too broad ")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != models.ProposalStatusRejected || rejected.RejectionReason != "too broad" {
		t.Errorf("rejected = %s %q", rejected.Status, rejected.RejectionReason)
	}
	if rejected.ReviewDecision != ReviewDecisionRejected || rejected.ReviewedAt == nil {
		t.Errorf("review bookkeeping missing: %+v", rejected)
	}
	if _, err := f.svc.Reject(actorOf(f.hod), p.ID, "again"); !response.IsConflict(err) {
		t.Errorf("rejecting twice should conflict, got %v", err)
	}

	edited := proposalInput("Robot, narrowed", nil, f.mentor)
	again, err := f.svc.Submit(actorOf(s1), p.ID, &edited)
	if err != nil {
		t.Fatalf("resubmit error = %v", err)
	}
	if again.Status != models.ProposalStatusPending || again.Name != "Robot, narrowed" {
		t.Errorf("resubmitted = %s %q", again.Status, again.Name)
	}
	if again.RejectionReason != "" || again.ReviewedByID != nil {
		t.Error("resubmission should clear the previous review")
	}
}

func TestProposal_SnapshotSurvivesProfileEdits(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	p := f.submitted(t, s1, proposalInput("Robot", s2, f.mentor))

	f.db.Model(&models.User{}).Where("id = ?", s2.ID).Update("first_name", "Robert")

	got := reloadProposal(t, f.db, p.ID)
	if got.CoStudentSnapshot.FirstName != "bob" {
		t.Errorf("co-student snapshot followed the live record: %q", got.CoStudentSnapshot.FirstName)
	}
}

func TestProposal_ListScopes(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	other := createUser(t, f.db, models.RoleMentor, "other")

	f.submitted(t, s1, proposalInput("Pending one", nil, f.mentor))
	f.draft(t, s2, proposalInput("Draft one", nil, other))

	tests := []struct {
		name  string
		actor Actor
		want  int64
	}{
		{"author sees own", actorOf(s1), 1},
		{"hod skips drafts", actorOf(f.hod), 1},
		{"suggested mentor", actorOf(f.mentor), 1},
		{"student sees own draft", actorOf(s2), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.List(tt.actor, &ProposalListRequest{})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.want {
				t.Errorf("Total = %d, expected %d", res.Total, tt.want)
			}
		})
	}

	res, _ := f.svc.List(actorOf(f.hod), &ProposalListRequest{Status: models.ProposalStatusApproved})
	if res.Total != 0 {
		t.Errorf("status filter Total = %d", res.Total)
	}
}

func TestProposal_GetVisibility(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	d := f.draft(t, s1, proposalInput("Robot", nil, nil))

	if _, err := f.svc.Get(actorOf(s1), d.ID); err != nil {
		t.Errorf("author Get() error = %v", err)
	}
	if _, err := f.svc.Get(actorOf(s2), d.ID); !response.IsForbidden(err) {
		t.Errorf("stranger should be forbidden, got %v", err)
	}
	if _, err := f.svc.Get(actorOf(f.hod), d.ID); !response.IsForbidden(err) {
		t.Errorf("HOD should not see drafts, got %v", err)
	}
}

func TestProposal_PendingKeysClearedOnEveryExitFromPending(t *testing.T) {
	f := newProposalFixture(t)
	s1 := createUser(t, f.db, models.RoleStudent, "ada")
	s2 := createUser(t, f.db, models.RoleStudent, "bob")
	s3 := createUser(t, f.db, models.RoleStudent, "cy")
	s4 := createUser(t, f.db, models.RoleStudent, "dee")

	winner := f.submitted(t, s1, proposalInput("Winner", s2, f.mentor))
	insertPending(t, f.db, s3.ID, uintPtr(s1.ID), "Cascaded")
	rejected := insertPending(t, f.db, s4.ID, nil, "Rejected")

	if _, err := f.svc.Approve(actorOf(f.hod), winner.ID, nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if _, err := f.svc.Reject(actorOf(f.hod), rejected.ID, "out of scope"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	var stale int64
	f.db.Model(&models.Proposal{}).
		Where("status <> ? AND (pending_author_id IS NOT NULL OR pending_co_student_id IS NOT NULL)", models.ProposalStatusPending).
		Count(&stale)
	if stale != 0 {
		t.Errorf("%d non-pending proposals still hold pending keys", stale)
	}

	// Freed keys let the cascaded and rejected authors go pending again.
	insertPending(t, f.db, s3.ID, nil, "Second try")
	insertPending(t, f.db, s4.ID, nil, "Second try")
}
