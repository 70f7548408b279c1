package completion

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/dje115/choreblimey-sub001/internal/database"
	"github.com/dje115/choreblimey-sub001/internal/errs"
	"github.com/dje115/choreblimey-sub001/internal/ledger"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/showdown"
	"github.com/dje115/choreblimey-sub001/internal/store"
	"github.com/dje115/choreblimey-sub001/internal/streak"
)

type fixture struct {
	workflow *Workflow
	wallet   *ledger.Ledger
	bids     *showdown.Engine
	db       *sql.DB
	familyID int64
	parent   int64
	alice    int64
	bob      int64
	taskID   int64
}

func setupCompletionTest(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	family, err := store.NewFamilyStore(db).Create("Test Family")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	members := store.NewMemberStore(db)
	parent, err := members.Create(family.ID, "Dad", model.RoleParent, "#fff", "🙂")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	alice, err := members.Create(family.ID, "Alice", model.RoleChild, "#fff", "🙂")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := members.Create(family.ID, "Bob", model.RoleChild, "#000", "😎")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	task, err := store.NewTaskStore(db).Create(family.ID, "Mow the lawn", "", 200, model.RecurDaily, false)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wallet := ledger.New(db, logger)
	bids := showdown.New(db, logger)
	streaks := streak.New(db, wallet, logger)

	return &fixture{
		workflow: New(db, wallet, bids, streaks, logger),
		wallet:   wallet,
		bids:     bids,
		db:       db,
		familyID: family.ID,
		parent:   parent.ID,
		alice:    alice.ID,
		bob:      bob.ID,
		taskID:   task.ID,
	}
}

func (f *fixture) assignment(t *testing.T, bidding bool) int64 {
	t.Helper()
	a, err := store.NewTaskStore(f.db).CreateAssignment(f.familyID, f.taskID, nil, bidding)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return a.ID
}

func TestApprovePaysBaseReward(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()
	assignmentID := f.assignment(t, false)

	comp, err := f.workflow.Submit(ctx, f.familyID, assignmentID, f.alice, "done")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if comp.Status != model.CompletionPending {
		t.Fatalf("status = %s, want pending", comp.Status)
	}

	res, err := f.workflow.Approve(ctx, f.familyID, comp.ID, f.parent)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.MoneyAwarded != 200 {
		t.Errorf("money = %d, want base reward 200", res.MoneyAwarded)
	}
	if res.StarsAwarded != 20 {
		t.Errorf("stars = %d, want 20 (one per 10p)", res.StarsAwarded)
	}

	b, _ := f.wallet.GetBalance(ctx, f.familyID, f.alice)
	if b.BalancePence != 200 || b.Stars != 20 {
		t.Errorf("balance = %d/%d, want 200/20", b.BalancePence, b.Stars)
	}
}

func TestApprovePaysChampionBidWithRivalryBonus(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()
	assignmentID := f.assignment(t, true)

	if _, err := f.bids.Compete(ctx, f.familyID, assignmentID, f.alice, 150); err != nil {
		t.Fatalf("alice bids: %v", err)
	}
	if _, err := f.bids.Compete(ctx, f.familyID, assignmentID, f.bob, 120); err != nil {
		t.Fatalf("bob underbids: %v", err)
	}

	comp, err := f.workflow.Submit(ctx, f.familyID, assignmentID, f.bob, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := f.workflow.Approve(ctx, f.familyID, comp.ID, f.parent)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.MoneyAwarded != 120 {
		t.Errorf("money = %d, want winning bid 120", res.MoneyAwarded)
	}
	if res.StarsAwarded != 40 {
		t.Errorf("stars = %d, want doubled 40", res.StarsAwarded)
	}

	b, _ := f.wallet.GetBalance(ctx, f.familyID, f.bob)
	if b.BalancePence != 120 || b.Stars != 40 {
		t.Errorf("balance = %d/%d, want 120/40", b.BalancePence, b.Stars)
	}
}

func TestOnlyChampionMaySubmit(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()
	assignmentID := f.assignment(t, true)

	if _, err := f.bids.Compete(ctx, f.familyID, assignmentID, f.bob, 120); err != nil {
		t.Fatalf("bob bids: %v", err)
	}

	if _, err := f.workflow.Submit(ctx, f.familyID, assignmentID, f.alice, ""); !errs.Is(err, errs.KindUnauthorized) {
		t.Fatalf("expected unauthorized for non-champion, got %v", err)
	}
}

func TestDoubleApproveConflicts(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()
	assignmentID := f.assignment(t, false)

	comp, err := f.workflow.Submit(ctx, f.familyID, assignmentID, f.alice, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.workflow.Approve(ctx, f.familyID, comp.ID, f.parent); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if _, err := f.workflow.Approve(ctx, f.familyID, comp.ID, f.parent); !errs.Is(err, errs.KindConflict) {
		t.Fatalf("expected conflict on second approve, got %v", err)
	}

	// Exactly one reward credit.
	b, _ := f.wallet.GetBalance(ctx, f.familyID, f.alice)
	if b.BalancePence != 200 {
		t.Errorf("balance = %d, want 200", b.BalancePence)
	}
}

func TestChildCannotApprove(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()
	assignmentID := f.assignment(t, false)

	comp, err := f.workflow.Submit(ctx, f.familyID, assignmentID, f.alice, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.workflow.Approve(ctx, f.familyID, comp.ID, f.bob); !errs.Is(err, errs.KindUnauthorized) {
		t.Fatalf("expected unauthorized for child approver, got %v", err)
	}
	if _, err := f.workflow.Approve(ctx, f.familyID, comp.ID, f.alice); !errs.Is(err, errs.KindUnauthorized) {
		t.Fatalf("expected unauthorized for self-approval, got %v", err)
	}
}

func TestRejectMovesNoMoneyAndAllowsRetry(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()
	assignmentID := f.assignment(t, false)

	comp, err := f.workflow.Submit(ctx, f.familyID, assignmentID, f.alice, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	rejected, err := f.workflow.Reject(ctx, f.familyID, comp.ID, f.parent, "not actually mowed")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.CompletionRejected {
		t.Fatalf("status = %s, want rejected", rejected.Status)
	}

	b, _ := f.wallet.GetBalance(ctx, f.familyID, f.alice)
	if b.BalancePence != 0 || b.Stars != 0 {
		t.Errorf("balance = %d/%d, want 0/0", b.BalancePence, b.Stars)
	}

	// Rejection frees the occurrence for a fresh attempt.
	if _, err := f.workflow.Submit(ctx, f.familyID, assignmentID, f.alice, "second try"); err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
}

func TestOnePendingPerOccurrence(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()
	assignmentID := f.assignment(t, false)

	if _, err := f.workflow.Submit(ctx, f.familyID, assignmentID, f.alice, ""); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := f.workflow.Submit(ctx, f.familyID, assignmentID, f.alice, ""); !errs.Is(err, errs.KindConflict) {
		t.Fatalf("expected conflict on second pending, got %v", err)
	}
}

func TestOnceTaskCompletesForever(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()

	task, err := store.NewTaskStore(f.db).Create(f.familyID, "Build the shed", "", 500, model.RecurOnce, false)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	a, err := store.NewTaskStore(f.db).CreateAssignment(f.familyID, task.ID, nil, false)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	comp, err := f.workflow.Submit(ctx, f.familyID, a.ID, f.alice, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.workflow.Approve(ctx, f.familyID, comp.ID, f.parent); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := f.workflow.Submit(ctx, f.familyID, a.ID, f.alice, "again"); !errs.Is(err, errs.KindConflict) {
		t.Fatalf("expected conflict resubmitting a completed one-off, got %v", err)
	}
}

func TestInactiveTaskRefusesSubmission(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()
	assignmentID := f.assignment(t, false)

	if _, err := f.db.Exec(`UPDATE tasks SET active = 0 WHERE id = ?`, f.taskID); err != nil {
		t.Fatalf("deactivate task: %v", err)
	}
	if _, err := f.workflow.Submit(ctx, f.familyID, assignmentID, f.alice, ""); !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPinnedAssignmentRejectsOtherChild(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()

	a, err := store.NewTaskStore(f.db).CreateAssignment(f.familyID, f.taskID, &f.alice, false)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	if _, err := f.workflow.Submit(ctx, f.familyID, a.ID, f.bob, ""); !errs.Is(err, errs.KindUnauthorized) {
		t.Fatalf("expected unauthorized for wrong child, got %v", err)
	}
	if _, err := f.workflow.Submit(ctx, f.familyID, a.ID, f.alice, ""); err != nil {
		t.Fatalf("assigned child submit: %v", err)
	}
}

func TestTinyRewardStillEarnsOneStar(t *testing.T) {
	f := setupCompletionTest(t)
	ctx := context.Background()

	task, err := store.NewTaskStore(f.db).Create(f.familyID, "Feed the fish", "", 5, model.RecurDaily, false)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	a, err := store.NewTaskStore(f.db).CreateAssignment(f.familyID, task.ID, nil, false)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	comp, err := f.workflow.Submit(ctx, f.familyID, a.ID, f.alice, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := f.workflow.Approve(ctx, f.familyID, comp.ID, f.parent)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.StarsAwarded != 1 {
		t.Errorf("stars = %d, want minimum 1", res.StarsAwarded)
	}
}
