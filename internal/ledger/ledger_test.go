package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dje115/choreblimey-sub001/internal/database"
	"github.com/dje115/choreblimey-sub001/internal/errs"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/store"
)

func setupLedgerTest(t *testing.T) (*Ledger, int64, int64) {
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
	child, err := store.NewMemberStore(db).Create(family.ID, "Alice", model.RoleChild, "#fff", "🙂")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, logger), family.ID, child.ID
}

func TestCreditAndBalance(t *testing.T) {
	l, familyID, childID := setupLedgerTest(t)
	ctx := context.Background()

	txn, err := l.Credit(ctx, Entry{
		FamilyID: familyID, ChildID: childID,
		MoneyPence: 150, Stars: 3,
		Reason: model.ReasonGift,
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if txn.MoneyDeltaPence != 150 || txn.StarDelta != 3 {
		t.Errorf("deltas = %d/%d, want 150/3", txn.MoneyDeltaPence, txn.StarDelta)
	}

	b, err := l.GetBalance(ctx, familyID, childID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if b.BalancePence != 150 || b.Stars != 3 {
		t.Errorf("balance = %d/%d, want 150/3", b.BalancePence, b.Stars)
	}
}

func TestBalanceIsSumOfTransactions(t *testing.T) {
	l, familyID, childID := setupLedgerTest(t)
	ctx := context.Background()

	amounts := []int{100, 250, 30}
	for _, a := range amounts {
		if _, err := l.Credit(ctx, Entry{
			FamilyID: familyID, ChildID: childID,
			MoneyPence: a, Reason: model.ReasonGift,
		}); err != nil {
			t.Fatalf("credit %d: %v", a, err)
		}
	}
	if _, err := l.Debit(ctx, Entry{
		FamilyID: familyID, ChildID: childID,
		MoneyPence: 80, Reason: model.ReasonPayout,
	}, false); err != nil {
		t.Fatalf("debit: %v", err)
	}

	b, err := l.GetBalance(ctx, familyID, childID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if b.BalancePence != 300 {
		t.Errorf("balance = %d, want 300", b.BalancePence)
	}

	txns, err := l.ListTransactions(ctx, familyID, childID, 0, time.Time{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	sum := 0
	for _, txn := range txns {
		sum += txn.MoneyDeltaPence
	}
	if sum != b.BalancePence {
		t.Errorf("transaction sum = %d, balance = %d", sum, b.BalancePence)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	l, familyID, childID := setupLedgerTest(t)
	ctx := context.Background()

	if _, err := l.Credit(ctx, Entry{
		FamilyID: familyID, ChildID: childID,
		MoneyPence: 50, Reason: model.ReasonGift,
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := l.Debit(ctx, Entry{
		FamilyID: familyID, ChildID: childID,
		MoneyPence: 60, Reason: model.ReasonPayout,
	}, false)
	if !errs.Is(err, errs.KindInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	// The failed debit must not appear in the log.
	b, _ := l.GetBalance(ctx, familyID, childID)
	if b.BalancePence != 50 {
		t.Errorf("balance = %d, want 50", b.BalancePence)
	}
}

func TestDebitStarsNeverNegative(t *testing.T) {
	l, familyID, childID := setupLedgerTest(t)
	ctx := context.Background()

	_, err := l.Debit(ctx, Entry{
		FamilyID: familyID, ChildID: childID,
		Stars: 1, Reason: model.ReasonRedemption,
	}, false)
	if !errs.Is(err, errs.KindInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestIdempotencyKeyReplay(t *testing.T) {
	l, familyID, childID := setupLedgerTest(t)
	ctx := context.Background()

	e := Entry{
		FamilyID: familyID, ChildID: childID,
		MoneyPence: 100, Reason: model.ReasonCompletionReward,
		IdempotencyKey: "completion-reward:42",
	}
	first, err := l.Credit(ctx, e)
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}
	second, err := l.Credit(ctx, e)
	if err != nil {
		t.Fatalf("replay credit: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("replay created a new transaction: %d vs %d", first.ID, second.ID)
	}

	b, _ := l.GetBalance(ctx, familyID, childID)
	if b.BalancePence != 100 {
		t.Errorf("balance = %d, want 100 (single application)", b.BalancePence)
	}
}

func TestValidationRejectsBadEntries(t *testing.T) {
	l, familyID, childID := setupLedgerTest(t)
	ctx := context.Background()

	cases := []Entry{
		{FamilyID: familyID, ChildID: childID, MoneyPence: -5, Reason: model.ReasonGift},
		{FamilyID: familyID, ChildID: childID, Reason: model.ReasonGift},
		{FamilyID: familyID, ChildID: childID, MoneyPence: 10, Reason: "made_up"},
	}
	for i, e := range cases {
		if _, err := l.Credit(ctx, e); !errs.Is(err, errs.KindValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestParentHasNoWallet(t *testing.T) {
	l, familyID, _ := setupLedgerTest(t)
	ctx := context.Background()

	// Member 1 is created by the fixture; make a parent explicitly.
	db := l.db
	res, err := db.Exec(`INSERT INTO members (family_id, name, role) VALUES (?, 'Dad', 'parent')`, familyID)
	if err != nil {
		t.Fatalf("insert parent: %v", err)
	}
	parentID, _ := res.LastInsertId()

	_, err = l.Credit(ctx, Entry{
		FamilyID: familyID, ChildID: parentID,
		MoneyPence: 10, Reason: model.ReasonGift,
	})
	if !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found for parent wallet, got %v", err)
	}
}

func TestCrossFamilyLookupFails(t *testing.T) {
	l, _, childID := setupLedgerTest(t)
	ctx := context.Background()

	_, err := l.GetBalance(ctx, 9999, childID)
	if !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found across families, got %v", err)
	}
}

func TestDebitRespectsFamilyFloor(t *testing.T) {
	l, familyID, childID := setupLedgerTest(t)
	ctx := context.Background()

	if _, err := l.db.Exec(`UPDATE family_settings SET floor_pence = 20 WHERE family_id = ?`, familyID); err != nil {
		t.Fatalf("set floor: %v", err)
	}
	if _, err := l.Credit(ctx, Entry{
		FamilyID: familyID, ChildID: childID,
		MoneyPence: 50, Reason: model.ReasonGift,
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// 50 - 40 would land at 10, below the 20p floor.
	_, err := l.Debit(ctx, Entry{
		FamilyID: familyID, ChildID: childID,
		MoneyPence: 40, Reason: model.ReasonStreakPenalty,
	}, true)
	if !errs.Is(err, errs.KindInsufficientFunds) {
		t.Fatalf("expected floor violation, got %v", err)
	}

	// 50 - 30 lands exactly at the floor, which is allowed.
	if _, err := l.Debit(ctx, Entry{
		FamilyID: familyID, ChildID: childID,
		MoneyPence: 30, Reason: model.ReasonStreakPenalty,
	}, true); err != nil {
		t.Fatalf("debit to floor: %v", err)
	}
}

func TestTransactionPagination(t *testing.T) {
	l, familyID, childID := setupLedgerTest(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.Credit(ctx, Entry{
			FamilyID: familyID, ChildID: childID,
			MoneyPence: 10 + i, Reason: model.ReasonGift,
		}); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond) // distinct created_at cursors
	}

	page, err := l.ListTransactions(ctx, familyID, childID, 3, time.Time{})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("first page len = %d, want 3", len(page))
	}
	for i := 1; i < len(page); i++ {
		if page[i].CreatedAt.After(page[i-1].CreatedAt) {
			t.Errorf("page not newest-first at %d", i)
		}
	}

	rest, err := l.ListTransactions(ctx, familyID, childID, 3, page[len(page)-1].CreatedAt)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("second page len = %d, want 2", len(rest))
	}
}

func TestLeaderboardOrdersByStars(t *testing.T) {
	l, familyID, childID := setupLedgerTest(t)
	ctx := context.Background()

	members := store.NewMemberStore(l.db)
	bob, err := members.Create(familyID, "Bob", model.RoleChild, "#000", "😎")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	if _, err := l.Credit(ctx, Entry{FamilyID: familyID, ChildID: childID, Stars: 2, Reason: model.ReasonGift}); err != nil {
		t.Fatalf("credit alice: %v", err)
	}
	if _, err := l.Credit(ctx, Entry{FamilyID: familyID, ChildID: bob.ID, Stars: 7, Reason: model.ReasonGift}); err != nil {
		t.Fatalf("credit bob: %v", err)
	}

	entries, err := l.Leaderboard(ctx, familyID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ChildID != bob.ID || entries[0].Stars != 7 {
		t.Errorf("leader = child %d with %d stars, want bob with 7", entries[0].ChildID, entries[0].Stars)
	}
}
