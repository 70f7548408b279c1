// Package ledger owns each child's money balance and star count as
// derived views over an append-only transaction log. Every credit or
// debit appends exactly one immutable wallet_transactions row and updates
// the cached wallet totals in the same transaction, so the cached balance
// is always equal to the signed sum of the log.
package ledger

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/dje115/choreblimey-sub001/internal/database"
	"github.com/dje115/choreblimey-sub001/internal/errs"
	"github.com/dje115/choreblimey-sub001/internal/model"
)

type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Entry describes one requested wallet mutation. MoneyPence and Stars are
// magnitudes (always >= 0); Credit adds them, Debit subtracts them.
type Entry struct {
	FamilyID   int64
	ChildID    int64
	MoneyPence int
	Stars      int
	Reason     model.Reason
	ReferenceID string

	// IdempotencyKey, when set, makes the mutation replay-safe: a second
	// call with the same key returns the original transaction untouched.
	IdempotencyKey string
}

func (e Entry) validate() error {
	if e.MoneyPence < 0 || e.Stars < 0 {
		return errs.Validation("amounts must not be negative")
	}
	if e.MoneyPence == 0 && e.Stars == 0 {
		return errs.Validation("nothing to apply")
	}
	if !e.Reason.Valid() {
		return errs.Validation("unknown transaction reason %q", e.Reason)
	}
	return nil
}

// Credit appends a positive transaction in its own write transaction.
func (l *Ledger) Credit(ctx context.Context, e Entry) (*model.WalletTransaction, error) {
	var txn *model.WalletTransaction
	err := database.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		txn, err = l.CreditTx(tx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// CreditTx appends a positive transaction inside the caller's write
// transaction, for workflows that must commit a credit together with a
// status change.
func (l *Ledger) CreditTx(tx *sql.Tx, e Entry) (*model.WalletTransaction, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return l.apply(tx, e, e.MoneyPence, e.Stars)
}

// Debit appends a negative transaction in its own write transaction.
// It fails with InsufficientFunds if the resulting balance or star count
// would drop below zero — or, when allowBelowFloor is set, below the
// family's configured floor.
func (l *Ledger) Debit(ctx context.Context, e Entry, allowBelowFloor bool) (*model.WalletTransaction, error) {
	var txn *model.WalletTransaction
	err := database.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		txn, err = l.DebitTx(tx, e, allowBelowFloor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// DebitTx is Debit inside the caller's write transaction.
func (l *Ledger) DebitTx(tx *sql.Tx, e Entry, allowBelowFloor bool) (*model.WalletTransaction, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	floorPence, floorStars := 0, 0
	if allowBelowFloor {
		var err error
		floorPence, floorStars, err = l.floors(tx, e.FamilyID)
		if err != nil {
			return nil, err
		}
	}

	w, err := l.walletForUpdate(tx, e.FamilyID, e.ChildID)
	if err != nil {
		return nil, err
	}
	if w.BalancePence-e.MoneyPence < floorPence {
		return nil, errs.InsufficientFunds("balance %dp is not enough to debit %dp (floor %dp)", w.BalancePence, e.MoneyPence, floorPence)
	}
	if w.Stars-e.Stars < floorStars {
		return nil, errs.InsufficientFunds("%d stars is not enough to debit %d stars (floor %d)", w.Stars, e.Stars, floorStars)
	}

	return l.apply(tx, e, -e.MoneyPence, -e.Stars)
}

// Available reports how much a penalty debit may take from the child
// without crossing the family floor. Used by the daily sweep to clamp
// escalating penalties.
func (l *Ledger) Available(tx *sql.Tx, familyID, childID int64) (pence, stars int, err error) {
	floorPence, floorStars, err := l.floors(tx, familyID)
	if err != nil {
		return 0, 0, err
	}
	w, err := l.walletForUpdate(tx, familyID, childID)
	if err != nil {
		return 0, 0, err
	}
	pence = w.BalancePence - floorPence
	stars = w.Stars - floorStars
	if pence < 0 {
		pence = 0
	}
	if stars < 0 {
		stars = 0
	}
	return pence, stars, nil
}

// apply writes the transaction row and moves the cached totals by the
// given signed deltas. The two writes share tx, so there is never a
// transaction without a matching balance change.
func (l *Ledger) apply(tx *sql.Tx, e Entry, moneyDelta, starDelta int) (*model.WalletTransaction, error) {
	if e.IdempotencyKey != "" {
		existing, err := l.byIdempotencyKey(tx, e.FamilyID, e.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	w, err := l.walletForUpdate(tx, e.FamilyID, e.ChildID)
	if err != nil {
		return nil, err
	}

	var key sql.NullString
	if e.IdempotencyKey != "" {
		key = sql.NullString{String: e.IdempotencyKey, Valid: true}
	}

	now := time.Now().UTC()
	result, err := tx.Exec(
		`INSERT INTO wallet_transactions (family_id, wallet_id, money_delta_pence, star_delta, reason, reference_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.FamilyID, w.ID, moneyDelta, starDelta, string(e.Reason), e.ReferenceID, key, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost an idempotency race; the earlier writer's row wins.
			existing, lookupErr := l.byIdempotencyKey(tx, e.FamilyID, e.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, errs.Storage("insert wallet transaction", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, errs.Storage("last insert id", err)
	}

	if _, err := tx.Exec(
		`UPDATE wallets SET balance_pence = balance_pence + ?, stars = stars + ?, updated_at = ? WHERE id = ?`,
		moneyDelta, starDelta, now, w.ID,
	); err != nil {
		return nil, errs.Storage("update wallet totals", err)
	}

	row := tx.QueryRow(`SELECT `+txnCols+` FROM wallet_transactions WHERE id = ?`, id)
	txn, err := scanTxn(row)
	if err != nil {
		return nil, errs.Storage("read back transaction", err)
	}
	return txn, nil
}

// walletForUpdate returns the child's wallet, creating it lazily on first
// use. The child must exist in the family, be a child, and be active.
func (l *Ledger) walletForUpdate(tx *sql.Tx, familyID, childID int64) (*model.Wallet, error) {
	var role string
	err := tx.QueryRow(`SELECT role FROM members WHERE id = ? AND family_id = ?`, childID, familyID).Scan(&role)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("child %d not found", childID)
	}
	if err != nil {
		return nil, errs.Storage("look up child", err)
	}
	if role != string(model.RoleChild) {
		return nil, errs.NotFound("member %d has no wallet", childID)
	}

	if _, err := tx.Exec(
		`INSERT INTO wallets (family_id, child_id) VALUES (?, ?) ON CONFLICT (family_id, child_id) DO NOTHING`,
		familyID, childID,
	); err != nil {
		return nil, errs.Storage("ensure wallet", err)
	}

	var w model.Wallet
	err = tx.QueryRow(
		`SELECT id, family_id, child_id, balance_pence, stars, created_at, updated_at FROM wallets WHERE family_id = ? AND child_id = ?`,
		familyID, childID,
	).Scan(&w.ID, &w.FamilyID, &w.ChildID, &w.BalancePence, &w.Stars, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, errs.Storage("read wallet", err)
	}
	return &w, nil
}

func (l *Ledger) floors(tx *sql.Tx, familyID int64) (floorPence, floorStars int, err error) {
	err = tx.QueryRow(`SELECT floor_pence, floor_stars FROM family_settings WHERE family_id = ?`, familyID).
		Scan(&floorPence, &floorStars)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, errs.Storage("read floor settings", err)
	}
	return floorPence, floorStars, nil
}

const txnCols = `id, family_id, wallet_id, money_delta_pence, star_delta, reason, reference_id, idempotency_key, created_at`

func scanTxn(scanner interface{ Scan(...any) error }) (*model.WalletTransaction, error) {
	var t model.WalletTransaction
	var key sql.NullString

	err := scanner.Scan(&t.ID, &t.FamilyID, &t.WalletID, &t.MoneyDeltaPence, &t.StarDelta, &t.Reason, &t.ReferenceID, &key, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	if key.Valid {
		t.IdempotencyKey = &key.String
	}
	return &t, nil
}

func (l *Ledger) byIdempotencyKey(tx *sql.Tx, familyID int64, key string) (*model.WalletTransaction, error) {
	row := tx.QueryRow(
		`SELECT `+txnCols+` FROM wallet_transactions WHERE family_id = ? AND idempotency_key = ?`,
		familyID, key,
	)
	txn, err := scanTxn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage("look up idempotency key", err)
	}
	return txn, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetBalance returns the child's current balance and stars. Reads the
// cached totals, which are exact: they move in the same transaction as
// every ledger entry.
func (l *Ledger) GetBalance(ctx context.Context, familyID, childID int64) (*model.Balance, error) {
	var role string
	err := l.db.QueryRowContext(ctx, `SELECT role FROM members WHERE id = ? AND family_id = ?`, childID, familyID).Scan(&role)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("child %d not found", childID)
	}
	if err != nil {
		return nil, errs.Storage("look up child", err)
	}
	if role != string(model.RoleChild) {
		return nil, errs.NotFound("member %d has no wallet", childID)
	}

	b := &model.Balance{ChildID: childID}
	err = l.db.QueryRowContext(ctx,
		`SELECT balance_pence, stars FROM wallets WHERE family_id = ? AND child_id = ?`,
		familyID, childID,
	).Scan(&b.BalancePence, &b.Stars)
	if err == sql.ErrNoRows {
		// No wallet yet: nothing has been credited.
		return b, nil
	}
	if err != nil {
		return nil, errs.Storage("read balance", err)
	}
	return b, nil
}

// ListTransactions returns the child's ledger entries newest-first,
// paginated by a timestamp cursor: pass the CreatedAt of the last entry
// of the previous page as before, or the zero time for the first page.
func (l *Ledger) ListTransactions(ctx context.Context, familyID, childID int64, limit int, before time.Time) ([]model.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Hour)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT t.id, t.family_id, t.wallet_id, t.money_delta_pence, t.star_delta, t.reason, t.reference_id, t.idempotency_key, t.created_at
		FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE t.family_id = ? AND w.child_id = ? AND t.created_at < ?
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ?`,
		familyID, childID, before.UTC(), limit,
	)
	if err != nil {
		return nil, errs.Storage("list transactions", err)
	}
	defer rows.Close()

	var txns []model.WalletTransaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, errs.Storage("scan transaction", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("iterate transactions", err)
	}
	return txns, nil
}

// Leaderboard returns every active child's stars and balance, most stars
// first. Children without a wallet yet appear with zeros.
func (l *Ledger) Leaderboard(ctx context.Context, familyID int64) ([]model.LeaderboardEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT m.id, m.name, COALESCE(w.stars, 0), COALESCE(w.balance_pence, 0)
		FROM members m
		LEFT JOIN wallets w ON w.child_id = m.id AND w.family_id = m.family_id
		WHERE m.family_id = ? AND m.role = 'child' AND m.active = 1
		ORDER BY COALESCE(w.stars, 0) DESC, m.name ASC`,
		familyID,
	)
	if err != nil {
		return nil, errs.Storage("list leaderboard", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.ChildID, &e.ChildName, &e.Stars, &e.BalancePence); err != nil {
			return nil, errs.Storage("scan leaderboard entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
