// Package redemption spends stars: redeeming them for catalogue rewards,
// and buying more of them with pocket money at the family conversion
// rate. Both flows reserve the cost at request time so a pending request
// can never overspend; rejection refunds through the ledger, never by
// editing history.
package redemption

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dje115/choreblimey-sub001/internal/database"
	"github.com/dje115/choreblimey-sub001/internal/errs"
	"github.com/dje115/choreblimey-sub001/internal/ledger"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/store"
)

type Workflow struct {
	db     *sql.DB
	ledger *ledger.Ledger
	logger *slog.Logger
}

func New(db *sql.DB, l *ledger.Ledger, logger *slog.Logger) *Workflow {
	return &Workflow{db: db, ledger: l, logger: logger}
}

// RequestRedemption debits the reward's star cost and records a pending
// redemption in one transaction. The cost is copied onto the redemption
// row so a later price change cannot skew the refund.
func (w *Workflow) RequestRedemption(ctx context.Context, familyID, childID, rewardID int64) (*model.Redemption, error) {
	var red *model.Redemption
	err := database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		var title string
		var starCost, active int
		err := tx.QueryRow(
			`SELECT title, star_cost, active FROM rewards WHERE id = ? AND family_id = ?`, rewardID, familyID,
		).Scan(&title, &starCost, &active)
		if err == sql.ErrNoRows {
			return errs.NotFound("reward %d not found", rewardID)
		}
		if err != nil {
			return errs.Storage("load reward", err)
		}
		if active == 0 {
			return errs.Validation("reward %q is no longer available", title)
		}
		if starCost <= 0 {
			return errs.Validation("reward %q has no star cost", title)
		}

		result, err := tx.Exec(
			`INSERT INTO redemptions (family_id, child_id, reward_id, star_cost) VALUES (?, ?, ?, ?)`,
			familyID, childID, rewardID, starCost,
		)
		if err != nil {
			return errs.Storage("insert redemption", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return errs.Storage("last insert id", err)
		}

		if _, err := w.ledger.DebitTx(tx, ledger.Entry{
			FamilyID:       familyID,
			ChildID:        childID,
			Stars:          starCost,
			Reason:         model.ReasonRedemption,
			ReferenceID:    fmt.Sprintf("redemption:%d", id),
			IdempotencyKey: fmt.Sprintf("redemption:%d", id),
		}, false); err != nil {
			return err
		}

		red, err = getRedemptionTx(tx, familyID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("redemption requested", "family_id", familyID, "child_id", childID,
		"reward_id", rewardID, "star_cost", red.StarCost)
	return red, nil
}

// FulfillRedemption marks a pending redemption fulfilled. The stars were
// already taken at request time, so this is a status change only.
func (w *Workflow) FulfillRedemption(ctx context.Context, familyID, redemptionID, processorID int64) (*model.Redemption, error) {
	now := time.Now().UTC()

	var red *model.Redemption
	err := database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		var err error
		red, err = getRedemptionTx(tx, familyID, redemptionID)
		if err != nil {
			return err
		}
		if err := requireParent(tx, familyID, processorID); err != nil {
			return err
		}
		if red.Status != model.RedemptionPending {
			return errs.Conflict("redemption is already %s", red.Status)
		}

		if _, err := tx.Exec(
			`UPDATE redemptions SET status = 'fulfilled', processed_at = ?, processed_by = ? WHERE id = ?`,
			now, processorID, red.ID,
		); err != nil {
			return errs.Storage("fulfill redemption", err)
		}

		red, err = getRedemptionTx(tx, familyID, red.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return red, nil
}

// RejectRedemption refunds the reserved stars and marks the redemption
// rejected, atomically. The refund is a fresh credit entry; the original
// debit stays in the log.
func (w *Workflow) RejectRedemption(ctx context.Context, familyID, redemptionID, processorID int64) (*model.Redemption, error) {
	now := time.Now().UTC()

	var red *model.Redemption
	err := database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		var err error
		red, err = getRedemptionTx(tx, familyID, redemptionID)
		if err != nil {
			return err
		}
		if err := requireParent(tx, familyID, processorID); err != nil {
			return err
		}
		if red.Status != model.RedemptionPending {
			return errs.Conflict("redemption is already %s", red.Status)
		}

		if _, err := tx.Exec(
			`UPDATE redemptions SET status = 'rejected', processed_at = ?, processed_by = ? WHERE id = ?`,
			now, processorID, red.ID,
		); err != nil {
			return errs.Storage("reject redemption", err)
		}

		if _, err := w.ledger.CreditTx(tx, ledger.Entry{
			FamilyID:       familyID,
			ChildID:        red.ChildID,
			Stars:          red.StarCost,
			Reason:         model.ReasonRedemptionRefund,
			ReferenceID:    fmt.Sprintf("redemption:%d", red.ID),
			IdempotencyKey: fmt.Sprintf("redemption-refund:%d", red.ID),
		}); err != nil {
			return err
		}

		red, err = getRedemptionTx(tx, familyID, red.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return red, nil
}

// ListRedemptions returns a family's redemptions newest-first, optionally
// filtered by status.
func (w *Workflow) ListRedemptions(ctx context.Context, familyID int64, status model.RedemptionStatus) ([]model.Redemption, error) {
	query := `SELECT ` + redemptionCols + ` FROM redemptions WHERE family_id = ?`
	args := []any{familyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY requested_at DESC, id DESC`

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage("list redemptions", err)
	}
	defer rows.Close()

	var reds []model.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, errs.Storage("scan redemption", err)
		}
		reds = append(reds, *r)
	}
	return reds, rows.Err()
}

// RequestStarPurchase converts money into stars at the family conversion
// rate: the money is debited and the stars credited immediately, in one
// transaction with the pending purchase row. Approval is bookkeeping;
// rejection reverses both sides.
func (w *Workflow) RequestStarPurchase(ctx context.Context, familyID, childID int64, stars int) (*model.StarPurchase, error) {
	if stars <= 0 {
		return nil, errs.Validation("star count must be positive")
	}

	var p *model.StarPurchase
	err := database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		settings, err := store.GetSettingsTx(tx, familyID)
		if err != nil {
			return errs.Storage("load settings", err)
		}
		if settings == nil {
			return errs.NotFound("family %d not found", familyID)
		}
		cost := stars * settings.ConversionRatePence

		result, err := tx.Exec(
			`INSERT INTO star_purchases (family_id, child_id, stars, cost_pence) VALUES (?, ?, ?, ?)`,
			familyID, childID, stars, cost,
		)
		if err != nil {
			return errs.Storage("insert star purchase", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return errs.Storage("last insert id", err)
		}

		if _, err := w.ledger.DebitTx(tx, ledger.Entry{
			FamilyID:       familyID,
			ChildID:        childID,
			MoneyPence:     cost,
			Reason:         model.ReasonStarPurchase,
			ReferenceID:    fmt.Sprintf("star-purchase:%d", id),
			IdempotencyKey: fmt.Sprintf("star-purchase-debit:%d", id),
		}, false); err != nil {
			return err
		}
		if _, err := w.ledger.CreditTx(tx, ledger.Entry{
			FamilyID:       familyID,
			ChildID:        childID,
			Stars:          stars,
			Reason:         model.ReasonStarPurchase,
			ReferenceID:    fmt.Sprintf("star-purchase:%d", id),
			IdempotencyKey: fmt.Sprintf("star-purchase-credit:%d", id),
		}); err != nil {
			return err
		}

		p, err = getPurchaseTx(tx, familyID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("star purchase requested", "family_id", familyID, "child_id", childID,
		"stars", stars, "cost_pence", p.CostPence)
	return p, nil
}

// ApproveStarPurchase confirms a pending purchase. The exchange already
// happened at request time, so this only records who signed off.
func (w *Workflow) ApproveStarPurchase(ctx context.Context, familyID, purchaseID, processorID int64) (*model.StarPurchase, error) {
	now := time.Now().UTC()

	var p *model.StarPurchase
	err := database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		var err error
		p, err = getPurchaseTx(tx, familyID, purchaseID)
		if err != nil {
			return err
		}
		if err := requireParent(tx, familyID, processorID); err != nil {
			return err
		}
		if p.Status != model.StarPurchasePending {
			return errs.Conflict("star purchase is already %s", p.Status)
		}

		if _, err := tx.Exec(
			`UPDATE star_purchases SET status = 'approved', processed_at = ?, processed_by = ? WHERE id = ?`,
			now, processorID, p.ID,
		); err != nil {
			return errs.Storage("approve star purchase", err)
		}

		p, err = getPurchaseTx(tx, familyID, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RejectStarPurchase undoes the exchange: money comes back, stars go
// back. The star debit fails with InsufficientFunds if the child has
// already spent them, and then the whole rejection rolls back so the
// purchase stays pending.
func (w *Workflow) RejectStarPurchase(ctx context.Context, familyID, purchaseID, processorID int64) (*model.StarPurchase, error) {
	now := time.Now().UTC()

	var p *model.StarPurchase
	err := database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		var err error
		p, err = getPurchaseTx(tx, familyID, purchaseID)
		if err != nil {
			return err
		}
		if err := requireParent(tx, familyID, processorID); err != nil {
			return err
		}
		if p.Status != model.StarPurchasePending {
			return errs.Conflict("star purchase is already %s", p.Status)
		}

		if _, err := tx.Exec(
			`UPDATE star_purchases SET status = 'rejected', processed_at = ?, processed_by = ? WHERE id = ?`,
			now, processorID, p.ID,
		); err != nil {
			return errs.Storage("reject star purchase", err)
		}

		if _, err := w.ledger.DebitTx(tx, ledger.Entry{
			FamilyID:       familyID,
			ChildID:        p.ChildID,
			Stars:          p.Stars,
			Reason:         model.ReasonStarPurchaseRefund,
			ReferenceID:    fmt.Sprintf("star-purchase:%d", p.ID),
			IdempotencyKey: fmt.Sprintf("star-purchase-refund-stars:%d", p.ID),
		}, false); err != nil {
			return err
		}
		if _, err := w.ledger.CreditTx(tx, ledger.Entry{
			FamilyID:       familyID,
			ChildID:        p.ChildID,
			MoneyPence:     p.CostPence,
			Reason:         model.ReasonStarPurchaseRefund,
			ReferenceID:    fmt.Sprintf("star-purchase:%d", p.ID),
			IdempotencyKey: fmt.Sprintf("star-purchase-refund-money:%d", p.ID),
		}); err != nil {
			return err
		}

		p, err = getPurchaseTx(tx, familyID, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListStarPurchases returns a family's star purchases newest-first,
// optionally filtered by status.
func (w *Workflow) ListStarPurchases(ctx context.Context, familyID int64, status model.StarPurchaseStatus) ([]model.StarPurchase, error) {
	query := `SELECT ` + purchaseCols + ` FROM star_purchases WHERE family_id = ?`
	args := []any{familyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY requested_at DESC, id DESC`

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage("list star purchases", err)
	}
	defer rows.Close()

	var purchases []model.StarPurchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, errs.Storage("scan star purchase", err)
		}
		purchases = append(purchases, *p)
	}
	return purchases, rows.Err()
}

const redemptionCols = `id, family_id, child_id, reward_id, star_cost, status, requested_at, processed_at, processed_by`

func scanRedemption(scanner interface{ Scan(...any) error }) (*model.Redemption, error) {
	var r model.Redemption
	var processedAt sql.NullTime
	var processedBy sql.NullInt64

	err := scanner.Scan(&r.ID, &r.FamilyID, &r.ChildID, &r.RewardID, &r.StarCost, &r.Status, &r.RequestedAt, &processedAt, &processedBy)
	if err != nil {
		return nil, err
	}

	if processedAt.Valid {
		t := processedAt.Time
		r.ProcessedAt = &t
	}
	if processedBy.Valid {
		r.ProcessedBy = &processedBy.Int64
	}
	return &r, nil
}

func getRedemptionTx(tx *sql.Tx, familyID, id int64) (*model.Redemption, error) {
	row := tx.QueryRow(`SELECT `+redemptionCols+` FROM redemptions WHERE id = ? AND family_id = ?`, id, familyID)
	r, err := scanRedemption(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("redemption %d not found", id)
	}
	if err != nil {
		return nil, errs.Storage("get redemption", err)
	}
	return r, nil
}

const purchaseCols = `id, family_id, child_id, stars, cost_pence, status, requested_at, processed_at, processed_by`

func scanPurchase(scanner interface{ Scan(...any) error }) (*model.StarPurchase, error) {
	var p model.StarPurchase
	var processedAt sql.NullTime
	var processedBy sql.NullInt64

	err := scanner.Scan(&p.ID, &p.FamilyID, &p.ChildID, &p.Stars, &p.CostPence, &p.Status, &p.RequestedAt, &processedAt, &processedBy)
	if err != nil {
		return nil, err
	}

	if processedAt.Valid {
		t := processedAt.Time
		p.ProcessedAt = &t
	}
	if processedBy.Valid {
		p.ProcessedBy = &processedBy.Int64
	}
	return &p, nil
}

func getPurchaseTx(tx *sql.Tx, familyID, id int64) (*model.StarPurchase, error) {
	row := tx.QueryRow(`SELECT `+purchaseCols+` FROM star_purchases WHERE id = ? AND family_id = ?`, id, familyID)
	p, err := scanPurchase(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("star purchase %d not found", id)
	}
	if err != nil {
		return nil, errs.Storage("get star purchase", err)
	}
	return p, nil
}

func requireParent(tx *sql.Tx, familyID, processorID int64) error {
	var role string
	err := tx.QueryRow(`SELECT role FROM members WHERE id = ? AND family_id = ?`, processorID, familyID).Scan(&role)
	if err == sql.ErrNoRows {
		return errs.NotFound("processor %d not found", processorID)
	}
	if err != nil {
		return errs.Storage("look up processor", err)
	}
	if role != string(model.RoleParent) {
		return errs.Unauthorized("only a parent may process requests")
	}
	return nil
}
