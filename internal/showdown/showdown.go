// Package showdown runs the sibling-bidding competition on assignments
// that have bidding enabled. Children underbid each other for the
// exclusive right to complete the task: the champion is whoever holds
// the lowest bid, earliest bid winning ties. Bids are append-only; a
// demoted champion's bid stays in history.
package showdown

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/dje115/choreblimey-sub001/internal/database"
	"github.com/dje115/choreblimey-sub001/internal/errs"
	"github.com/dje115/choreblimey-sub001/internal/model"
)

type Engine struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// assignmentInfo is the slice of assignment+task state the engine needs.
type assignmentInfo struct {
	ID              int64
	BiddingEnabled  bool
	TaskID          int64
	TaskActive      bool
	BaseRewardPence int
	Recurrence      model.Recurrence
}

func loadAssignment(tx *sql.Tx, familyID, assignmentID int64) (*assignmentInfo, error) {
	var a assignmentInfo
	var bidding, active int
	err := tx.QueryRow(
		`SELECT a.id, a.bidding_enabled, t.id, t.active, t.base_reward_pence, t.recurrence
		FROM assignments a
		JOIN tasks t ON t.id = a.task_id
		WHERE a.id = ? AND a.family_id = ?`,
		assignmentID, familyID,
	).Scan(&a.ID, &bidding, &a.TaskID, &active, &a.BaseRewardPence, &a.Recurrence)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("assignment %d not found", assignmentID)
	}
	if err != nil {
		return nil, errs.Storage("load assignment", err)
	}
	a.BiddingEnabled = bidding != 0
	a.TaskActive = active != 0
	return &a, nil
}

// Compete places a bid for childID on the assignment. The first bid must
// be positive and no greater than the base reward; every later bid must
// be strictly lower than the current champion's. Equal bids never steal
// the championship, and the champion cannot bid against themselves.
func (e *Engine) Compete(ctx context.Context, familyID, assignmentID, childID int64, amountPence int) (*model.Bid, error) {
	var bid *model.Bid
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		a, err := loadAssignment(tx, familyID, assignmentID)
		if err != nil {
			return err
		}
		if !a.BiddingEnabled {
			return errs.Validation("bidding is not enabled on this assignment")
		}
		if !a.TaskActive {
			return errs.Validation("task is inactive")
		}

		var role string
		var active int
		err = tx.QueryRow(`SELECT role, active FROM members WHERE id = ? AND family_id = ?`, childID, familyID).Scan(&role, &active)
		if err == sql.ErrNoRows {
			return errs.NotFound("child %d not found", childID)
		}
		if err != nil {
			return errs.Storage("look up child", err)
		}
		if role != string(model.RoleChild) || active == 0 {
			return errs.Validation("only active children may bid")
		}

		if amountPence <= 0 {
			return errs.Validation("bid must be positive")
		}

		champion, err := championTx(tx, familyID, assignmentID)
		if err != nil {
			return err
		}
		if champion == nil {
			if amountPence > a.BaseRewardPence {
				return errs.Validation("bid exceeds base reward of %dp", a.BaseRewardPence)
			}
		} else {
			if champion.ChildID == childID {
				return errs.Validation("already champion")
			}
			if amountPence >= champion.AmountPence {
				return errs.Validation("bid must be lower than current champion (%dp)", champion.AmountPence)
			}
		}

		result, err := tx.Exec(
			`INSERT INTO bids (family_id, assignment_id, child_id, amount_pence) VALUES (?, ?, ?, ?)`,
			familyID, assignmentID, childID, amountPence,
		)
		if err != nil {
			return errs.Storage("insert bid", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return errs.Storage("last insert id", err)
		}

		row := tx.QueryRow(`SELECT `+bidCols+` FROM bids WHERE id = ?`, id)
		bid, err = scanBid(row)
		if err != nil {
			return errs.Storage("read back bid", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

const bidCols = `id, family_id, assignment_id, child_id, amount_pence, created_at`

func scanBid(scanner interface{ Scan(...any) error }) (*model.Bid, error) {
	var b model.Bid
	err := scanner.Scan(&b.ID, &b.FamilyID, &b.AssignmentID, &b.ChildID, &b.AmountPence, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// championTx returns the current lowest bid, ties broken by earliest
// timestamp, or nil when no bids exist. There is never more than one: the
// ordering is total (insertion id is the final tiebreak).
func championTx(tx *sql.Tx, familyID, assignmentID int64) (*model.Bid, error) {
	row := tx.QueryRow(
		`SELECT `+bidCols+` FROM bids WHERE family_id = ? AND assignment_id = ?
		ORDER BY amount_pence ASC, created_at ASC, id ASC LIMIT 1`,
		familyID, assignmentID,
	)
	b, err := scanBid(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage("find champion", err)
	}
	return b, nil
}

// ChampionTx exposes the in-transaction champion lookup to sibling
// workflows (completion submit and approve run it inside their own
// transactions).
func (e *Engine) ChampionTx(tx *sql.Tx, familyID, assignmentID int64) (*model.Bid, error) {
	return championTx(tx, familyID, assignmentID)
}

// Champion returns the current champion bid, or nil when no bids exist.
func (e *Engine) Champion(ctx context.Context, familyID, assignmentID int64) (*model.Bid, error) {
	var champion *model.Bid
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		if _, err := loadAssignment(tx, familyID, assignmentID); err != nil {
			return err
		}
		var err error
		champion, err = championTx(tx, familyID, assignmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return champion, nil
}

// ListBids returns every bid on the assignment ordered by amount
// ascending, then timestamp ascending — the first element, if any, is the
// champion.
func (e *Engine) ListBids(ctx context.Context, familyID, assignmentID int64) ([]model.Bid, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT `+bidCols+` FROM bids WHERE family_id = ? AND assignment_id = ?
		ORDER BY amount_pence ASC, created_at ASC, id ASC`,
		familyID, assignmentID,
	)
	if err != nil {
		return nil, errs.Storage("list bids", err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, errs.Storage("scan bid", err)
		}
		bids = append(bids, *b)
	}
	return bids, rows.Err()
}
