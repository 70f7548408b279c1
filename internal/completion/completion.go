// Package completion turns a child's claim of "I did it" into a ledger
// credit, gated by parental approval and — for bidding-enabled
// assignments — by the showdown champion. A completion moves exactly once
// from pending to approved or rejected; the ledger credit and the status
// change commit in one transaction.
package completion

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
	"github.com/dje115/choreblimey-sub001/internal/showdown"
	"github.com/dje115/choreblimey-sub001/internal/streak"
)

type Workflow struct {
	db      *sql.DB
	ledger  *ledger.Ledger
	bids    *showdown.Engine
	streaks *streak.Calculator
	logger  *slog.Logger
}

func New(db *sql.DB, l *ledger.Ledger, bids *showdown.Engine, streaks *streak.Calculator, logger *slog.Logger) *Workflow {
	return &Workflow{db: db, ledger: l, bids: bids, streaks: streaks, logger: logger}
}

// starReward is the base star award for a task: one star per 10p of base
// reward, never less than one. The champion of a bidding task earns
// double.
func starReward(baseRewardPence int) int {
	stars := baseRewardPence / 10
	if stars < 1 {
		stars = 1
	}
	return stars
}

// occurrenceStart returns the beginning of the recurrence window that
// contains now: the calendar day for daily tasks, the ISO week (Monday
// start) for weekly ones, and the beginning of time for one-offs.
func occurrenceStart(recurrence model.Recurrence, now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch recurrence {
	case model.RecurDaily:
		return day
	case model.RecurWeekly:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	default:
		return time.Time{}
	}
}

// Submit records a pending completion and, atomically with it, the
// child's streak activity for the day. Streaks count submission, not
// approval: a later rejection does not undo the day's activity.
func (w *Workflow) Submit(ctx context.Context, familyID, assignmentID, childID int64, note string) (*model.Completion, error) {
	now := time.Now().UTC()

	var comp *model.Completion
	err := database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		a, err := loadAssignment(tx, familyID, assignmentID)
		if err != nil {
			return err
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
			return errs.Validation("only active children may submit completions")
		}

		if a.BiddingEnabled {
			champion, err := w.bids.ChampionTx(tx, familyID, assignmentID)
			if err != nil {
				return err
			}
			if champion == nil || champion.ChildID != childID {
				return errs.Unauthorized("not the champion")
			}
		} else if a.ChildID != nil && *a.ChildID != childID {
			return errs.Unauthorized("assignment belongs to another child")
		}

		if err := w.checkOccurrence(tx, a, now); err != nil {
			return err
		}

		result, err := tx.Exec(
			`INSERT INTO completions (family_id, assignment_id, child_id, note, submitted_at) VALUES (?, ?, ?, ?, ?)`,
			familyID, assignmentID, childID, note, now,
		)
		if err != nil {
			return errs.Storage("insert completion", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return errs.Storage("last insert id", err)
		}

		if err := w.streaks.RecordActivityTx(tx, familyID, childID, a.TaskID, streak.DayOf(now)); err != nil {
			return err
		}

		comp, err = getTx(tx, familyID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return comp, nil
}

// checkOccurrence enforces at most one pending completion per occurrence
// window, and blocks one-time tasks that were already approved.
func (w *Workflow) checkOccurrence(tx *sql.Tx, a *assignmentInfo, now time.Time) error {
	since := occurrenceStart(a.Recurrence, now)

	var pending int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM completions WHERE assignment_id = ? AND status = 'pending' AND submitted_at >= ?`,
		a.ID, since,
	).Scan(&pending)
	if err != nil {
		return errs.Storage("count pending completions", err)
	}
	if pending > 0 {
		return errs.Conflict("a completion is already pending for this occurrence")
	}

	if a.Recurrence == model.RecurOnce {
		var approved int
		err := tx.QueryRow(
			`SELECT COUNT(*) FROM completions WHERE assignment_id = ? AND status = 'approved'`, a.ID,
		).Scan(&approved)
		if err != nil {
			return errs.Storage("count approved completions", err)
		}
		if approved > 0 {
			return errs.Conflict("task has already been completed")
		}
	}
	return nil
}

// ApproveResult reports what the approval paid out.
type ApproveResult struct {
	Completion   *model.Completion `json:"completion"`
	MoneyAwarded int               `json:"money_awarded"`
	StarsAwarded int               `json:"stars_awarded"`
}

// Approve resolves a pending completion and credits the reward in the
// same transaction. For a bidding assignment the money reward is the
// champion's winning bid and the star reward is doubled (the rivalry
// bonus); otherwise the task pays its base reward. Two concurrent
// approvals yield exactly one success and one Conflict.
func (w *Workflow) Approve(ctx context.Context, familyID, completionID, processorID int64) (*ApproveResult, error) {
	now := time.Now().UTC()

	var res *ApproveResult
	err := database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		comp, err := getTx(tx, familyID, completionID)
		if err != nil {
			return err
		}
		if err := requireParent(tx, familyID, processorID); err != nil {
			return err
		}
		if comp.Status != model.CompletionPending {
			return errs.Conflict("completion is already %s", comp.Status)
		}

		a, err := loadAssignment(tx, familyID, comp.AssignmentID)
		if err != nil {
			return err
		}

		money := a.BaseRewardPence
		stars := starReward(a.BaseRewardPence)
		rivalryStars := 0
		if a.BiddingEnabled {
			champion, err := w.bids.ChampionTx(tx, familyID, comp.AssignmentID)
			if err != nil {
				return err
			}
			if champion != nil {
				money = champion.AmountPence
				rivalryStars = stars
			}
		}

		if _, err := tx.Exec(
			`UPDATE completions SET status = 'approved', processed_at = ?, processed_by = ? WHERE id = ?`,
			now, processorID, comp.ID,
		); err != nil {
			return errs.Storage("approve completion", err)
		}

		if money > 0 || stars > 0 {
			_, err = w.ledger.CreditTx(tx, ledger.Entry{
				FamilyID:       familyID,
				ChildID:        comp.ChildID,
				MoneyPence:     money,
				Stars:          stars,
				Reason:         model.ReasonCompletionReward,
				ReferenceID:    fmt.Sprintf("completion:%d", comp.ID),
				IdempotencyKey: fmt.Sprintf("completion-reward:%d", comp.ID),
			})
			if err != nil {
				return err
			}
		}
		if rivalryStars > 0 {
			_, err = w.ledger.CreditTx(tx, ledger.Entry{
				FamilyID:       familyID,
				ChildID:        comp.ChildID,
				Stars:          rivalryStars,
				Reason:         model.ReasonRivalryBonus,
				ReferenceID:    fmt.Sprintf("completion:%d", comp.ID),
				IdempotencyKey: fmt.Sprintf("rivalry-bonus:%d", comp.ID),
			})
			if err != nil {
				return err
			}
		}

		comp, err = getTx(tx, familyID, comp.ID)
		if err != nil {
			return err
		}
		res = &ApproveResult{Completion: comp, MoneyAwarded: money, StarsAwarded: stars + rivalryStars}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("completion approved", "family_id", familyID, "completion_id", completionID,
		"money_pence", res.MoneyAwarded, "stars", res.StarsAwarded)
	return res, nil
}

// Reject resolves a pending completion with no ledger effect. The child
// submits a fresh completion to try again.
func (w *Workflow) Reject(ctx context.Context, familyID, completionID, processorID int64, reason string) (*model.Completion, error) {
	now := time.Now().UTC()

	var comp *model.Completion
	err := database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		var err error
		comp, err = getTx(tx, familyID, completionID)
		if err != nil {
			return err
		}
		if err := requireParent(tx, familyID, processorID); err != nil {
			return err
		}
		if comp.Status != model.CompletionPending {
			return errs.Conflict("completion is already %s", comp.Status)
		}

		note := comp.Note
		if reason != "" {
			note = reason
		}
		if _, err := tx.Exec(
			`UPDATE completions SET status = 'rejected', note = ?, processed_at = ?, processed_by = ? WHERE id = ?`,
			note, now, processorID, comp.ID,
		); err != nil {
			return errs.Storage("reject completion", err)
		}

		comp, err = getTx(tx, familyID, comp.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return comp, nil
}

// Get returns one completion, family-scoped.
func (w *Workflow) Get(ctx context.Context, familyID, completionID int64) (*model.Completion, error) {
	var comp *model.Completion
	err := database.WithTx(ctx, w.db, func(tx *sql.Tx) error {
		var err error
		comp, err = getTx(tx, familyID, completionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return comp, nil
}

// List returns a family's completions newest-first, optionally filtered
// by status.
func (w *Workflow) List(ctx context.Context, familyID int64, status model.CompletionStatus) ([]model.Completion, error) {
	query := `SELECT ` + completionCols + ` FROM completions WHERE family_id = ?`
	args := []any{familyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY submitted_at DESC, id DESC`

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage("list completions", err)
	}
	defer rows.Close()

	var comps []model.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, errs.Storage("scan completion", err)
		}
		comps = append(comps, *c)
	}
	return comps, rows.Err()
}

const completionCols = `id, family_id, assignment_id, child_id, status, note, submitted_at, processed_at, processed_by`

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.Completion, error) {
	var c model.Completion
	var processedAt sql.NullTime
	var processedBy sql.NullInt64

	err := scanner.Scan(&c.ID, &c.FamilyID, &c.AssignmentID, &c.ChildID, &c.Status, &c.Note, &c.SubmittedAt, &processedAt, &processedBy)
	if err != nil {
		return nil, err
	}

	if processedAt.Valid {
		t := processedAt.Time
		c.ProcessedAt = &t
	}
	if processedBy.Valid {
		c.ProcessedBy = &processedBy.Int64
	}
	return &c, nil
}

func getTx(tx *sql.Tx, familyID, id int64) (*model.Completion, error) {
	row := tx.QueryRow(`SELECT `+completionCols+` FROM completions WHERE id = ? AND family_id = ?`, id, familyID)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("completion %d not found", id)
	}
	if err != nil {
		return nil, errs.Storage("get completion", err)
	}
	return c, nil
}

// requireParent checks the processor is a parent of the family. A child
// can never resolve a completion, their own included.
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
		return errs.Unauthorized("only a parent may resolve completions")
	}
	return nil
}

type assignmentInfo struct {
	ID              int64
	TaskID          int64
	ChildID         *int64
	BiddingEnabled  bool
	TaskActive      bool
	BaseRewardPence int
	Recurrence      model.Recurrence
}

func loadAssignment(tx *sql.Tx, familyID, assignmentID int64) (*assignmentInfo, error) {
	var a assignmentInfo
	var childID sql.NullInt64
	var bidding, active int
	err := tx.QueryRow(
		`SELECT a.id, a.child_id, a.bidding_enabled, t.id, t.active, t.base_reward_pence, t.recurrence
		FROM assignments a
		JOIN tasks t ON t.id = a.task_id
		WHERE a.id = ? AND a.family_id = ?`,
		assignmentID, familyID,
	).Scan(&a.ID, &childID, &bidding, &a.TaskID, &active, &a.BaseRewardPence, &a.Recurrence)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("assignment %d not found", assignmentID)
	}
	if err != nil {
		return nil, errs.Storage("load assignment", err)
	}
	if childID.Valid {
		a.ChildID = &childID.Int64
	}
	a.BiddingEnabled = bidding != 0
	a.TaskActive = active != 0
	return &a, nil
}
