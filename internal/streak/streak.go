// Package streak tracks consecutive-day activity per (child, task) pair
// and family-wide, pays periodic bonuses, and applies escalating
// penalties for missed days. Activity is counted at submission time, not
// approval time. Days are calendar days in YYYY-MM-DD form.
package streak

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

const dayLayout = "2006-01-02"

// DayOf formats t as the calendar day streaks are keyed by.
func DayOf(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// SweepDay returns the day a sweep firing at now should evaluate: the
// previous UTC day. The current day is still in progress, so its misses
// are not final until the next run.
func SweepDay(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -1)
}

func parseDay(day string) (time.Time, error) {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return time.Time{}, errs.Validation("bad day %q: want YYYY-MM-DD", day)
	}
	return t, nil
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// missedDays counts the days after `from` up to and including `to` that
// carry no qualifying activity, excluding days covered by holiday mode.
// Holiday days freeze a streak rather than break it.
func missedDays(fs *model.FamilySettings, from, to time.Time) int {
	missed := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if !fs.HolidayCovers(d) {
			missed++
		}
	}
	return missed
}

type Calculator struct {
	db     *sql.DB
	ledger *ledger.Ledger
	logger *slog.Logger
}

func New(db *sql.DB, l *ledger.Ledger, logger *slog.Logger) *Calculator {
	return &Calculator{db: db, ledger: l, logger: logger}
}

// advance computes the streak counters after qualifying activity on day.
// Same-day activity is idempotent; a gap within the protection window
// preserves the count without incrementing it; a gap beyond protection
// disrupts the old streak and restarts at 1.
func advance(fs *model.FamilySettings, current, best int, lastDay, day string) (newCurrent, newBest int, disrupted bool, err error) {
	d, err := parseDay(day)
	if err != nil {
		return 0, 0, false, err
	}

	switch {
	case lastDay == "":
		newCurrent = 1
	case lastDay == day:
		newCurrent = current
	default:
		last, err := parseDay(lastDay)
		if err != nil {
			return 0, 0, false, err
		}
		if d.Before(last) {
			// Out-of-order activity cannot rewind a streak.
			newCurrent = current
			break
		}
		gap := missedDays(fs, last, d) - 1 // the day itself is active, not missed
		switch {
		case gap <= 0:
			newCurrent = current + 1
		case gap <= fs.StreakProtectionDays:
			newCurrent = current
		default:
			disrupted = true
			newCurrent = 1
		}
	}

	newBest = best
	if newCurrent > newBest {
		newBest = newCurrent
	}
	return newCurrent, newBest, disrupted, nil
}

// RecordActivity registers qualifying activity in its own transaction.
func (c *Calculator) RecordActivity(ctx context.Context, familyID, childID, taskID int64, day string) error {
	return database.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		return c.RecordActivityTx(tx, familyID, childID, taskID, day)
	})
}

// RecordActivityTx registers qualifying activity inside the caller's
// transaction; the completion workflow runs it atomically with the
// submission insert. During holiday mode streak counts are frozen, but
// the activity marker is still recorded so the sweep sees the day as
// covered.
func (c *Calculator) RecordActivityTx(tx *sql.Tx, familyID, childID, taskID int64, day string) error {
	fs, err := store.GetSettingsTx(tx, familyID)
	if err != nil {
		return errs.Storage("load settings", err)
	}
	if fs == nil {
		return errs.NotFound("family %d has no settings", familyID)
	}

	d, err := parseDay(day)
	if err != nil {
		return err
	}

	if !fs.HolidayCovers(d) {
		if err := c.advanceTaskStreak(tx, fs, familyID, childID, taskID, day); err != nil {
			return err
		}
		if err := c.advanceFamilyStreak(tx, fs, familyID, day); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO child_activity (family_id, child_id, last_active_day, misses) VALUES (?, ?, ?, 0)
		ON CONFLICT (family_id, child_id) DO UPDATE SET last_active_day = excluded.last_active_day, misses = 0`,
		familyID, childID, day,
	); err != nil {
		return errs.Storage("record child activity", err)
	}
	return nil
}

func (c *Calculator) advanceTaskStreak(tx *sql.Tx, fs *model.FamilySettings, familyID, childID, taskID int64, day string) error {
	var current, best int
	var lastDay string
	err := tx.QueryRow(
		`SELECT current, best, last_day FROM task_streaks WHERE child_id = ? AND task_id = ?`,
		childID, taskID,
	).Scan(&current, &best, &lastDay)
	if err != nil && err != sql.ErrNoRows {
		return errs.Storage("load task streak", err)
	}

	newCurrent, newBest, disrupted, err := advance(fs, current, best, lastDay, day)
	if err != nil {
		return err
	}

	var d int
	if disrupted {
		d = 1
	}
	if _, err := tx.Exec(
		`INSERT INTO task_streaks (family_id, child_id, task_id, current, best, last_day, disrupted) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (child_id, task_id) DO UPDATE SET current = excluded.current, best = excluded.best, last_day = excluded.last_day, disrupted = excluded.disrupted`,
		familyID, childID, taskID, newCurrent, newBest, day, d,
	); err != nil {
		return errs.Storage("save task streak", err)
	}
	return nil
}

func (c *Calculator) advanceFamilyStreak(tx *sql.Tx, fs *model.FamilySettings, familyID int64, day string) error {
	var current, best, lastBonus int
	var lastDay string
	err := tx.QueryRow(`SELECT current, best, last_day, last_bonus FROM family_streaks WHERE family_id = ?`, familyID).
		Scan(&current, &best, &lastDay, &lastBonus)
	if err == sql.ErrNoRows {
		current, best, lastBonus, lastDay = 0, 0, 0, ""
	} else if err != nil {
		return errs.Storage("load family streak", err)
	}

	newCurrent, newBest, disrupted, err := advance(fs, current, best, lastDay, day)
	if err != nil {
		return err
	}
	if disrupted {
		// A fresh run may legitimately re-earn earlier milestones.
		lastBonus = 0
	}

	if _, err := tx.Exec(
		`INSERT INTO family_streaks (family_id, current, best, last_day, last_bonus) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (family_id) DO UPDATE SET current = excluded.current, best = excluded.best, last_day = excluded.last_day, last_bonus = excluded.last_bonus`,
		familyID, newCurrent, newBest, day, lastBonus,
	); err != nil {
		return errs.Storage("save family streak", err)
	}
	return nil
}

// GetStats returns the child's streak view: the per-task streaks plus
// the highest current/best among them.
func (c *Calculator) GetStats(ctx context.Context, familyID, childID int64) (*model.StreakStats, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, family_id, child_id, task_id, current, best, last_day, disrupted
		FROM task_streaks WHERE family_id = ? AND child_id = ? ORDER BY task_id ASC`,
		familyID, childID,
	)
	if err != nil {
		return nil, errs.Storage("list task streaks", err)
	}
	defer rows.Close()

	stats := &model.StreakStats{ChildID: childID}
	for rows.Next() {
		var ts model.TaskStreak
		var disrupted int
		if err := rows.Scan(&ts.ID, &ts.FamilyID, &ts.ChildID, &ts.TaskID, &ts.Current, &ts.Best, &ts.LastDay, &disrupted); err != nil {
			return nil, errs.Storage("scan task streak", err)
		}
		ts.Disrupted = disrupted != 0
		stats.PerTask = append(stats.PerTask, ts)
		if ts.Current > stats.CurrentStreak {
			stats.CurrentStreak = ts.Current
		}
		if ts.Best > stats.BestStreak {
			stats.BestStreak = ts.Best
		}
	}
	return stats, rows.Err()
}

// FamilyStreak returns the family-wide aggregate streak.
func (c *Calculator) FamilyStreak(ctx context.Context, familyID int64) (*model.FamilyStreak, error) {
	var fs model.FamilyStreak
	err := c.db.QueryRowContext(ctx,
		`SELECT family_id, current, best, last_day FROM family_streaks WHERE family_id = ?`, familyID,
	).Scan(&fs.FamilyID, &fs.Current, &fs.Best, &fs.LastDay)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("family %d not found", familyID)
	}
	if err != nil {
		return nil, errs.Storage("read family streak", err)
	}
	return &fs, nil
}

// RunDailySweep walks one family for the given day: penalizes children
// with no qualifying activity who are outside protection and not on
// holiday, resets streaks broken beyond protection, and pays the family
// streak bonus when a milestone is due. Running the sweep twice for the
// same family and day is a no-op: a sweep_runs row guards the whole pass
// and every payout carries a deterministic idempotency key.
func (c *Calculator) RunDailySweep(ctx context.Context, familyID int64, today time.Time) error {
	day := DayOf(today)
	return database.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`INSERT OR IGNORE INTO sweep_runs (family_id, day) VALUES (?, ?)`, familyID, day)
		if err != nil {
			return errs.Storage("record sweep run", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return nil // already swept this day
		}

		fs, err := store.GetSettingsTx(tx, familyID)
		if err != nil {
			return errs.Storage("load settings", err)
		}
		if fs == nil {
			return errs.NotFound("family %d has no settings", familyID)
		}

		d, err := parseDay(day)
		if err != nil {
			return err
		}
		holiday := fs.HolidayCovers(d)

		if !holiday {
			if err := c.sweepMisses(tx, fs, familyID, day, d); err != nil {
				return err
			}
		}

		return c.sweepBonus(tx, fs, familyID, day)
	})
}

func (c *Calculator) sweepMisses(tx *sql.Tx, fs *model.FamilySettings, familyID int64, day string, d time.Time) error {
	children, err := listActiveChildren(tx, familyID)
	if err != nil {
		return err
	}

	for _, childID := range children {
		var lastActive string
		var misses int
		err := tx.QueryRow(
			`SELECT last_active_day, misses FROM child_activity WHERE family_id = ? AND child_id = ?`,
			familyID, childID,
		).Scan(&lastActive, &misses)
		if err == sql.ErrNoRows {
			continue // never active: no streak to protect, nothing to penalize
		}
		if err != nil {
			return errs.Storage("load child activity", err)
		}
		if lastActive == day {
			continue
		}

		last, err := parseDay(lastActive)
		if err != nil {
			return err
		}
		if missedDays(fs, last, d) <= fs.StreakProtectionDays {
			continue
		}

		misses++
		if _, err := tx.Exec(
			`UPDATE child_activity SET misses = ? WHERE family_id = ? AND child_id = ?`,
			misses, familyID, childID,
		); err != nil {
			return errs.Storage("update miss count", err)
		}

		if fs.PenaltyEnabled {
			if err := c.applyPenalty(tx, fs, familyID, childID, day, misses); err != nil {
				return err
			}
		}

		// The child missed beyond protection, so every running streak of
		// theirs is broken; the disrupted flag marks the old run before
		// replacement.
		if _, err := tx.Exec(
			`UPDATE task_streaks SET current = 0, disrupted = 1
			WHERE family_id = ? AND child_id = ? AND current > 0`,
			familyID, childID,
		); err != nil {
			return errs.Storage("reset task streaks", err)
		}
	}

	return c.resetFamilyStreak(tx, fs, familyID, d)
}

// resetFamilyStreak breaks the family-wide streak when no child has been
// active beyond protection, counting missed days the same way the
// per-child check does: holiday days freeze the streak, not break it.
func (c *Calculator) resetFamilyStreak(tx *sql.Tx, fs *model.FamilySettings, familyID int64, d time.Time) error {
	var current int
	var lastDay string
	err := tx.QueryRow(`SELECT current, last_day FROM family_streaks WHERE family_id = ?`, familyID).
		Scan(&current, &lastDay)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errs.Storage("read family streak", err)
	}
	if current == 0 || lastDay == "" || lastDay == DayOf(d) {
		return nil
	}

	last, err := parseDay(lastDay)
	if err != nil {
		return err
	}
	if missedDays(fs, last, d) <= fs.StreakProtectionDays {
		return nil
	}

	if _, err := tx.Exec(`UPDATE family_streaks SET current = 0 WHERE family_id = ?`, familyID); err != nil {
		return errs.Storage("reset family streak", err)
	}
	return nil
}

// applyPenalty debits the escalating penalty for the child's nth
// consecutive miss, clamped so the balance never crosses the family
// floor.
func (c *Calculator) applyPenalty(tx *sql.Tx, fs *model.FamilySettings, familyID, childID int64, day string, miss int) error {
	pence, stars := fs.PenaltyAmounts(miss)
	if pence == 0 && stars == 0 {
		return nil
	}

	availPence, availStars, err := c.ledger.Available(tx, familyID, childID)
	if err != nil {
		return err
	}
	if pence > availPence {
		pence = availPence
	}
	if stars > availStars {
		stars = availStars
	}
	if pence == 0 && stars == 0 {
		return nil
	}

	_, err = c.ledger.DebitTx(tx, ledger.Entry{
		FamilyID:       familyID,
		ChildID:        childID,
		MoneyPence:     pence,
		Stars:          stars,
		Reason:         model.ReasonStreakPenalty,
		ReferenceID:    fmt.Sprintf("sweep:%s", day),
		IdempotencyKey: fmt.Sprintf("streak-penalty:%d:%d:%s", familyID, childID, day),
	}, true)
	if err != nil {
		return err
	}
	c.logger.Info("streak penalty applied", "family_id", familyID, "child_id", childID, "day", day, "miss", miss, "pence", pence, "stars", stars)
	return nil
}

// sweepBonus pays the family streak bonus when the aggregate streak sits
// on a milestone. Bonuses accrue even during holiday (the streak is
// frozen, not lost); the deterministic idempotency key makes each
// milestone pay at most once per child.
func (c *Calculator) sweepBonus(tx *sql.Tx, fs *model.FamilySettings, familyID int64, day string) error {
	if !fs.BonusEnabled || fs.BonusIntervalDays <= 0 {
		return nil
	}

	var current, lastBonus int
	err := tx.QueryRow(`SELECT current, last_bonus FROM family_streaks WHERE family_id = ?`, familyID).Scan(&current, &lastBonus)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errs.Storage("read family streak", err)
	}
	if current == 0 || current%fs.BonusIntervalDays != 0 {
		return nil
	}
	if current == lastBonus {
		return nil // this milestone already paid (e.g. streak frozen by holiday)
	}

	money, stars := 0, 0
	switch fs.BonusMode {
	case model.BonusMoney:
		money = fs.BonusMoneyPence
	case model.BonusStars:
		stars = fs.BonusStars
	default:
		money, stars = fs.BonusMoneyPence, fs.BonusStars
	}
	if money == 0 && stars == 0 {
		return nil
	}

	children, err := listActiveChildren(tx, familyID)
	if err != nil {
		return err
	}
	for _, childID := range children {
		_, err := c.ledger.CreditTx(tx, ledger.Entry{
			FamilyID:       familyID,
			ChildID:        childID,
			MoneyPence:     money,
			Stars:          stars,
			Reason:         model.ReasonStreakBonus,
			ReferenceID:    fmt.Sprintf("family-streak:%d", current),
			IdempotencyKey: fmt.Sprintf("streak-bonus:%d:%d:%d:%s", familyID, current, childID, day),
		})
		if err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`UPDATE family_streaks SET last_bonus = ? WHERE family_id = ?`, current, familyID); err != nil {
		return errs.Storage("record bonus milestone", err)
	}
	c.logger.Info("streak bonus milestone", "family_id", familyID, "day", day, "milestone", current)
	return nil
}

func listActiveChildren(tx *sql.Tx, familyID int64) ([]int64, error) {
	rows, err := tx.Query(
		`SELECT id FROM members WHERE family_id = ? AND role = 'child' AND active = 1 ORDER BY id ASC`,
		familyID,
	)
	if err != nil {
		return nil, errs.Storage("list children", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Storage("scan child id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
