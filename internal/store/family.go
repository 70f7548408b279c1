package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dje115/choreblimey-sub001/internal/model"
)

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

// Create inserts a family together with its default settings and streak
// rows so every later lookup can assume they exist.
func (s *FamilyStore) Create(name string) (*model.Family, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`INSERT INTO families (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO family_settings (family_id) VALUES (?)`, id); err != nil {
		return nil, fmt.Errorf("insert settings: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO family_streaks (family_id) VALUES (?)`, id); err != nil {
		return nil, fmt.Errorf("insert family streak: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetByID(id)
}

func (s *FamilyStore) GetByID(id int64) (*model.Family, error) {
	var f model.Family
	err := s.db.QueryRow(`SELECT id, name, created_at FROM families WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return &f, nil
}

// ListIDs returns every family id, for the daily sweep walk.
func (s *FamilyStore) ListIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM families ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list family ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const settingsCols = `family_id, conversion_rate_pence, streak_protection_days,
	holiday_enabled, holiday_start, holiday_end,
	bonus_enabled, bonus_interval_days, bonus_money_pence, bonus_stars, bonus_mode,
	penalty_enabled, penalty_first_pence, penalty_second_pence, penalty_third_pence,
	penalty_first_stars, penalty_second_stars, penalty_third_stars,
	floor_pence, floor_stars, updated_at`

func scanSettings(scanner interface{ Scan(...any) error }) (*model.FamilySettings, error) {
	var fs model.FamilySettings
	var holidayEnabled, bonusEnabled, penaltyEnabled int
	var holidayStart, holidayEnd sql.NullTime

	err := scanner.Scan(
		&fs.FamilyID, &fs.ConversionRatePence, &fs.StreakProtectionDays,
		&holidayEnabled, &holidayStart, &holidayEnd,
		&bonusEnabled, &fs.BonusIntervalDays, &fs.BonusMoneyPence, &fs.BonusStars, &fs.BonusMode,
		&penaltyEnabled, &fs.PenaltyFirstPence, &fs.PenaltySecondPence, &fs.PenaltyThirdPence,
		&fs.PenaltyFirstStars, &fs.PenaltySecondStars, &fs.PenaltyThirdStars,
		&fs.FloorPence, &fs.FloorStars, &fs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fs.HolidayEnabled = holidayEnabled != 0
	fs.BonusEnabled = bonusEnabled != 0
	fs.PenaltyEnabled = penaltyEnabled != 0
	if holidayStart.Valid {
		t := holidayStart.Time
		fs.HolidayStart = &t
	}
	if holidayEnd.Valid {
		t := holidayEnd.Time
		fs.HolidayEnd = &t
	}
	return &fs, nil
}

// GetSettingsTx reads a family's settings inside an open transaction,
// for workflows that must see settings consistent with their writes.
func GetSettingsTx(tx *sql.Tx, familyID int64) (*model.FamilySettings, error) {
	row := tx.QueryRow(`SELECT `+settingsCols+` FROM family_settings WHERE family_id = ?`, familyID)
	fs, err := scanSettings(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return fs, nil
}

func (s *FamilyStore) GetSettings(familyID int64) (*model.FamilySettings, error) {
	row := s.db.QueryRow(`SELECT `+settingsCols+` FROM family_settings WHERE family_id = ?`, familyID)
	fs, err := scanSettings(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return fs, nil
}

func (s *FamilyStore) UpdateSettings(fs model.FamilySettings) (*model.FamilySettings, error) {
	var holidayEnabled, bonusEnabled, penaltyEnabled int
	if fs.HolidayEnabled {
		holidayEnabled = 1
	}
	if fs.BonusEnabled {
		bonusEnabled = 1
	}
	if fs.PenaltyEnabled {
		penaltyEnabled = 1
	}

	var holidayStart, holidayEnd sql.NullTime
	if fs.HolidayStart != nil {
		holidayStart = sql.NullTime{Time: *fs.HolidayStart, Valid: true}
	}
	if fs.HolidayEnd != nil {
		holidayEnd = sql.NullTime{Time: *fs.HolidayEnd, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE family_settings SET
			conversion_rate_pence = ?, streak_protection_days = ?,
			holiday_enabled = ?, holiday_start = ?, holiday_end = ?,
			bonus_enabled = ?, bonus_interval_days = ?, bonus_money_pence = ?, bonus_stars = ?, bonus_mode = ?,
			penalty_enabled = ?, penalty_first_pence = ?, penalty_second_pence = ?, penalty_third_pence = ?,
			penalty_first_stars = ?, penalty_second_stars = ?, penalty_third_stars = ?,
			floor_pence = ?, floor_stars = ?, updated_at = ?
		WHERE family_id = ?`,
		fs.ConversionRatePence, fs.StreakProtectionDays,
		holidayEnabled, holidayStart, holidayEnd,
		bonusEnabled, fs.BonusIntervalDays, fs.BonusMoneyPence, fs.BonusStars, string(fs.BonusMode),
		penaltyEnabled, fs.PenaltyFirstPence, fs.PenaltySecondPence, fs.PenaltyThirdPence,
		fs.PenaltyFirstStars, fs.PenaltySecondStars, fs.PenaltyThirdStars,
		fs.FloorPence, fs.FloorStars, time.Now().UTC(),
		fs.FamilyID,
	)
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return s.GetSettings(fs.FamilyID)
}
