package store

import (
	"database/sql"
	"fmt"

	"github.com/dje115/choreblimey-sub001/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `id, family_id, name, role, color, avatar_emoji, active, created_at, updated_at`

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var active int

	err := scanner.Scan(&m.ID, &m.FamilyID, &m.Name, &m.Role, &m.Color, &m.AvatarEmoji, &active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	m.Active = active != 0
	return &m, nil
}

func (s *MemberStore) Create(familyID int64, name string, role model.Role, color, avatarEmoji string) (*model.Member, error) {
	result, err := s.db.Exec(
		`INSERT INTO members (family_id, name, role, color, avatar_emoji) VALUES (?, ?, ?, ?, ?)`,
		familyID, name, string(role), color, avatarEmoji,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(familyID, id)
}

// GetByID is family-scoped: a member id from another family is not found.
func (s *MemberStore) GetByID(familyID, id int64) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE id = ? AND family_id = ?`, id, familyID)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) List(familyID int64) ([]model.Member, error) {
	rows, err := s.db.Query(`SELECT `+memberCols+` FROM members WHERE family_id = ? ORDER BY role ASC, name ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// ListActiveChildren returns the children the daily sweep walks.
func (s *MemberStore) ListActiveChildren(familyID int64) ([]model.Member, error) {
	rows, err := s.db.Query(
		`SELECT `+memberCols+` FROM members WHERE family_id = ? AND role = 'child' AND active = 1 ORDER BY name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MemberStore) Update(familyID, id int64, name, color, avatarEmoji string, active bool) (*model.Member, error) {
	var a int
	if active {
		a = 1
	}

	_, err := s.db.Exec(
		`UPDATE members SET name = ?, color = ?, avatar_emoji = ?, active = ?, updated_at = datetime('now')
		WHERE id = ? AND family_id = ?`,
		name, color, avatarEmoji, a, id, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return s.GetByID(familyID, id)
}

func (s *MemberStore) NameExists(familyID int64, name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM members WHERE family_id = ? AND name = ? AND id != ?`,
		familyID, name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check member name: %w", err)
	}
	return count > 0, nil
}

func (s *MemberStore) SetPIN(familyID, id int64, pinHash string) error {
	_, err := s.db.Exec(
		`UPDATE members SET pin_hash = ?, updated_at = datetime('now') WHERE id = ? AND family_id = ?`,
		pinHash, id, familyID,
	)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *MemberStore) ClearPIN(familyID, id int64) error {
	_, err := s.db.Exec(
		`UPDATE members SET pin_hash = '', updated_at = datetime('now') WHERE id = ? AND family_id = ?`,
		id, familyID,
	)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

func (s *MemberStore) GetPINHash(familyID, id int64) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT pin_hash FROM members WHERE id = ? AND family_id = ?`, id, familyID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get pin hash: %w", err)
	}
	return hash, nil
}
