package store

import (
	"database/sql"
	"fmt"

	"github.com/dje115/choreblimey-sub001/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// --- Task methods ---

const taskCols = `id, family_id, title, description, base_reward_pence, recurrence, proof_required, active, created_at, updated_at`

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var proofRequired, active int

	err := scanner.Scan(
		&t.ID, &t.FamilyID, &t.Title, &t.Description, &t.BaseRewardPence,
		&t.Recurrence, &proofRequired, &active, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ProofRequired = proofRequired != 0
	t.Active = active != 0
	return &t, nil
}

func (s *TaskStore) Create(familyID int64, title, description string, baseRewardPence int, recurrence model.Recurrence, proofRequired bool) (*model.Task, error) {
	var proof int
	if proofRequired {
		proof = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO tasks (family_id, title, description, base_reward_pence, recurrence, proof_required) VALUES (?, ?, ?, ?, ?, ?)`,
		familyID, title, description, baseRewardPence, string(recurrence), proof,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(familyID, id)
}

func (s *TaskStore) GetByID(familyID, id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ? AND family_id = ?`, id, familyID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) List(familyID int64) ([]model.Task, error) {
	rows, err := s.db.Query(`SELECT `+taskCols+` FROM tasks WHERE family_id = ? ORDER BY active DESC, title ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Update(familyID, id int64, title, description string, baseRewardPence int, recurrence model.Recurrence, proofRequired bool) (*model.Task, error) {
	var proof int
	if proofRequired {
		proof = 1
	}

	_, err := s.db.Exec(
		`UPDATE tasks SET title = ?, description = ?, base_reward_pence = ?, recurrence = ?, proof_required = ?, updated_at = datetime('now')
		WHERE id = ? AND family_id = ?`,
		title, description, baseRewardPence, string(recurrence), proof, id, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(familyID, id)
}

// SetActive soft-disables (or re-enables) a task. Disabling blocks new
// completion submissions on every assignment of the task.
func (s *TaskStore) SetActive(familyID, id int64, active bool) error {
	var a int
	if active {
		a = 1
	}

	_, err := s.db.Exec(
		`UPDATE tasks SET active = ?, updated_at = datetime('now') WHERE id = ? AND family_id = ?`,
		a, id, familyID,
	)
	if err != nil {
		return fmt.Errorf("set task active: %w", err)
	}
	return nil
}

// --- Assignment methods ---

const assignmentCols = `id, family_id, task_id, child_id, bidding_enabled, created_at`

func scanAssignment(scanner interface{ Scan(...any) error }) (*model.Assignment, error) {
	var a model.Assignment
	var childID sql.NullInt64
	var bidding int

	err := scanner.Scan(&a.ID, &a.FamilyID, &a.TaskID, &childID, &bidding, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	if childID.Valid {
		a.ChildID = &childID.Int64
	}
	a.BiddingEnabled = bidding != 0
	return &a, nil
}

func (s *TaskStore) CreateAssignment(familyID, taskID int64, childID *int64, biddingEnabled bool) (*model.Assignment, error) {
	var cID sql.NullInt64
	if childID != nil {
		cID = sql.NullInt64{Int64: *childID, Valid: true}
	}
	var bidding int
	if biddingEnabled {
		bidding = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO assignments (family_id, task_id, child_id, bidding_enabled) VALUES (?, ?, ?, ?)`,
		familyID, taskID, cID, bidding,
	)
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetAssignment(familyID, id)
}

func (s *TaskStore) GetAssignment(familyID, id int64) (*model.Assignment, error) {
	row := s.db.QueryRow(`SELECT `+assignmentCols+` FROM assignments WHERE id = ? AND family_id = ?`, id, familyID)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *TaskStore) ListAssignments(familyID int64) ([]model.Assignment, error) {
	rows, err := s.db.Query(`SELECT `+assignmentCols+` FROM assignments WHERE family_id = ? ORDER BY created_at DESC, id DESC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}
