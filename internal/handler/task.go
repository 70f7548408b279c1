package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dje115/choreblimey-sub001/internal/auth"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/store"
	"github.com/dje115/choreblimey-sub001/internal/websocket"
)

type TaskHandler struct {
	tasks   *store.TaskStore
	members *store.MemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewTaskHandler(ts *store.TaskStore, ms *store.MemberStore, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: ts, members: ms, hub: hub, logger: logger}
}

func (h *TaskHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type taskRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	BaseRewardPence int    `json:"base_reward_pence"`
	Recurrence      string `json:"recurrence"`
	ProofRequired   bool   `json:"proof_required"`
	Active          *bool  `json:"active"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}
	if req.BaseRewardPence < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "base_reward_pence must not be negative"})
		return
	}
	recurrence := model.Recurrence(req.Recurrence)
	if req.Recurrence == "" {
		recurrence = model.RecurOnce
	}
	if !recurrence.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recurrence must be daily, weekly, or once"})
		return
	}

	task, err := h.tasks.Create(familyID, req.Title, req.Description, req.BaseRewardPence, recurrence, req.ProofRequired)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create task"})
		return
	}

	h.broadcast(websocket.NewMessage(familyID, "task", "created", task.ID, nil))
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	tasks, err := h.tasks.List(familyID)
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list tasks"})
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	task, err := h.tasks.GetByID(familyID, id)
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if task == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	existing, err := h.tasks.GetByID(familyID, id)
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = existing.Title
	}
	recurrence := existing.Recurrence
	if req.Recurrence != "" {
		recurrence = model.Recurrence(req.Recurrence)
		if !recurrence.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recurrence must be daily, weekly, or once"})
			return
		}
	}
	if req.BaseRewardPence < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "base_reward_pence must not be negative"})
		return
	}

	task, err := h.tasks.Update(familyID, id, title, req.Description, req.BaseRewardPence, recurrence, req.ProofRequired)
	if err != nil {
		h.logger.Error("update task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update task"})
		return
	}

	if req.Active != nil && *req.Active != existing.Active {
		if err := h.tasks.SetActive(familyID, id, *req.Active); err != nil {
			h.logger.Error("set task active", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update task"})
			return
		}
		task.Active = *req.Active
	}

	h.broadcast(websocket.NewMessage(familyID, "task", "updated", id, nil))
	writeJSON(w, http.StatusOK, task)
}

// Deactivate soft-disables a task. History stays; new submissions and
// bids are refused.
func (h *TaskHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	existing, err := h.tasks.GetByID(familyID, id)
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}

	if err := h.tasks.SetActive(familyID, id, false); err != nil {
		h.logger.Error("deactivate task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to deactivate task"})
		return
	}

	h.broadcast(websocket.NewMessage(familyID, "task", "deactivated", id, nil))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

type assignmentRequest struct {
	TaskID         int64  `json:"task_id"`
	ChildID        *int64 `json:"child_id"`
	BiddingEnabled bool   `json:"bidding_enabled"`
}

func (h *TaskHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	task, err := h.tasks.GetByID(familyID, req.TaskID)
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if task == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task not found"})
		return
	}

	if req.BiddingEnabled && req.ChildID != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a bidding assignment cannot be pinned to one child"})
		return
	}
	if req.ChildID != nil {
		member, err := h.members.GetByID(familyID, *req.ChildID)
		if err != nil {
			h.logger.Error("get member", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if member == nil || member.Role != model.RoleChild {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "child not found"})
			return
		}
	}

	assignment, err := h.tasks.CreateAssignment(familyID, req.TaskID, req.ChildID, req.BiddingEnabled)
	if err != nil {
		h.logger.Error("create assignment", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create assignment"})
		return
	}

	h.broadcast(websocket.NewMessage(familyID, "assignment", "created", assignment.ID, nil))
	writeJSON(w, http.StatusCreated, assignment)
}

func (h *TaskHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	assignments, err := h.tasks.ListAssignments(familyID)
	if err != nil {
		h.logger.Error("list assignments", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list assignments"})
		return
	}
	if assignments == nil {
		assignments = []model.Assignment{}
	}
	writeJSON(w, http.StatusOK, assignments)
}
