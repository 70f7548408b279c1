package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dje115/choreblimey-sub001/internal/auth"
	"github.com/dje115/choreblimey-sub001/internal/completion"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/websocket"
)

type CompletionHandler struct {
	workflow *completion.Workflow
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewCompletionHandler(wf *completion.Workflow, hub *websocket.Hub, logger *slog.Logger) *CompletionHandler {
	return &CompletionHandler{workflow: wf, hub: hub, logger: logger}
}

func (h *CompletionHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type submitRequest struct {
	AssignmentID int64  `json:"assignment_id"`
	Note         string `json:"note"`
}

// Submit files a completion claim by the authenticated child.
func (h *CompletionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	comp, err := h.workflow.Submit(r.Context(), actor.FamilyID, req.AssignmentID, actor.MemberID, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(actor.FamilyID, "completion", "submitted", comp.ID, map[string]any{
		"assignment_id": req.AssignmentID,
		"child_id":      actor.MemberID,
	}))
	writeJSON(w, http.StatusCreated, comp)
}

// List returns the family's completions, optionally ?status= filtered.
func (h *CompletionHandler) List(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	status := model.CompletionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.CompletionPending, model.CompletionApproved, model.CompletionRejected:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status filter"})
		return
	}

	comps, err := h.workflow.List(r.Context(), familyID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	if comps == nil {
		comps = []model.Completion{}
	}
	writeJSON(w, http.StatusOK, comps)
}

func (h *CompletionHandler) Get(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	comp, err := h.workflow.Get(r.Context(), familyID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

// Approve pays out the reward and marks the completion approved.
func (h *CompletionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	res, err := h.workflow.Approve(r.Context(), actor.FamilyID, id, actor.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(actor.FamilyID, "completion", "approved", id, map[string]any{
		"child_id":      res.Completion.ChildID,
		"money_awarded": res.MoneyAwarded,
		"stars_awarded": res.StarsAwarded,
	}))
	h.broadcast(websocket.NewMessage(actor.FamilyID, "wallet", "changed", res.Completion.ChildID, nil))
	writeJSON(w, http.StatusOK, res)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject declines a pending completion; no money moves.
func (h *CompletionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req rejectRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	comp, err := h.workflow.Reject(r.Context(), actor.FamilyID, id, actor.MemberID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(actor.FamilyID, "completion", "rejected", id, map[string]any{
		"child_id": comp.ChildID,
	}))
	writeJSON(w, http.StatusOK, comp)
}
