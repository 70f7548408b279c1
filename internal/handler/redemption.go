package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dje115/choreblimey-sub001/internal/auth"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/redemption"
	"github.com/dje115/choreblimey-sub001/internal/websocket"
)

type RedemptionHandler struct {
	workflow *redemption.Workflow
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewRedemptionHandler(wf *redemption.Workflow, hub *websocket.Hub, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{workflow: wf, hub: hub, logger: logger}
}

func (h *RedemptionHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type redeemRequest struct {
	RewardID int64 `json:"reward_id"`
}

// Request reserves the authenticated child's stars against a reward.
func (h *RedemptionHandler) Request(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	red, err := h.workflow.RequestRedemption(r.Context(), actor.FamilyID, actor.MemberID, req.RewardID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(actor.FamilyID, "redemption", "requested", red.ID, map[string]any{
		"child_id":  actor.MemberID,
		"reward_id": req.RewardID,
	}))
	h.broadcast(websocket.NewMessage(actor.FamilyID, "wallet", "changed", actor.MemberID, nil))
	writeJSON(w, http.StatusCreated, red)
}

// List returns the family's redemptions, optionally ?status= filtered.
func (h *RedemptionHandler) List(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	status := model.RedemptionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.RedemptionPending, model.RedemptionFulfilled, model.RedemptionRejected:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status filter"})
		return
	}

	reds, err := h.workflow.ListRedemptions(r.Context(), familyID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	if reds == nil {
		reds = []model.Redemption{}
	}
	writeJSON(w, http.StatusOK, reds)
}

// Fulfill marks a redemption handed over in the real world.
func (h *RedemptionHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	red, err := h.workflow.FulfillRedemption(r.Context(), actor.FamilyID, id, actor.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(actor.FamilyID, "redemption", "fulfilled", id, map[string]any{
		"child_id": red.ChildID,
	}))
	writeJSON(w, http.StatusOK, red)
}

// Reject refunds the reserved stars.
func (h *RedemptionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	red, err := h.workflow.RejectRedemption(r.Context(), actor.FamilyID, id, actor.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(actor.FamilyID, "redemption", "rejected", id, map[string]any{
		"child_id": red.ChildID,
	}))
	h.broadcast(websocket.NewMessage(actor.FamilyID, "wallet", "changed", red.ChildID, nil))
	writeJSON(w, http.StatusOK, red)
}

type starPurchaseRequest struct {
	Stars int `json:"stars"`
}

// RequestStarPurchase converts the authenticated child's money to stars.
func (h *RedemptionHandler) RequestStarPurchase(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	var req starPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	p, err := h.workflow.RequestStarPurchase(r.Context(), actor.FamilyID, actor.MemberID, req.Stars)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(actor.FamilyID, "star_purchase", "requested", p.ID, map[string]any{
		"child_id": actor.MemberID,
		"stars":    p.Stars,
	}))
	h.broadcast(websocket.NewMessage(actor.FamilyID, "wallet", "changed", actor.MemberID, nil))
	writeJSON(w, http.StatusCreated, p)
}

// ListStarPurchases returns the family's purchases, optionally ?status=
// filtered.
func (h *RedemptionHandler) ListStarPurchases(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	status := model.StarPurchaseStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.StarPurchasePending, model.StarPurchaseApproved, model.StarPurchaseRejected:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status filter"})
		return
	}

	purchases, err := h.workflow.ListStarPurchases(r.Context(), familyID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	if purchases == nil {
		purchases = []model.StarPurchase{}
	}
	writeJSON(w, http.StatusOK, purchases)
}

// ApproveStarPurchase signs off a pending purchase.
func (h *RedemptionHandler) ApproveStarPurchase(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	p, err := h.workflow.ApproveStarPurchase(r.Context(), actor.FamilyID, id, actor.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(actor.FamilyID, "star_purchase", "approved", id, map[string]any{
		"child_id": p.ChildID,
	}))
	writeJSON(w, http.StatusOK, p)
}

// RejectStarPurchase reverses the exchange.
func (h *RedemptionHandler) RejectStarPurchase(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	p, err := h.workflow.RejectStarPurchase(r.Context(), actor.FamilyID, id, actor.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(actor.FamilyID, "star_purchase", "rejected", id, map[string]any{
		"child_id": p.ChildID,
	}))
	h.broadcast(websocket.NewMessage(actor.FamilyID, "wallet", "changed", p.ChildID, nil))
	writeJSON(w, http.StatusOK, p)
}
