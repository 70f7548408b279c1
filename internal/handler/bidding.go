package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dje115/choreblimey-sub001/internal/auth"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/showdown"
	"github.com/dje115/choreblimey-sub001/internal/websocket"
)

type BiddingHandler struct {
	engine *showdown.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewBiddingHandler(e *showdown.Engine, hub *websocket.Hub, logger *slog.Logger) *BiddingHandler {
	return &BiddingHandler{engine: e, hub: hub, logger: logger}
}

func (h *BiddingHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type bidRequest struct {
	AmountPence int `json:"amount_pence"`
}

// Compete places a bid by the authenticated child on the assignment in
// the path.
func (h *BiddingHandler) Compete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	assignmentID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	bid, err := h.engine.Compete(r.Context(), actor.FamilyID, assignmentID, actor.MemberID, req.AmountPence)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(actor.FamilyID, "bid", "placed", bid.ID, map[string]any{
		"assignment_id": assignmentID,
		"child_id":      actor.MemberID,
		"amount_pence":  bid.AmountPence,
	}))
	writeJSON(w, http.StatusCreated, bid)
}

// Champion returns the current winning bid, or null when nobody has bid.
func (h *BiddingHandler) Champion(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	assignmentID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	champion, err := h.engine.Champion(r.Context(), familyID, assignmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, champion)
}

// ListBids returns the assignment's full bid history, champion first.
func (h *BiddingHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	assignmentID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	bids, err := h.engine.ListBids(r.Context(), familyID, assignmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}
	writeJSON(w, http.StatusOK, bids)
}
