package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dje115/choreblimey-sub001/internal/auth"
	"github.com/dje115/choreblimey-sub001/internal/ledger"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/websocket"
)

type WalletHandler struct {
	ledger *ledger.Ledger
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewWalletHandler(l *ledger.Ledger, hub *websocket.Hub, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{ledger: l, hub: hub, logger: logger}
}

func (h *WalletHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// Balance returns one child's money and stars. A child may only read
// their own; a parent may read any.
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	childID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if actor.Role == model.RoleChild && actor.MemberID != childID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot read another child's wallet"})
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), actor.FamilyID, childID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// Transactions pages through one child's ledger history, newest first.
// Query params: limit, before (RFC 3339 timestamp cursor).
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	childID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if actor.Role == model.RoleChild && actor.MemberID != childID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot read another child's wallet"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var before time.Time
	if s := r.URL.Query().Get("before"); s != "" {
		before, err = time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "before must be an RFC 3339 timestamp"})
			return
		}
	}

	txns, err := h.ledger.ListTransactions(r.Context(), actor.FamilyID, childID, limit, before)
	if err != nil {
		writeError(w, err)
		return
	}
	if txns == nil {
		txns = []model.WalletTransaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// Leaderboard ranks the family's active children by stars.
func (h *WalletHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	entries, err := h.ledger.Leaderboard(r.Context(), familyID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type giftRequest struct {
	ChildID    int64  `json:"child_id"`
	MoneyPence int    `json:"money_pence"`
	Stars      int    `json:"stars"`
	Note       string `json:"note"`
}

// Gift lets a parent credit money or stars outside any task.
func (h *WalletHandler) Gift(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	var req giftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	txn, err := h.ledger.Credit(r.Context(), ledger.Entry{
		FamilyID:    familyID,
		ChildID:     req.ChildID,
		MoneyPence:  req.MoneyPence,
		Stars:       req.Stars,
		Reason:      model.ReasonGift,
		ReferenceID: fmt.Sprintf("gift:%s", uuid.NewString()),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("gift", "family_id", familyID, "child_id", req.ChildID,
		"money_pence", req.MoneyPence, "stars", req.Stars, "note", req.Note)
	h.broadcast(websocket.NewMessage(familyID, "wallet", "changed", req.ChildID, nil))
	writeJSON(w, http.StatusCreated, txn)
}

type payoutRequest struct {
	ChildID    int64  `json:"child_id"`
	MoneyPence int    `json:"money_pence"`
	Note       string `json:"note"`
}

// Payout records real-world pocket money being handed over: the balance
// drops by the amount paid out.
func (h *WalletHandler) Payout(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	var req payoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	txn, err := h.ledger.Debit(r.Context(), ledger.Entry{
		FamilyID:    familyID,
		ChildID:     req.ChildID,
		MoneyPence:  req.MoneyPence,
		Reason:      model.ReasonPayout,
		ReferenceID: fmt.Sprintf("payout:%s", uuid.NewString()),
	}, false)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("payout", "family_id", familyID, "child_id", req.ChildID,
		"money_pence", req.MoneyPence, "note", req.Note)
	h.broadcast(websocket.NewMessage(familyID, "wallet", "changed", req.ChildID, nil))
	writeJSON(w, http.StatusCreated, txn)
}
