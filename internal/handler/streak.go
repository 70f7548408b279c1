package handler

import (
	"log/slog"
	"net/http"

	"github.com/dje115/choreblimey-sub001/internal/auth"
	"github.com/dje115/choreblimey-sub001/internal/streak"
)

type StreakHandler struct {
	calc   *streak.Calculator
	logger *slog.Logger
}

func NewStreakHandler(c *streak.Calculator, logger *slog.Logger) *StreakHandler {
	return &StreakHandler{calc: c, logger: logger}
}

// Stats returns one child's per-task streaks and their overall
// current/best.
func (h *StreakHandler) Stats(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	childID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	stats, err := h.calc.GetStats(r.Context(), familyID, childID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Family returns the whole-family streak that drives interval bonuses.
func (h *StreakHandler) Family(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	fs, err := h.calc.FamilyStreak(r.Context(), familyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}
