package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dje115/choreblimey-sub001/internal/auth"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/store"
	"github.com/dje115/choreblimey-sub001/internal/websocket"
)

type SettingsHandler struct {
	families *store.FamilyStore
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewSettingsHandler(fs *store.FamilyStore, hub *websocket.Hub, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{families: fs, hub: hub, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	settings, err := h.families.GetSettings(familyID)
	if err != nil {
		h.logger.Error("get settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if settings == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "settings not found"})
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update replaces the family's settings wholesale. Clients send the full
// settings object back, edited.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	var req model.FamilySettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.FamilyID = familyID

	if req.ConversionRatePence <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversion_rate_pence must be positive"})
		return
	}
	if req.StreakProtectionDays < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "streak_protection_days must not be negative"})
		return
	}
	if req.BonusEnabled && req.BonusIntervalDays <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bonus_interval_days must be positive"})
		return
	}
	switch req.BonusMode {
	case model.BonusMoney, model.BonusStars, model.BonusBoth:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bonus_mode must be money, stars, or both"})
		return
	}
	if req.HolidayEnabled && (req.HolidayStart == nil || req.HolidayEnd == nil) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "holiday_start and holiday_end are required when holiday mode is on"})
		return
	}
	if req.HolidayStart != nil && req.HolidayEnd != nil && req.HolidayEnd.Before(*req.HolidayStart) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "holiday_end must not precede holiday_start"})
		return
	}
	if req.FloorPence < 0 || req.FloorStars < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "floors must not be negative"})
		return
	}

	settings, err := h.families.UpdateSettings(req)
	if err != nil {
		h.logger.Error("update settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update settings"})
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage(familyID, "settings", "updated", familyID, nil))
	}
	writeJSON(w, http.StatusOK, settings)
}
