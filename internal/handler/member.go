package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dje115/choreblimey-sub001/internal/auth"
	"github.com/dje115/choreblimey-sub001/internal/errs"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/store"
	"github.com/dje115/choreblimey-sub001/internal/websocket"
)

var errPINFormat = errs.Validation("pin must be 4-8 digits")

type MemberHandler struct {
	members *store.MemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewMemberHandler(ms *store.MemberStore, hub *websocket.Hub, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: ms, hub: hub, logger: logger}
}

func (h *MemberHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type memberRequest struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Color       string `json:"color"`
	AvatarEmoji string `json:"avatar_emoji"`
	Active      *bool  `json:"active"`
	PIN         *string `json:"pin"`
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	role := model.Role(req.Role)
	if role != model.RoleParent && role != model.RoleChild {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be parent or child"})
		return
	}

	exists, err := h.members.NameExists(familyID, req.Name, 0)
	if err != nil {
		h.logger.Error("check member name", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a member with that name already exists"})
		return
	}

	if req.Color == "" {
		req.Color = "#3B82F6"
	}
	if req.AvatarEmoji == "" {
		req.AvatarEmoji = "😀"
	}

	member, err := h.members.Create(familyID, req.Name, role, req.Color, req.AvatarEmoji)
	if err != nil {
		h.logger.Error("create member", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create member"})
		return
	}

	if req.PIN != nil && *req.PIN != "" {
		if err := h.setPIN(familyID, member.ID, *req.PIN); err != nil {
			writeError(w, err)
			return
		}
	}

	h.broadcast(websocket.NewMessage(familyID, "member", "created", member.ID, nil))
	writeJSON(w, http.StatusCreated, member)
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	members, err := h.members.List(familyID)
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list members"})
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	member, err := h.members.GetByID(familyID, id)
	if err != nil {
		h.logger.Error("get member", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	existing, err := h.members.GetByID(familyID, id)
	if err != nil {
		h.logger.Error("get member", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = existing.Name
	}
	color := req.Color
	if color == "" {
		color = existing.Color
	}
	avatar := req.AvatarEmoji
	if avatar == "" {
		avatar = existing.AvatarEmoji
	}
	active := existing.Active
	if req.Active != nil {
		active = *req.Active
	}

	if name != existing.Name {
		exists, err := h.members.NameExists(familyID, name, id)
		if err != nil {
			h.logger.Error("check member name", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if exists {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a member with that name already exists"})
			return
		}
	}

	member, err := h.members.Update(familyID, id, name, color, avatar, active)
	if err != nil {
		h.logger.Error("update member", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update member"})
		return
	}

	if req.PIN != nil {
		if *req.PIN == "" {
			if err := h.members.ClearPIN(familyID, id); err != nil {
				h.logger.Error("clear pin", "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to clear PIN"})
				return
			}
		} else if err := h.setPIN(familyID, id, *req.PIN); err != nil {
			writeError(w, err)
			return
		}
	}

	h.broadcast(websocket.NewMessage(familyID, "member", "updated", id, nil))
	writeJSON(w, http.StatusOK, member)
}

func (h *MemberHandler) setPIN(familyID, memberID int64, pin string) error {
	if !isDigits(pin) || len(pin) < 4 || len(pin) > 8 {
		return errPINFormat
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return h.members.SetPIN(familyID, memberID, string(hash))
}
