package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dje115/choreblimey-sub001/internal/auth"
	"github.com/dje115/choreblimey-sub001/internal/model"
	"github.com/dje115/choreblimey-sub001/internal/store"
)

const (
	sessionCookieName = "choreblimey_session"
	sessionTTL        = 30 * 24 * time.Hour
)

type AuthHandler struct {
	families *store.FamilyStore
	members  *store.MemberStore
	sessions *store.SessionStore
	logger   *slog.Logger
}

func NewAuthHandler(fs *store.FamilyStore, ms *store.MemberStore, ss *store.SessionStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{families: fs, members: ms, sessions: ss, logger: logger}
}

type registerRequest struct {
	FamilyName string `json:"family_name"`
	ParentName string `json:"parent_name"`
	PIN        string `json:"pin"`
}

// Register creates a family with its first parent and logs them in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.FamilyName = strings.TrimSpace(req.FamilyName)
	req.ParentName = strings.TrimSpace(req.ParentName)
	if req.FamilyName == "" || req.ParentName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "family_name and parent_name are required"})
		return
	}
	if !isDigits(req.PIN) || len(req.PIN) < 4 || len(req.PIN) > 8 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pin must be 4-8 digits"})
		return
	}

	family, err := h.families.Create(req.FamilyName)
	if err != nil {
		h.logger.Error("create family", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create family"})
		return
	}

	parent, err := h.members.Create(family.ID, req.ParentName, model.RoleParent, "#3B82F6", "😀")
	if err != nil {
		h.logger.Error("create parent", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create parent"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash pin", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to set PIN"})
		return
	}
	if err := h.members.SetPIN(family.ID, parent.ID, string(hash)); err != nil {
		h.logger.Error("store pin", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to set PIN"})
		return
	}

	sess, err := h.startSession(w, family.ID, parent.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"family": family,
		"member": parent,
		"token":  sess.Token,
	})
}

type loginRequest struct {
	FamilyID int64  `json:"family_id"`
	MemberID int64  `json:"member_id"`
	PIN      string `json:"pin"`
}

// Login verifies the member's PIN and issues a session token. Members
// with no PIN set (young children) log in with an empty PIN.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	member, err := h.members.GetByID(req.FamilyID, req.MemberID)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if member == nil || !member.Active {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	hash, err := h.members.GetPINHash(req.FamilyID, req.MemberID)
	if err != nil {
		h.logger.Error("login pin lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.PIN)); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
	}

	sess, err := h.startSession(w, req.FamilyID, req.MemberID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"member": member,
		"token":  sess.Token,
	})
}

// Logout deletes the current session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimSpace(h[len("Bearer "):])
	}
	if token == "" {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			token = cookie.Value
		}
	}
	if token != "" {
		if err := h.sessions.Delete(token); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me returns the authenticated member.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	member, err := h.members.GetByID(actor.FamilyID, actor.MemberID)
	if err != nil || member == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, familyID, memberID int64) (*model.Session, error) {
	token := uuid.NewString()
	sess, err := h.sessions.Create(familyID, memberID, token, sessionTTL)
	if err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// The model hides the token from JSON; hand it back explicitly for
	// API clients that prefer bearer auth over cookies.
	sess.Token = token
	return sess, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
