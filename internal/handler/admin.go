package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/edulingo/internal/handler/views"
	appI18n "github.com/pavelanni/edulingo/internal/i18n"
	"github.com/pavelanni/edulingo/internal/model"
	"github.com/pavelanni/edulingo/internal/store"
)

func (h *Handler) handleAdminUsersPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminUsers(w, r, http.StatusOK, "")
}

func (h *Handler) renderAdminUsers(w http.ResponseWriter, r *http.Request, status int, msg string) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	render(w, r, status, views.AdminUsersPage(users, msg))
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	displayName := strings.TrimSpace(r.FormValue("display_name"))
	password := r.FormValue("password")
	role := model.UserRole(r.FormValue("role"))

	if username == "" || password == "" {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return
	}
	if role != model.UserRoleAdmin {
		role = model.UserRoleLearner
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	_, err = h.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if errors.Is(err, store.ErrUserExists) {
		h.renderAdminUsers(w, r, http.StatusConflict, appI18n.T(r.Context(), "UserExists"))
		return
	}
	if err != nil {
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

func (h *Handler) userFromParam(w http.ResponseWriter, r *http.Request) *model.User {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return nil
	}
	u, err := h.store.GetUserByID(id)
	if err != nil {
		slog.Error("failed to get user", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	if u == nil {
		http.NotFound(w, r)
		return nil
	}
	return u
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	u := h.userFromParam(w, r)
	if u == nil {
		return
	}
	if err := h.store.ToggleUserActive(u.ID); err != nil {
		slog.Error("failed to toggle user active", "id", u.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if u.Active {
		// Deactivated: drop any quiz in progress.
		h.learners.forget(u.Username)
	}
	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

// handleResetProgress wipes a learner's XP, streak and history.
func (h *Handler) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	u := h.userFromParam(w, r)
	if u == nil {
		return
	}
	l := h.learners.get(u.Username)
	l.mu.Lock()
	l.ledger.Reset()
	l.mu.Unlock()
	slog.Info("progress reset", "username", u.Username, "by", model.IdentityFromContext(r.Context()))
	h.renderAdminUsers(w, r, http.StatusOK, appI18n.Td(r.Context(), "ProgressResetFor", map[string]any{"Username": u.Username}))
}
