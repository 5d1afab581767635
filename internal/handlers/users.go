// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"taxopress/internal/middleware"
	"taxopress/internal/models"
	"taxopress/internal/store"
)

// Users groups the admin-only user management handlers.
type Users struct {
	userStore *store.UserStore
}

// NewUsers creates the user handler group.
func NewUsers(userStore *store.UserStore) *Users {
	return &Users{userStore: userStore}
}

// List returns all users.
func (h *Users) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userStore.List(r.Context())
	if err != nil {
		slog.Error("list users failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not list users.")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// userCreateRequest is the JSON payload for user creation.
type userCreateRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Create adds a new user account.
func (h *Users) Create(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON payload.")
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if msg := validateUser(req.Email, req.Password, req.DisplayName); msg != "" {
		respondError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	role := models.Role(req.Role)
	if role != models.RoleAdmin && role != models.RoleEditor && role != models.RoleViewer {
		respondError(w, http.StatusUnprocessableEntity, "Invalid role.")
		return
	}

	existing, err := h.userStore.FindByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("user lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}
	if existing != nil {
		respondError(w, http.StatusConflict, "A user with this email already exists.")
		return
	}

	user, err := h.userStore.Create(r.Context(), req.Email, req.Password, req.DisplayName, role)
	if err != nil {
		slog.Error("create user failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create user.")
		return
	}

	sess := middleware.SessionFromCtx(r.Context())
	slog.Info("user created", "admin", sess.Email, "new_user", user.Email, "role", role)
	respondJSON(w, http.StatusCreated, user)
}

// ResetTwoFA resets another user's 2FA, forcing re-setup on next login.
func (h *Users) ResetTwoFA(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user id.")
		return
	}
	// Cannot reset your own 2FA.
	if targetID == sess.UserID {
		respondError(w, http.StatusForbidden, "Cannot reset your own 2FA.")
		return
	}

	if err := h.userStore.ResetTOTP(r.Context(), targetID); err != nil {
		slog.Error("reset 2fa failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not reset 2FA.")
		return
	}

	slog.Info("2fa reset by admin", "admin", sess.Email, "target_user", targetID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Delete removes a user account.
func (h *Users) Delete(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user id.")
		return
	}
	if targetID == sess.UserID {
		respondError(w, http.StatusForbidden, "Cannot delete your own account.")
		return
	}

	if err := h.userStore.Delete(r.Context(), targetID); err != nil {
		slog.Error("delete user failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not delete user.")
		return
	}

	slog.Info("user deleted", "admin", sess.Email, "target_user", targetID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
