// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the HTTP handlers for the taxopress admin API.
// Handlers are grouped by concern (categories, users, auth) and receive
// their dependencies through the handler struct. All responses are JSON.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"taxopress/internal/tree"
)

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("response encode failed", "error", err)
		}
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// respondError writes a JSON error with the given status.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Error: msg})
}

// respondTreeError maps the tree validation taxonomy to specific,
// human-readable 422 responses. Anything else is a store failure: the
// mutation failed, and the client gets a 500 without internals leaking.
func respondTreeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tree.ErrParentNotFound):
		respondError(w, http.StatusUnprocessableEntity, "Parent category does not exist or is deleted.")
	case errors.Is(err, tree.ErrCircularReference):
		respondError(w, http.StatusUnprocessableEntity, "A category cannot be moved under itself or one of its descendants.")
	case errors.Is(err, tree.ErrMaxDepthExceeded):
		respondError(w, http.StatusUnprocessableEntity, "The maximum tree depth would be exceeded.")
	case errors.Is(err, tree.ErrHasChildren):
		respondError(w, http.StatusUnprocessableEntity, "The category still has children; move or delete them first.")
	case errors.Is(err, tree.ErrSlugGenerationExhausted):
		respondError(w, http.StatusUnprocessableEntity, "Could not generate a unique slug; supply one explicitly.")
	default:
		slog.Error("category mutation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "The operation could not be completed.")
	}
}
