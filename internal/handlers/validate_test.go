// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"strings"
	"testing"
)

func TestValidateCategory(t *testing.T) {
	tests := []struct {
		name        string
		catName     string
		slug        string
		description string
		wantError   bool
	}{
		{"valid", "Electronics", "electronics", "All gadgets", false},
		{"empty name", "", "slug", "desc", true},
		{"whitespace name", "   ", "slug", "desc", true},
		{"name too long", strings.Repeat("a", 201), "slug", "desc", true},
		{"slug too long", "name", strings.Repeat("a", 201), "desc", true},
		{"description too long", "name", "slug", strings.Repeat("a", 2_001), true},
		{"empty slug allowed", "name", "", "desc", false},
		{"empty description allowed", "name", "slug", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validateCategory(tt.catName, tt.slug, tt.description)
			if tt.wantError && result == "" {
				t.Error("expected an error, got none")
			}
			if !tt.wantError && result != "" {
				t.Errorf("unexpected error: %s", result)
			}
		})
	}
}

func TestValidateUser(t *testing.T) {
	tests := []struct {
		name        string
		email       string
		password    string
		displayName string
		wantError   bool
	}{
		{"valid", "editor@example.com", "long-enough", "Editor", false},
		{"empty email", "", "long-enough", "Editor", true},
		{"email without at", "not-an-email", "long-enough", "Editor", true},
		{"short password", "editor@example.com", "short", "Editor", true},
		{"display name too long", "editor@example.com", "long-enough", strings.Repeat("a", 201), true},
		{"empty display name allowed", "editor@example.com", "long-enough", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validateUser(tt.email, tt.password, tt.displayName)
			if tt.wantError && result == "" {
				t.Error("expected an error, got none")
			}
			if !tt.wantError && result != "" {
				t.Errorf("unexpected error: %s", result)
			}
		})
	}
}
