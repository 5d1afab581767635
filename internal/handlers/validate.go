// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"strings"
	"unicode/utf8"
)

// Validation limits for category fields.
const (
	maxNameLen = 200
	maxSlugLen = 200
	maxDescLen = 2_000
)

// validateCategory checks category inputs and returns the first error found.
func validateCategory(name, slug, description string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Name is required."
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "Name is too long (max 200 characters)."
	}
	if utf8.RuneCountInString(slug) > maxSlugLen {
		return "Slug is too long (max 200 characters)."
	}
	if utf8.RuneCountInString(description) > maxDescLen {
		return "Description is too long (max 2,000 characters)."
	}
	return ""
}

// validateUser checks user creation inputs and returns the first error found.
func validateUser(email, password, displayName string) string {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return "A valid email address is required."
	}
	if len(password) < 8 {
		return "Password must be at least 8 characters."
	}
	if utf8.RuneCountInString(displayName) > maxNameLen {
		return "Display name is too long (max 200 characters)."
	}
	return ""
}
