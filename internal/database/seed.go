package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// Seed populates the database with initial development data: a default
// admin user and a small sample taxonomy with correct paths and depths.
// It is a no-op when users already exist.
func Seed(db *sql.DB) error {
	// Check if any users exist already.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("seed check users: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	// Hash the default admin password.
	hash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("seed bcrypt: %w", err)
	}

	// Insert default admin user. 2FA is not enabled — they must set it up
	// on first login.
	_, err = db.Exec(`
		INSERT INTO users (email, password_hash, display_name, role, totp_enabled)
		VALUES ($1, $2, $3, $4, $5)
	`, "admin@taxopress.local", string(hash), "Admin", "admin", false)
	if err != nil {
		return fmt.Errorf("seed insert admin: %w", err)
	}

	if err := seedCategories(db); err != nil {
		return err
	}

	slog.Info("database seeded with default admin user",
		"email", "admin@taxopress.local",
		"password", "admin",
	)

	return nil
}

// seedCategories inserts a sample taxonomy. Paths are written in the same
// statement batch that created the ids, keeping the two-phase construction
// invisible to readers.
func seedCategories(db *sql.DB) error {
	type node struct {
		name, slug string
		children   []node
	}
	sample := []node{
		{name: "Electronics", slug: "electronics", children: []node{
			{name: "Phones", slug: "phones"},
			{name: "Laptops", slug: "laptops"},
		}},
		{name: "Home & Garden", slug: "home-garden", children: []node{
			{name: "Furniture", slug: "furniture"},
		}},
	}

	var insert func(n node, parentID, parentPath *string, depth, position int) error
	insert = func(n node, parentID, parentPath *string, depth, position int) error {
		var id string
		err := db.QueryRow(`
			INSERT INTO categories (name, slug, parent_id, depth, position)
			VALUES ($1, $2, $3::uuid, $4, $5)
			RETURNING id
		`, n.name, n.slug, parentID, depth, position).Scan(&id)
		if err != nil {
			return fmt.Errorf("seed category %q: %w", n.name, err)
		}

		path := "/" + id + "/"
		if parentPath != nil {
			path = *parentPath + id + "/"
		}
		if _, err := db.Exec(`UPDATE categories SET path = $1 WHERE id = $2::uuid`, path, id); err != nil {
			return fmt.Errorf("seed category path %q: %w", n.name, err)
		}

		for i, child := range n.children {
			if err := insert(child, &id, &path, depth+1, i); err != nil {
				return err
			}
		}
		return nil
	}

	for i, root := range sample {
		if err := insert(root, nil, nil, 0, i); err != nil {
			return err
		}
	}

	slog.Info("database seeded with sample taxonomy")
	return nil
}
