// Package dbtest opens throwaway sqlite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/xelth-com/eckbackoffice/internal/config"
	"github.com/xelth-com/eckbackoffice/internal/database"
	"github.com/xelth-com/eckbackoffice/internal/models"
)

// Open returns a migrated database living in the test's temp dir
func Open(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := models.Migrate(db.DB); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// CreateUser inserts an active user holding the given direct permissions
func CreateUser(t *testing.T, db *database.DB, username string, permissions ...string) *models.User {
	t.Helper()
	user := &models.User{
		Username:    username,
		Email:       username + "@example.com",
		Password:    "x",
		IsActive:    true,
		Permissions: permissions,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}
