package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/garyjia/ers-reimbursement/pkg/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestDB opens a migrated SQLite database in a temp dir and seeds users
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "ers.db"),
		MaxOpenConns: 5,
		MaxIdleConns: 5,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(context.Background()))
	seedUsers(t, db)

	return db
}

func seedUsers(t *testing.T, db *database.DB) {
	t.Helper()

	users := []struct {
		username string
		role     string
	}{
		{"alice", "employee"},
		{"bob", "employee"},
		{"admin1", "admin"},
	}
	for _, u := range users {
		_, err := db.ExecContext(context.Background(),
			db.Rebind("INSERT INTO ers_users (username, role) VALUES (?, ?)"), u.username, u.role)
		require.NoError(t, err)
	}
}

func userID(t *testing.T, db *database.DB, username string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowContext(context.Background(),
		db.Rebind("SELECT ers_user_id FROM ers_users WHERE username = ?"), username).Scan(&id)
	require.NoError(t, err)
	return id
}

func strPtr(s string) *string { return &s }
