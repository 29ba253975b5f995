// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	cardrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/card/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
)

// OpenSQLite returns a private in-memory SQLite database with the users and
// payment_cards tables created. It is closed when the test ends.
func OpenSQLite(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		DSN:    ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	EnsureSchema(t, db)
	return db
}

// EnsureSchema creates the service tables on db.
func EnsureSchema(t testing.TB, db *sqlx.DB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, userrepo.NewUserRepo(db).EnsureTable(ctx))
	require.NoError(t, cardrepo.NewCardRepo(db).EnsureTable(ctx))
}
