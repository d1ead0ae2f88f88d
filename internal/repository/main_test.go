package repository

import (
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nexora/internal/database"
	"nexora/internal/remote"
	"nexora/internal/testutil"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	return gormDB, mock
}

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "repo.db")))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func setupREST(t *testing.T) (Set, *testutil.FakeRemote) {
	t.Helper()
	fake := testutil.NewFakeRemote()
	t.Cleanup(fake.Close)
	client, err := remote.NewClient(remote.Options{BaseURL: fake.URL(), APIKey: "anon"})
	require.NoError(t, err)
	return NewRESTSet(client), fake
}
