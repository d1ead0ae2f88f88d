package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexora/internal/config"
	"nexora/internal/models"
)

func TestDialector(t *testing.T) {
	_, err := Dialector(&config.Config{DataBackend: config.BackendREST})
	assert.Error(t, err)

	d, err := Dialector(&config.Config{DataBackend: config.BackendPostgres, DatabaseURL: "postgres://localhost/nexora"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = Dialector(&config.Config{DataBackend: config.BackendSQLite, DatabaseURL: "file.db"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())
}

func TestConnect_SQLiteMigratesSchema(t *testing.T) {
	cfg := &config.Config{
		Env:         "test",
		DataBackend: config.BackendSQLite,
		DatabaseURL: filepath.Join(t.TempDir(), "nexora.db"),
	}
	db, err := Connect(cfg)
	require.NoError(t, err)
	defer func() { _ = Close(db) }()

	for _, table := range []string{"communities", "posts", "comments", "likes"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.False(t, db.Migrator().HasColumn(&models.Post{}, "like_count"), "counts are computed, not stored")
	assert.True(t, db.Migrator().HasIndex(&models.Like{}, "idx_likes_post_user"))
}
