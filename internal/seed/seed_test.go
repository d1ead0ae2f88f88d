package seed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nexora/internal/database"
	"nexora/internal/models"
	"nexora/internal/remote"
	"nexora/internal/repository"
	"nexora/internal/testutil"
)

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "seed.db")))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestSeeder_RunAgainstDatabase(t *testing.T) {
	db := setupSQLite(t)
	opts := Options{Communities: 3, Posts: 10, CommentsPerPost: 3, LikesPerPost: 4, Users: 5, Seed: 42}

	sum, err := NewSeeder(repository.NewGormSet(db), opts.Seed).Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Communities)
	assert.Equal(t, 10, sum.Posts)
	assert.EqualValues(t, sum.Communities, count(t, db, &models.Community{}))
	assert.EqualValues(t, sum.Posts, count(t, db, &models.Post{}))
	assert.EqualValues(t, sum.Comments, count(t, db, &models.Comment{}))
	assert.EqualValues(t, sum.Likes, count(t, db, &models.Like{}))
	assert.LessOrEqual(t, sum.Likes, opts.Posts*opts.LikesPerPost)
}

func TestSeeder_RunAgainstRemote(t *testing.T) {
	fake := testutil.NewFakeRemote()
	t.Cleanup(fake.Close)
	client, err := remote.NewClient(remote.Options{BaseURL: fake.URL(), APIKey: "anon"})
	require.NoError(t, err)

	opts := Options{Communities: 2, Posts: 4, Users: 3, Seed: 7}
	sum, err := NewSeeder(repository.NewRESTSet(client), opts.Seed).Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Len(t, fake.Rows("communities"), 2)
	assert.Len(t, fake.Rows("posts"), 4)
	assert.Zero(t, sum.Comments)
	assert.Zero(t, sum.Likes)
}

func TestSeeder_StopsOnInsertError(t *testing.T) {
	fake := testutil.NewFakeRemote()
	t.Cleanup(fake.Close)
	client, err := remote.NewClient(remote.Options{BaseURL: fake.URL(), APIKey: "anon"})
	require.NoError(t, err)
	fake.Fail("insert posts", "permission denied for table posts")

	_, err = NewSeeder(repository.NewRESTSet(client), 1).Run(context.Background(), Options{Communities: 1, Posts: 3, Users: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Equal(t, 1, fake.Calls("insert posts"))
}

func TestClean(t *testing.T) {
	db := setupSQLite(t)
	_, err := NewSeeder(repository.NewGormSet(db), 3).Run(context.Background(), DefaultOptions)
	require.NoError(t, err)

	require.NoError(t, Clean(db))
	assert.Zero(t, count(t, db, &models.Post{}))
	assert.Zero(t, count(t, db, &models.Community{}))
	assert.Zero(t, count(t, db, &models.Comment{}))
	assert.Zero(t, count(t, db, &models.Like{}))
}
