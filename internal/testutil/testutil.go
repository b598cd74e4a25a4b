// Package testutil builds in-memory storage for package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mbeoliero/trato/internal/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory sqlite database with the messaging schema.
// The pool holds a single connection, so code running inside a transaction
// must only use the transaction handle.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, repository.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewRepos returns repositories over a fresh database without redis
func NewRepos(t testing.TB) *repository.Repositories {
	return repository.NewRepositoriesWithDB(NewDB(t), nil)
}
