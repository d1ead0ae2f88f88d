// Package repository provides data access layer implementations for the application.
// Every repository has a rest implementation over the hosted API and a GORM
// implementation for direct database access.
package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"nexora/internal/remote"
)

// Sentinel errors shared by both backends.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

const pgUniqueViolation = "23505"

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == pgUniqueViolation
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}

// translate maps backend errors onto the package sentinels, keeping the
// original error otherwise so its message reaches the caller unchanged.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound), remote.IsNotFound(err):
		return ErrNotFound
	case isUniqueConstraintError(err):
		return errors.Join(ErrDuplicate, err)
	default:
		return err
	}
}
