// Package datastore provides error handling helpers for database operations
package datastore

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tphakala/pneumodetect/internal/errors"
)

var (
	// ErrNotFound is returned when a requested record does not exist or is
	// not visible to the caller.
	ErrNotFound = errors.NewStd("record not found")

	// ErrUsernameTaken is returned when a username or email is already registered.
	ErrUsernameTaken = errors.NewStd("username already exists")

	// ErrNotOpen is returned when the store is used before Open.
	ErrNotOpen = errors.NewStd("database connection is not initialized")
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError creates a validation error for rejected input
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// notFoundError wraps ErrNotFound so errors.Is works on the result.
func notFoundError(entity string, id any) error {
	return errors.New(fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("entity", entity).
		Build()
}

// conflictError wraps ErrUsernameTaken.
func conflictError(username string) error {
	return errors.New(fmt.Errorf("%q: %w", username, ErrUsernameTaken)).
		Component("datastore").
		Category(errors.CategoryConflict).
		Context("operation", "create_user").
		Build()
}

// isUniqueViolation reports duplicate key errors. GORM translates them
// when TranslateError is set; the string checks cover driver versions that
// do not.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
