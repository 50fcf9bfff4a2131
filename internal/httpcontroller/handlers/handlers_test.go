package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/tphakala/pneumodetect/internal/classifier"
	"github.com/tphakala/pneumodetect/internal/datastore"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/intake"
)

func enhanced(err error, category errors.ErrorCategory) error {
	return errors.New(err).Component("test").Category(category).Build()
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"handler error", &HandlerError{Code: http.StatusTeapot}, http.StatusTeapot},
		{"echo error", echo.ErrNotFound, http.StatusNotFound},
		{"wrapped echo error", fmt.Errorf("route: %w", echo.ErrForbidden), http.StatusForbidden},
		{"validation", enhanced(intake.ErrUnsupportedExtension, errors.CategoryValidation), http.StatusBadRequest},
		{"auth", enhanced(errors.NewStd("bad"), errors.CategoryAuth), http.StatusUnauthorized},
		{"not found", enhanced(datastore.ErrNotFound, errors.CategoryNotFound), http.StatusNotFound},
		{"conflict", enhanced(datastore.ErrUsernameTaken, errors.CategoryConflict), http.StatusConflict},
		{"limit", enhanced(errors.NewStd("slow down"), errors.CategoryLimit), http.StatusTooManyRequests},
		{"disk", enhanced(intake.ErrInsufficientSpace, errors.CategoryDiskUsage), http.StatusInsufficientStorage},
		{"database", enhanced(errors.NewStd("locked"), errors.CategoryDatabase), http.StatusInternalServerError},
		{"plain", errors.NewStd("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	t.Parallel()

	err := enhanced(errors.NewStd("dial tcp 10.0.0.5:3306: connection refused"), errors.CategoryDatabase)
	assert.Equal(t, "An unexpected error occurred", publicMessage(err, StatusFor(err)))

	assert.Equal(t, "Page not found", publicMessage(enhanced(datastore.ErrNotFound, errors.CategoryNotFound), http.StatusNotFound))
	assert.Equal(t, "Invalid CSRF token", publicMessage(echo.NewHTTPError(http.StatusForbidden, "Invalid CSRF token"), http.StatusForbidden))
	assert.Equal(t, "nope", publicMessage(&HandlerError{Message: "nope", Code: http.StatusBadRequest}, http.StatusBadRequest))
}

func TestUploadRejection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err     error
		message string
		code    int
	}{
		{intake.ErrNoFileProvided, "No file part", http.StatusBadRequest},
		{intake.ErrEmptyFilename, "No selected file", http.StatusBadRequest},
		{intake.ErrUnsupportedExtension, "Invalid file type", http.StatusBadRequest},
		{intake.ErrFileTooLarge, "File too large", http.StatusRequestEntityTooLarge},
		{echo.ErrStatusRequestEntityTooLarge, "File too large", http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 10}, "File too large", http.StatusRequestEntityTooLarge},
		{intake.ErrInsufficientSpace, "Server storage is full, please try again later", http.StatusInsufficientStorage},
		{classifier.ErrCorruptImage, "The uploaded file is not a readable image", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			t.Parallel()
			r, ok := uploadRejection(enhanced(tt.err, errors.CategoryValidation))
			assert.True(t, ok)
			assert.Equal(t, tt.message, r.message)
			assert.Equal(t, tt.code, r.code)
			assert.NotEmpty(t, r.reason)
		})
	}

	_, ok := uploadRejection(errors.NewStd("model exploded"))
	assert.False(t, ok, "server side failures are not rejections")
}
