// Package dberror defines the error taxonomy of the state store access
// layer. Services translate these into their own kinds; nothing below the
// service boundary ever panics across it.
package dberror

import (
	"net/http"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
)

var (
	ErrDatabase        apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)
	ErrAlreadyExists   apperrors.Error = ErrDatabase.New("already exists").SetStatusCode(http.StatusConflict)
	ErrNotFound        apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrFKViolation     apperrors.Error = ErrDatabase.New("foreign key violation").SetStatusCode(http.StatusConflict)
	ErrInvalidInput    apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)
	ErrDatabaseMissing apperrors.Error = ErrDatabase.New("database missing").SetStatusCode(http.StatusNotFound)
	ErrTransport       apperrors.Error = ErrDatabase.New("transport error").SetStatusCode(http.StatusServiceUnavailable)
)
