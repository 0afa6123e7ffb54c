package assets

import (
	"net/http"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
)

var (
	ErrAssets       apperrors.Error = apperrors.New("assets error").SetStatusCode(http.StatusInternalServerError)
	ErrValidation   apperrors.Error = ErrAssets.New("validation error").SetStatusCode(http.StatusBadRequest)
	ErrConflict     apperrors.Error = ErrAssets.New("conflict").SetStatusCode(http.StatusConflict)
	ErrLockConflict apperrors.Error = ErrAssets.New("work environment is locked by another user").SetStatusCode(http.StatusConflict)
	ErrCycle        apperrors.Error = ErrAssets.New("reference would create a cycle").SetStatusCode(http.StatusBadRequest)
	ErrPermission   apperrors.Error = ErrAssets.New("permission denied").SetStatusCode(http.StatusForbidden)
	ErrArchive      apperrors.Error = ErrAssets.New("archive error")
	ErrRename       apperrors.Error = ErrAssets.New("rename error")
)
