package postgresql

import (
	"context"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
)

// CreateSoftware registers a DCC for the project.
func (s *ProjectStore) CreateSoftware(ctx context.Context, sw *models.Software) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "softwares",
		[]string{"name", "path", "additionnal_env", "additionnal_scripts",
			"file_command", "no_file_command"},
		[]any{sw.Name, sw.Path, orJSON(sw.AdditionnalEnv, "{}"),
			orJSON(sw.AdditionnalScripts, "[]"), sw.FileCommand, sw.NoFileCommand})
	if err != nil {
		return 0, err
	}
	sw.ID = id
	return id, nil
}

const softwareColumns = `id, name, path, additionnal_env, additionnal_scripts,
	file_command, no_file_command`

func scanSoftware(scan func(dest ...any) error) (*models.Software, error) {
	var sw models.Software
	err := scan(&sw.ID, &sw.Name, &sw.Path, &sw.AdditionnalEnv,
		&sw.AdditionnalScripts, &sw.FileCommand, &sw.NoFileCommand)
	if err != nil {
		return nil, err
	}
	return &sw, nil
}

// GetSoftware fetches a software by id.
func (s *ProjectStore) GetSoftware(ctx context.Context, id int64) (*models.Software, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+softwareColumns+` FROM softwares WHERE id = $1`, id)
	sw, err := scanSoftware(row.Scan)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return sw, nil
}

// GetSoftwareByName fetches a software by name.
func (s *ProjectStore) GetSoftwareByName(ctx context.Context, name string) (*models.Software, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+softwareColumns+` FROM softwares WHERE name = $1`, name)
	sw, err := scanSoftware(row.Scan)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return sw, nil
}

// UpdateSoftware sets columns on a software row.
func (s *ProjectStore) UpdateSoftware(ctx context.Context, id int64, sets map[string]any) apperrors.Error {
	return updateColumns(ctx, s.pool.DB(), "softwares", id, sets)
}

// ListSoftwares returns every configured DCC.
func (s *ProjectStore) ListSoftwares(ctx context.Context) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT `+softwareColumns+` FROM softwares ORDER BY name`)
}

// SetExtension records the default save extension for a stage x software
// pair.
func (s *ProjectStore) SetExtension(ctx context.Context, stage string, softwareID int64, extension string) apperrors.Error {
	_, err := s.pool.DB().ExecContext(ctx,
		`INSERT INTO extensions (stage, software_id, extension) VALUES ($1, $2, $3)
		 ON CONFLICT (stage, software_id) DO UPDATE SET extension = $3`,
		stage, softwareID, extension)
	if err != nil {
		return dbmanager.TranslateError(err)
	}
	return nil
}

// GetExtension returns the default save extension of a stage x software
// pair.
func (s *ProjectStore) GetExtension(ctx context.Context, stage string, softwareID int64) (string, apperrors.Error) {
	var ext string
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT extension FROM extensions WHERE stage = $1 AND software_id = $2`,
		stage, softwareID).Scan(&ext)
	if err != nil {
		return "", dbmanager.TranslateError(err)
	}
	return ext, nil
}

// CreateShelfScript records a user-added shelf script.
func (s *ProjectStore) CreateShelfScript(ctx context.Context, sc *models.ShelfScript) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "shelf_scripts",
		[]string{"creation_user", "creation_time", "name", "file_path", "help",
			"only_subprocess", "icon"},
		[]any{sc.CreationUser, sc.CreationTime, sc.Name, sc.FilePath, sc.Help,
			sc.OnlySubprocess, sc.Icon})
	if err != nil {
		return 0, err
	}
	sc.ID = id
	return id, nil
}

// ListShelfScripts returns every shelf script.
func (s *ProjectStore) ListShelfScripts(ctx context.Context) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT id, creation_user, creation_time, name, file_path, help,
			only_subprocess, icon
		 FROM shelf_scripts ORDER BY name`)
}
