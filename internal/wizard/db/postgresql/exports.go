package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
)

// CreateExport inserts an export group under a stage.
func (s *ProjectStore) CreateExport(ctx context.Context, e *models.Export) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "exports",
		[]string{"name", "creation_user", "creation_time", "variant_id", "path"},
		[]any{e.Name, e.CreationUser, e.CreationTime, e.VariantID, e.Path})
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

// GetExport fetches one export with its default version pointer.
func (s *ProjectStore) GetExport(ctx context.Context, id int64) (*models.Export, apperrors.Error) {
	var e models.Export
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT id, name, creation_user, creation_time, variant_id, default_version_id, path
		 FROM exports WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.CreationUser, &e.CreationTime, &e.VariantID,
			&e.DefaultVersionID, &e.Path)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	e.ParentID = e.VariantID
	return &e, nil
}

// SetDefaultExportVersion repoints the export's default. The version must
// belong to the export; 0 clears the pointer.
func (s *ProjectStore) SetDefaultExportVersion(ctx context.Context, exportID, versionID int64) apperrors.Error {
	if versionID != 0 {
		var owner int64
		err := s.pool.DB().QueryRowContext(ctx,
			`SELECT export_id FROM export_versions WHERE id = $1`, versionID).Scan(&owner)
		if err != nil {
			return dbmanager.TranslateError(err)
		}
		if owner != exportID {
			return dberror.ErrInvalidInput.Msg("version does not belong to this export")
		}
	}
	return updateColumns(ctx, s.pool.DB(), "exports", exportID, map[string]any{
		"default_version_id": versionID,
	})
}

// NextExportVersion mirrors NextWorkVersion for export numbering.
func (s *ProjectStore) NextExportVersion(ctx context.Context, exportID int64, fn func(tx *sql.Tx, name string) apperrors.Error) apperrors.Error {
	return s.pool.AdvisoryTx(ctx, advisoryExportVersions|exportID, func(tx *sql.Tx) apperrors.Error {
		var last sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT MAX(name::integer) FROM export_versions WHERE export_id = $1`,
			exportID).Scan(&last)
		if err != nil {
			return dbmanager.TranslateError(err)
		}
		return fn(tx, fmt.Sprintf("%04d", last.Int64+1))
	})
}

// InsertExportVersion inserts an export version row on tx.
func InsertExportVersion(ctx context.Context, tx *sql.Tx, v *models.ExportVersion) (int64, apperrors.Error) {
	id, err := insertRow(ctx, tx, "export_versions",
		[]string{"name", "creation_user", "creation_time", "comment", "export_id",
			"work_version_id", "files", "path"},
		[]any{v.Name, v.CreationUser, v.CreationTime, v.Comment, v.ExportID,
			v.WorkVersionID, v.Files, v.Path})
	if err != nil {
		return 0, err
	}
	v.ID = id
	return id, nil
}

const exportVersionColumns = `id, name, creation_user, creation_time, comment, export_id,
	work_version_id, files, path`

func scanExportVersion(scan func(dest ...any) error) (*models.ExportVersion, error) {
	var v models.ExportVersion
	err := scan(&v.ID, &v.Name, &v.CreationUser, &v.CreationTime, &v.Comment,
		&v.ExportID, &v.WorkVersionID, &v.Files, &v.Path)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetExportVersion fetches one export version.
func (s *ProjectStore) GetExportVersion(ctx context.Context, id int64) (*models.ExportVersion, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+exportVersionColumns+` FROM export_versions WHERE id = $1`, id)
	v, err := scanExportVersion(row.Scan)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return v, nil
}

// ListExportVersions returns the versions of an export ordered by name.
func (s *ProjectStore) ListExportVersions(ctx context.Context, exportID int64) ([]*models.ExportVersion, apperrors.Error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT `+exportVersionColumns+` FROM export_versions
		 WHERE export_id = $1 ORDER BY name`, exportID)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	defer rows.Close()
	var out []*models.ExportVersion
	for rows.Next() {
		v, err := scanExportVersion(rows.Scan)
		if err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		out = append(out, v)
	}
	return out, nil
}

// LastExportVersion returns the highest-numbered version of an export.
func (s *ProjectStore) LastExportVersion(ctx context.Context, exportID int64) (*models.ExportVersion, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+exportVersionColumns+` FROM export_versions
		 WHERE export_id = $1 ORDER BY name::integer DESC LIMIT 1`, exportID)
	v, err := scanExportVersion(row.Scan)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return v, nil
}

// DeleteExportVersion removes one export version row.
func (s *ProjectStore) DeleteExportVersion(ctx context.Context, id int64) apperrors.Error {
	return deleteRow(ctx, s.pool.DB(), "export_versions", id)
}

// CreateVideo records an encoded proxy for an export version.
func (s *ProjectStore) CreateVideo(ctx context.Context, v *models.Video) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "videos",
		[]string{"name", "creation_user", "creation_time", "export_version_id", "file_path"},
		[]any{v.Name, v.CreationUser, v.CreationTime, v.ExportVersionID, v.FilePath})
	if err != nil {
		return 0, err
	}
	v.ID = id
	return id, nil
}

// ListVideos returns the videos of an export version.
func (s *ProjectStore) ListVideos(ctx context.Context, exportVersionID int64) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT id, name, creation_user, creation_time, export_version_id, file_path
		 FROM videos WHERE export_version_id = $1 ORDER BY id`, exportVersionID)
}

// DeleteVideo removes one video row.
func (s *ProjectStore) DeleteVideo(ctx context.Context, id int64) apperrors.Error {
	return deleteRow(ctx, s.pool.DB(), "videos", id)
}
