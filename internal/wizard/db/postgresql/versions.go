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

// Advisory lock key spaces. Version numbering serializes per parent; the
// table tag keeps work and export parents from colliding.
const (
	advisoryWorkVersions   = int64(1) << 40
	advisoryExportVersions = int64(2) << 40
)

// NextWorkVersion runs fn with the next zero-padded version name for a
// work_env, holding the advisory lock for the parent so concurrent
// callers can never observe the same name. fn inserts the row on the
// provided transaction.
func (s *ProjectStore) NextWorkVersion(ctx context.Context, workEnvID int64, fn func(tx *sql.Tx, name string) apperrors.Error) apperrors.Error {
	return s.pool.AdvisoryTx(ctx, advisoryWorkVersions|workEnvID, func(tx *sql.Tx) apperrors.Error {
		var last sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT MAX(name::integer) FROM work_versions WHERE work_env_id = $1`,
			workEnvID).Scan(&last)
		if err != nil {
			return dbmanager.TranslateError(err)
		}
		return fn(tx, fmt.Sprintf("%04d", last.Int64+1))
	})
}

// InsertWorkVersion inserts a work version row on tx and returns its id.
func InsertWorkVersion(ctx context.Context, tx *sql.Tx, v *models.WorkVersion) (int64, apperrors.Error) {
	id, err := insertRow(ctx, tx, "work_versions",
		[]string{"name", "creation_user", "creation_time", "comment", "work_env_id",
			"file_path", "screenshot_path", "thumbnail_path"},
		[]any{v.Name, v.CreationUser, v.CreationTime, v.Comment, v.WorkEnvID,
			v.FilePath, v.ScreenshotPath, v.ThumbnailPath})
	if err != nil {
		return 0, err
	}
	v.ID = id
	return id, nil
}

const workVersionColumns = `id, name, creation_user, creation_time, comment, work_env_id,
	file_path, screenshot_path, thumbnail_path`

func scanWorkVersion(scan func(dest ...any) error) (*models.WorkVersion, error) {
	var v models.WorkVersion
	err := scan(&v.ID, &v.Name, &v.CreationUser, &v.CreationTime, &v.Comment,
		&v.WorkEnvID, &v.FilePath, &v.ScreenshotPath, &v.ThumbnailPath)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetWorkVersion fetches one work version.
func (s *ProjectStore) GetWorkVersion(ctx context.Context, id int64) (*models.WorkVersion, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+workVersionColumns+` FROM work_versions WHERE id = $1`, id)
	v, err := scanWorkVersion(row.Scan)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return v, nil
}

// ListWorkVersions returns the versions of a work_env ordered by name.
func (s *ProjectStore) ListWorkVersions(ctx context.Context, workEnvID int64) ([]*models.WorkVersion, apperrors.Error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT `+workVersionColumns+` FROM work_versions
		 WHERE work_env_id = $1 ORDER BY name`, workEnvID)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	defer rows.Close()
	var out []*models.WorkVersion
	for rows.Next() {
		v, err := scanWorkVersion(rows.Scan)
		if err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		out = append(out, v)
	}
	return out, nil
}

// LastWorkVersion returns the highest-numbered version of a work_env.
func (s *ProjectStore) LastWorkVersion(ctx context.Context, workEnvID int64) (*models.WorkVersion, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+workVersionColumns+` FROM work_versions
		 WHERE work_env_id = $1 ORDER BY name::integer DESC LIMIT 1`, workEnvID)
	v, err := scanWorkVersion(row.Scan)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return v, nil
}

// UpdateWorkVersion sets columns on a work version row.
func (s *ProjectStore) UpdateWorkVersion(ctx context.Context, id int64, sets map[string]any) apperrors.Error {
	return updateColumns(ctx, s.pool.DB(), "work_versions", id, sets)
}

// DeleteWorkVersion removes one work version row.
func (s *ProjectStore) DeleteWorkVersion(ctx context.Context, id int64) apperrors.Error {
	return deleteRow(ctx, s.pool.DB(), "work_versions", id)
}
