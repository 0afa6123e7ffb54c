package postgresql

import (
	"context"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
)

// CreateEvent appends an activity wall row.
func (s *ProjectStore) CreateEvent(ctx context.Context, e *models.Event) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "events",
		[]string{"creation_user", "creation_time", "type", "title", "message", "data"},
		[]any{e.CreationUser, e.CreationTime, e.Type, e.Title, e.Message, orJSON(e.Data, "{}")})
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

// ListEvents returns activity wall rows, newest first.
func (s *ProjectStore) ListEvents(ctx context.Context, limit int) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT id, creation_user, creation_time, type, title, message, data
		 FROM events ORDER BY creation_time DESC LIMIT $1`, limit)
}

// CreateProgressEvent records one stats scheduler snapshot.
func (s *ProjectStore) CreateProgressEvent(ctx context.Context, p *models.ProgressEvent) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "progress_events",
		[]string{"creation_time", "stage_id", "state", "work_time_delta"},
		[]any{p.CreationTime, p.StageID, p.State, p.WorkTimeDelta})
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

// ListProgressEvents returns the snapshots of one stage, oldest first.
func (s *ProjectStore) ListProgressEvents(ctx context.Context, stageID int64) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT id, creation_time, stage_id, state, work_time_delta
		 FROM progress_events WHERE stage_id = $1 ORDER BY creation_time`, stageID)
}

// AddStageWorkTime accumulates seconds onto a stage's work_time counter.
func (s *ProjectStore) AddStageWorkTime(ctx context.Context, stageID, seconds int64) apperrors.Error {
	_, err := s.pool.DB().ExecContext(ctx,
		`UPDATE stages SET work_time = work_time + $1 WHERE id = $2`, seconds, stageID)
	if err != nil {
		return dbmanager.TranslateError(err)
	}
	return nil
}

// AddWorkEnvWorkTime accumulates seconds onto a work environment.
func (s *ProjectStore) AddWorkEnvWorkTime(ctx context.Context, workEnvID, seconds int64) apperrors.Error {
	_, err := s.pool.DB().ExecContext(ctx,
		`UPDATE work_envs SET work_time = work_time + $1 WHERE id = $2`, seconds, workEnvID)
	if err != nil {
		return dbmanager.TranslateError(err)
	}
	return nil
}

// GetSetting returns one project_settings value.
func (s *ProjectStore) GetSetting(ctx context.Context, key string) (string, apperrors.Error) {
	var value string
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT value FROM project_settings WHERE setting = $1`, key).Scan(&value)
	if err != nil {
		return "", dbmanager.TranslateError(err)
	}
	return value, nil
}

// SetSetting upserts one project_settings value.
func (s *ProjectStore) SetSetting(ctx context.Context, key, value string) apperrors.Error {
	_, err := s.pool.DB().ExecContext(ctx,
		`INSERT INTO project_settings (setting, value) VALUES ($1, $2)
		 ON CONFLICT (setting) DO UPDATE SET value = $2`, key, value)
	if err != nil {
		return dbmanager.TranslateError(err)
	}
	return nil
}

// UpsertAssetPreview records the per-asset-stage preview image.
func (s *ProjectStore) UpsertAssetPreview(ctx context.Context, p *models.AssetPreview) apperrors.Error {
	_, err := s.pool.DB().ExecContext(ctx,
		`INSERT INTO assets_preview (asset_id, stage_name, preview_path, manual_path)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (asset_id, stage_name)
		 DO UPDATE SET preview_path = $3, manual_path = $4`,
		p.AssetID, p.StageName, p.PreviewPath, p.ManualPath)
	if err != nil {
		return dbmanager.TranslateError(err)
	}
	return nil
}

// ListTagGroups returns the named mention groups.
func (s *ProjectStore) ListTagGroups(ctx context.Context) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT id, name, user_ids FROM tag_groups ORDER BY name`)
}

// CreateTagGroup creates a named mention group.
func (s *ProjectStore) CreateTagGroup(ctx context.Context, t *models.TagGroup) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "tag_groups",
		[]string{"name", "user_ids"},
		[]any{t.Name, orJSON(t.UserIDs, "[]")})
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

// CreatePlaylist saves a playlist row.
func (s *ProjectStore) CreatePlaylist(ctx context.Context, p *models.Playlist) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "playlists",
		[]string{"name", "creation_user", "creation_time", "data", "thumbnail_path",
			"last_save_user", "last_save_time"},
		[]any{p.Name, p.CreationUser, p.CreationTime, orJSON(p.Data, "{}"),
			p.ThumbnailPath, p.LastSaveUser, p.LastSaveTime})
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

// ListPlaylists returns every playlist.
func (s *ProjectStore) ListPlaylists(ctx context.Context) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT id, name, creation_user, creation_time, data, thumbnail_path,
			last_save_user, last_save_time
		 FROM playlists ORDER BY name`)
}
