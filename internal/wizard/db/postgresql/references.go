package postgresql

import (
	"context"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
)

// CreateReference points a work_env at an export.
func (s *ProjectStore) CreateReference(ctx context.Context, r *models.Reference) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "references_data",
		[]string{"creation_user", "creation_time", "work_env_id", "export_id",
			"export_version_id", "namespace", "auto_update"},
		[]any{r.CreationUser, r.CreationTime, r.WorkEnvID, r.ExportID,
			r.ExportVersionID, r.Namespace, r.AutoUpdate})
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

const referenceColumns = `id, creation_user, creation_time, work_env_id, export_id,
	export_version_id, namespace, auto_update`

func scanReference(scan func(dest ...any) error) (*models.Reference, error) {
	var r models.Reference
	err := scan(&r.ID, &r.CreationUser, &r.CreationTime, &r.WorkEnvID, &r.ExportID,
		&r.ExportVersionID, &r.Namespace, &r.AutoUpdate)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReference fetches one reference.
func (s *ProjectStore) GetReference(ctx context.Context, id int64) (*models.Reference, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+referenceColumns+` FROM references_data WHERE id = $1`, id)
	r, err := scanReference(row.Scan)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return r, nil
}

// ListReferences returns the direct references of a work_env.
func (s *ProjectStore) ListReferences(ctx context.Context, workEnvID int64) ([]*models.Reference, apperrors.Error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT `+referenceColumns+` FROM references_data
		 WHERE work_env_id = $1 ORDER BY id`, workEnvID)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	defer rows.Close()
	var out []*models.Reference
	for rows.Next() {
		r, err := scanReference(rows.Scan)
		if err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		out = append(out, r)
	}
	return out, nil
}

// UpdateReferencePin repins a reference; 0 makes it follow the export
// default again.
func (s *ProjectStore) UpdateReferencePin(ctx context.Context, id, exportVersionID int64) apperrors.Error {
	return updateColumns(ctx, s.pool.DB(), "references_data", id, map[string]any{
		"export_version_id": exportVersionID,
	})
}

// UpdateReference changes the namespace or the auto_update flag.
func (s *ProjectStore) UpdateReference(ctx context.Context, id int64, namespace string, autoUpdate bool) apperrors.Error {
	return updateColumns(ctx, s.pool.DB(), "references_data", id, map[string]any{
		"namespace":   namespace,
		"auto_update": autoUpdate,
	})
}

// DeleteReference removes a reference row.
func (s *ProjectStore) DeleteReference(ctx context.Context, id int64) apperrors.Error {
	return deleteRow(ctx, s.pool.DB(), "references_data", id)
}

// CreateGroup creates a named reference group.
func (s *ProjectStore) CreateGroup(ctx context.Context, g *models.Group) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "groups",
		[]string{"name", "creation_user", "creation_time", "color"},
		[]any{g.Name, g.CreationUser, g.CreationTime, g.Color})
	if err != nil {
		return 0, err
	}
	g.ID = id
	return id, nil
}

// GetGroup fetches a group row.
func (s *ProjectStore) GetGroup(ctx context.Context, id int64) (*models.Group, apperrors.Error) {
	var g models.Group
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT id, name, creation_user, creation_time, color FROM groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.CreationUser, &g.CreationTime, &g.Color)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return &g, nil
}

// DeleteGroup removes a group row.
func (s *ProjectStore) DeleteGroup(ctx context.Context, id int64) apperrors.Error {
	return deleteRow(ctx, s.pool.DB(), "groups", id)
}

// CreateGroupedReference adds an export to a group.
func (s *ProjectStore) CreateGroupedReference(ctx context.Context, r *models.GroupedReference) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "grouped_references",
		[]string{"creation_user", "creation_time", "group_id", "export_id",
			"export_version_id", "namespace", "auto_update"},
		[]any{r.CreationUser, r.CreationTime, r.GroupID, r.ExportID,
			r.ExportVersionID, r.Namespace, r.AutoUpdate})
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

// ListGroupedReferences returns the references owned by a group.
func (s *ProjectStore) ListGroupedReferences(ctx context.Context, groupID int64) ([]*models.GroupedReference, apperrors.Error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT id, creation_user, creation_time, group_id, export_id,
			export_version_id, namespace, auto_update
		 FROM grouped_references WHERE group_id = $1 ORDER BY id`, groupID)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	defer rows.Close()
	var out []*models.GroupedReference
	for rows.Next() {
		var r models.GroupedReference
		if err := rows.Scan(&r.ID, &r.CreationUser, &r.CreationTime, &r.GroupID,
			&r.ExportID, &r.ExportVersionID, &r.Namespace, &r.AutoUpdate); err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		out = append(out, &r)
	}
	return out, nil
}

// CreateReferencedGroup subscribes a work_env to a group.
func (s *ProjectStore) CreateReferencedGroup(ctx context.Context, r *models.ReferencedGroup) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "referenced_groups",
		[]string{"creation_user", "creation_time", "work_env_id", "group_id"},
		[]any{r.CreationUser, r.CreationTime, r.WorkEnvID, r.GroupID})
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

// ListReferencedGroups returns the group subscriptions of a work_env.
func (s *ProjectStore) ListReferencedGroups(ctx context.Context, workEnvID int64) ([]*models.ReferencedGroup, apperrors.Error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT id, creation_user, creation_time, work_env_id, group_id
		 FROM referenced_groups WHERE work_env_id = $1 ORDER BY id`, workEnvID)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	defer rows.Close()
	var out []*models.ReferencedGroup
	for rows.Next() {
		var r models.ReferencedGroup
		if err := rows.Scan(&r.ID, &r.CreationUser, &r.CreationTime, &r.WorkEnvID, &r.GroupID); err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		out = append(out, &r)
	}
	return out, nil
}

// DeleteReferencedGroup unsubscribes a work_env from a group.
func (s *ProjectStore) DeleteReferencedGroup(ctx context.Context, workEnvID, groupID int64) apperrors.Error {
	_, err := s.pool.DB().ExecContext(ctx,
		`DELETE FROM referenced_groups WHERE work_env_id = $1 AND group_id = $2`,
		workEnvID, groupID)
	if err != nil {
		return dbmanager.TranslateError(err)
	}
	return nil
}

// WorkEnvOfWorkVersion resolves the owning work_env of a work version,
// used by the reference cycle check.
func (s *ProjectStore) WorkEnvOfWorkVersion(ctx context.Context, workVersionID int64) (int64, apperrors.Error) {
	var id int64
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT work_env_id FROM work_versions WHERE id = $1`, workVersionID).Scan(&id)
	if err != nil {
		return 0, dbmanager.TranslateError(err)
	}
	return id, nil
}
