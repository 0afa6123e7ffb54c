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

// NodeTable identifies one level of the asset graph. ParentCol is empty
// for domains, which are roots.
type NodeTable struct {
	Name      string
	ParentCol string
}

var (
	Domains    = NodeTable{Name: "domains"}
	Categories = NodeTable{Name: "categories", ParentCol: "domain_id"}
	Assets     = NodeTable{Name: "assets", ParentCol: "category_id"}
	Stages     = NodeTable{Name: "stages", ParentCol: "asset_id"}
	Variants   = NodeTable{Name: "variants", ParentCol: "stage_id"}
	WorkEnvs   = NodeTable{Name: "work_envs", ParentCol: "variant_id"}
	Exports    = NodeTable{Name: "exports", ParentCol: "variant_id"}
)

// ChildTables maps each level to the level(s) below it, exports hanging
// off variants next to work_envs.
func ChildTables(t NodeTable) []NodeTable {
	switch t.Name {
	case "domains":
		return []NodeTable{Categories}
	case "categories":
		return []NodeTable{Assets}
	case "assets":
		return []NodeTable{Stages}
	case "stages":
		return []NodeTable{Variants}
	case "variants":
		return []NodeTable{WorkEnvs, Exports}
	default:
		return nil
	}
}

func (t NodeTable) selectColumns() string {
	parent := "0"
	if t.ParentCol != "" {
		parent = t.ParentCol
	}
	return fmt.Sprintf("id, name, creation_user, creation_time, %s, path", parent)
}

func scanNode(row *sql.Row) (*models.Node, apperrors.Error) {
	var n models.Node
	if err := row.Scan(&n.ID, &n.Name, &n.CreationUser, &n.CreationTime, &n.ParentID, &n.Path); err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return &n, nil
}

// CreateNode inserts a plain graph node (domain, category, asset,
// variant). Uniqueness under the parent is enforced by the schema.
func (s *ProjectStore) CreateNode(ctx context.Context, t NodeTable, n *models.Node) (int64, apperrors.Error) {
	cols := []string{"name", "creation_user", "creation_time", "path"}
	vals := []any{n.Name, n.CreationUser, n.CreationTime, n.Path}
	if t.ParentCol != "" {
		cols = append(cols, t.ParentCol)
		vals = append(vals, n.ParentID)
	}
	id, err := insertRow(ctx, s.pool.DB(), t.Name, cols, vals)
	if err != nil {
		return 0, err
	}
	n.ID = id
	return id, nil
}

// GetNode fetches one node by id.
func (s *ProjectStore) GetNode(ctx context.Context, t NodeTable, id int64) (*models.Node, apperrors.Error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", t.selectColumns(), t.Name)
	return scanNode(s.pool.DB().QueryRowContext(ctx, query, id))
}

// GetNodeByName fetches a node by name under a parent. Domains pass
// parentID 0.
func (s *ProjectStore) GetNodeByName(ctx context.Context, t NodeTable, parentID int64, name string) (*models.Node, apperrors.Error) {
	var query string
	var args []any
	if t.ParentCol == "" {
		query = fmt.Sprintf("SELECT %s FROM %s WHERE name = $1", t.selectColumns(), t.Name)
		args = []any{name}
	} else {
		query = fmt.Sprintf("SELECT %s FROM %s WHERE name = $1 AND %s = $2", t.selectColumns(), t.Name, t.ParentCol)
		args = []any{name, parentID}
	}
	return scanNode(s.pool.DB().QueryRowContext(ctx, query, args...))
}

// ListChildren returns the nodes under a parent, creation order.
func (s *ProjectStore) ListChildren(ctx context.Context, t NodeTable, parentID int64) ([]*models.Node, apperrors.Error) {
	var query string
	var args []any
	if t.ParentCol == "" {
		query = fmt.Sprintf("SELECT %s FROM %s ORDER BY id", t.selectColumns(), t.Name)
	} else {
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY id", t.selectColumns(), t.Name, t.ParentCol)
		args = []any{parentID}
	}
	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	defer rows.Close()
	var out []*models.Node
	for rows.Next() {
		var n models.Node
		if err := rows.Scan(&n.ID, &n.Name, &n.CreationUser, &n.CreationTime, &n.ParentID, &n.Path); err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		out = append(out, &n)
	}
	return out, nil
}

// DeleteNode removes one node row. Callers must have archived the
// descendants first; the FK constraints refuse otherwise.
func (s *ProjectStore) DeleteNode(ctx context.Context, t NodeTable, id int64) apperrors.Error {
	return deleteRow(ctx, s.pool.DB(), t.Name, id)
}

// RenameNode sets the name and path of a node and rewrites every
// descendant path column in one transaction.
func (s *ProjectStore) RenameNode(ctx context.Context, t NodeTable, id int64, newName, oldPath, newPath string) apperrors.Error {
	return s.pool.Tx(ctx, func(tx *sql.Tx) apperrors.Error {
		if err := updateColumns(ctx, tx, t.Name, id, map[string]any{"name": newName, "path": newPath}); err != nil {
			return err
		}
		return rewritePathPrefix(ctx, tx, oldPath, newPath)
	})
}

// pathColumns lists every project-relative path column that must follow a
// rename. Export version file lists are stored as basenames so they never
// need rewriting.
var pathColumns = []struct{ table, column string }{
	{"categories", "path"},
	{"assets", "path"},
	{"stages", "path"},
	{"variants", "path"},
	{"work_envs", "path"},
	{"exports", "path"},
	{"export_versions", "path"},
	{"work_versions", "file_path"},
	{"work_versions", "screenshot_path"},
	{"work_versions", "thumbnail_path"},
	{"videos", "file_path"},
}

func rewritePathPrefix(ctx context.Context, tx *sql.Tx, oldPrefix, newPrefix string) apperrors.Error {
	for _, pc := range pathColumns {
		query := fmt.Sprintf(
			`UPDATE %s SET %s = $1 || substr(%s, length($2::text) + 1)
			 WHERE %s = $2 OR %s LIKE $2 || '/%%'`,
			pc.table, pc.column, pc.column, pc.column, pc.column)
		if _, err := tx.ExecContext(ctx, query, newPrefix, oldPrefix); err != nil {
			return dbmanager.TranslateError(err)
		}
	}
	return nil
}

// CreateStage inserts a stage with its assignment defaults.
func (s *ProjectStore) CreateStage(ctx context.Context, st *models.Stage) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "stages",
		[]string{"name", "creation_user", "creation_time", "asset_id", "state",
			"assignment", "priority", "estimated_time", "path"},
		[]any{st.Name, st.CreationUser, st.CreationTime, st.ParentID, st.State,
			st.Assignment, st.Priority, st.EstimatedTime, st.Path})
	if err != nil {
		return 0, err
	}
	st.ID = id
	return id, nil
}

// GetStage fetches a stage with its assignment fields.
func (s *ProjectStore) GetStage(ctx context.Context, id int64) (*models.Stage, apperrors.Error) {
	var st models.Stage
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT id, name, creation_user, creation_time, asset_id, state, assignment,
			priority, estimated_time, work_time, default_variant_id, path
		 FROM stages WHERE id = $1`, id).
		Scan(&st.ID, &st.Name, &st.CreationUser, &st.CreationTime, &st.ParentID,
			&st.State, &st.Assignment, &st.Priority, &st.EstimatedTime, &st.WorkTime,
			&st.DefaultVariantID, &st.Path)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return &st, nil
}

// UpdateStage sets assignment columns on a stage.
func (s *ProjectStore) UpdateStage(ctx context.Context, id int64, sets map[string]any) apperrors.Error {
	return updateColumns(ctx, s.pool.DB(), "stages", id, sets)
}

// ListActiveStages returns stages whose state counts as in progress, for
// the stats scheduler.
func (s *ProjectStore) ListActiveStages(ctx context.Context) ([]*models.Stage, apperrors.Error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT id, name, creation_user, creation_time, asset_id, state, assignment,
			priority, estimated_time, work_time, default_variant_id, path
		 FROM stages WHERE state NOT IN ('done', 'omt') ORDER BY id`)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	defer rows.Close()
	var out []*models.Stage
	for rows.Next() {
		var st models.Stage
		if err := rows.Scan(&st.ID, &st.Name, &st.CreationUser, &st.CreationTime,
			&st.ParentID, &st.State, &st.Assignment, &st.Priority, &st.EstimatedTime,
			&st.WorkTime, &st.DefaultVariantID, &st.Path); err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		out = append(out, &st)
	}
	return out, nil
}

// CreateWorkEnv inserts a work environment under a variant.
func (s *ProjectStore) CreateWorkEnv(ctx context.Context, w *models.WorkEnv) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "work_envs",
		[]string{"name", "creation_user", "creation_time", "variant_id", "software_id", "path"},
		[]any{w.Name, w.CreationUser, w.CreationTime, w.ParentID, w.SoftwareID, w.Path})
	if err != nil {
		return 0, err
	}
	w.ID = id
	return id, nil
}

// GetWorkEnv fetches a work environment with its lock state.
func (s *ProjectStore) GetWorkEnv(ctx context.Context, id int64) (*models.WorkEnv, apperrors.Error) {
	var w models.WorkEnv
	var lockID sql.NullInt64
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT id, name, creation_user, creation_time, variant_id, software_id,
			lock_id, work_time, path
		 FROM work_envs WHERE id = $1`, id).
		Scan(&w.ID, &w.Name, &w.CreationUser, &w.CreationTime, &w.ParentID,
			&w.SoftwareID, &lockID, &w.WorkTime, &w.Path)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	w.LockID = lockID.Int64
	return &w, nil
}

// TryLockWorkEnv acquires the exclusive lock with a CAS from free to
// userID. Re-acquiring an already held lock is a no-op for the holder;
// another holder means ErrAlreadyExists.
func (s *ProjectStore) TryLockWorkEnv(ctx context.Context, id, userID int64) apperrors.Error {
	res, err := s.pool.DB().ExecContext(ctx,
		`UPDATE work_envs SET lock_id = $1
		 WHERE id = $2 AND (lock_id IS NULL OR lock_id = $1)`, userID, id)
	if err != nil {
		return dbmanager.TranslateError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		w, gerr := s.GetWorkEnv(ctx, id)
		if gerr != nil {
			return gerr
		}
		return dberror.ErrAlreadyExists.Msg(fmt.Sprintf("work env locked by user %d", w.LockID))
	}
	return nil
}

// UnlockWorkEnv releases the lock if held by userID. Admins pass
// force=true.
func (s *ProjectStore) UnlockWorkEnv(ctx context.Context, id, userID int64, force bool) apperrors.Error {
	var res sql.Result
	var err error
	if force {
		res, err = s.pool.DB().ExecContext(ctx,
			`UPDATE work_envs SET lock_id = NULL WHERE id = $1`, id)
	} else {
		res, err = s.pool.DB().ExecContext(ctx,
			`UPDATE work_envs SET lock_id = NULL WHERE id = $1 AND lock_id = $2`, id, userID)
	}
	if err != nil {
		return dbmanager.TranslateError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dberror.ErrNotFound.Msg("work env not locked by this user")
	}
	return nil
}
