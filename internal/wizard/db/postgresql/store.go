// Package postgresql implements the typed CRUD surface of the state
// store over the two logical databases.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
)

// RepositoryStore is the typed CRUD surface of the shared repository
// database.
type RepositoryStore struct {
	pool *dbmanager.Pool
}

// NewRepositoryStore wraps a pool connected to the repository database.
func NewRepositoryStore(pool *dbmanager.Pool) *RepositoryStore {
	return &RepositoryStore{pool: pool}
}

// Pool exposes the underlying pool.
func (s *RepositoryStore) Pool() *dbmanager.Pool {
	return s.pool
}

// ProjectStore is the typed CRUD surface of one project database.
type ProjectStore struct {
	pool *dbmanager.Pool
}

// NewProjectStore wraps a pool connected to a project database.
func NewProjectStore(pool *dbmanager.Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

// Pool exposes the underlying pool.
func (s *ProjectStore) Pool() *dbmanager.Pool {
	return s.pool
}

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx so CRUD helpers
// run identically inside and outside transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertRow inserts one row and returns its serial id.
func insertRow(ctx context.Context, q querier, table string, columns []string, values []any) (int64, apperrors.Error) {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)
	var id int64
	if err := q.QueryRowContext(ctx, query, values...).Scan(&id); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("table", table).Msg("insert failed")
		return 0, dbmanager.TranslateError(err)
	}
	return id, nil
}

// updateColumns sets the given columns on one row.
func updateColumns(ctx context.Context, q querier, table string, id int64, sets map[string]any) apperrors.Error {
	if len(sets) == 0 {
		return nil
	}
	cols := make([]string, 0, len(sets))
	args := make([]any, 0, len(sets)+1)
	i := 1
	for col, val := range sets {
		cols = append(cols, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(cols, ", "), i)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("table", table).Int64("id", id).Msg("update failed")
		return dbmanager.TranslateError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dberror.ErrNotFound.Msg(fmt.Sprintf("%s id %d", table, id))
	}
	return nil
}

// deleteRow removes one row by id.
func deleteRow(ctx context.Context, q querier, table string, id int64) apperrors.Error {
	res, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("table", table).Int64("id", id).Msg("delete failed")
		return dbmanager.TranslateError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dberror.ErrNotFound.Msg(fmt.Sprintf("%s id %d", table, id))
	}
	return nil
}

// PurgeRows deletes every row of a table matching one column, used by
// subtree archival where foreign keys forbid deleting parents first.
// Zero rows deleted is not an error.
func (s *ProjectStore) PurgeRows(ctx context.Context, table, column string, value int64) apperrors.Error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, column)
	if _, err := s.pool.DB().ExecContext(ctx, query, value); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("table", table).Msg("purge failed")
		return dbmanager.TranslateError(err)
	}
	return nil
}

// getRows returns rows as maps from column name to value. JSON columns
// come back as raw strings for the services to decode.
func getRows(ctx context.Context, q querier, query string, args ...any) ([]map[string]any, apperrors.Error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = vals[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	return out, nil
}
