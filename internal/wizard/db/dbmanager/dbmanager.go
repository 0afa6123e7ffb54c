// Package dbmanager manages the PostgreSQL connection pools of the two
// logical databases. The repository database is shared across projects;
// each project gets its own physical database derived from the project
// name, so switching project is an atomic pool swap rather than a schema
// rewrite.
package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
)

// Pool wraps a sql.DB bound to one physical database.
type Pool struct {
	db   *sql.DB
	name string
}

// RepositoryDBName is the physical name of the shared repository database.
const RepositoryDBName = "wizard_repository"

// ProjectDBName derives the physical database name of a project.
func ProjectDBName(project string) string {
	return "wizard_project_" + strings.ToLower(project)
}

// Open opens a pool against the named database. The dsn carries host,
// user and credentials; the database name is replaced per pool.
func Open(dsn, dbname string) (*Pool, apperrors.Error) {
	sqlDB, err := sql.Open("pgx", withDatabase(dsn, dbname))
	if err != nil {
		log.Error().Err(err).Str("database", dbname).Msg("failed to open db")
		return nil, dberror.ErrTransport.Err(err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "3D000" {
			return nil, dberror.ErrDatabaseMissing.Msg("database does not exist: " + dbname)
		}
		log.Error().Err(err).Str("database", dbname).Msg("failed to ping db")
		return nil, dberror.ErrTransport.Err(err)
	}
	return &Pool{db: sqlDB, name: dbname}, nil
}

// withDatabase rewrites the database component of a keyword/value or URL
// DSN. Physical names are switchable per connection by contract.
func withDatabase(dsn, dbname string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		base := strings.TrimRight(dsn, "/")
		if idx := strings.LastIndex(base, "/"); idx > len("postgresql:/") {
			base = base[:idx]
		}
		return base + "/" + dbname
	}
	// keyword/value form: drop any dbname pair and append ours
	parts := []string{}
	for _, kv := range strings.Fields(dsn) {
		if !strings.HasPrefix(kv, "dbname=") {
			parts = append(parts, kv)
		}
	}
	parts = append(parts, "dbname="+dbname)
	return strings.Join(parts, " ")
}

// Name returns the physical database name of the pool.
func (p *Pool) Name() string {
	return p.name
}

// DB exposes the underlying handle for DDL and tests.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close shuts the pool down.
func (p *Pool) Close() {
	if p != nil && p.db != nil {
		p.db.Close()
	}
}

// Conn returns a connection with lock and statement timeouts applied.
func (p *Pool) Conn(ctx context.Context, statementTimeout string) (*sql.Conn, apperrors.Error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to obtain connection")
		return nil, dberror.ErrTransport.Err(err)
	}
	if _, err := conn.ExecContext(ctx, "SET lock_timeout = '5s'"); err != nil {
		conn.Close()
		return nil, dberror.ErrTransport.Err(err)
	}
	if statementTimeout == "" {
		statementTimeout = "10s"
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET statement_timeout = '%s'", statementTimeout)); err != nil {
		conn.Close()
		return nil, dberror.ErrTransport.Err(err)
	}
	return conn, nil
}

// Tx runs fn inside a transaction, rolling back on error.
func (p *Pool) Tx(ctx context.Context, fn func(tx *sql.Tx) apperrors.Error) apperrors.Error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to start transaction")
		return dberror.ErrTransport.Err(err)
	}
	if apperr := fn(tx); apperr != nil {
		tx.Rollback()
		return apperr
	}
	if err := tx.Commit(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to commit transaction")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// AdvisoryTx runs fn inside a transaction that first takes a
// transaction-scoped advisory lock on key. Version numbering mutations
// key on the parent row id so concurrent writers serialize per parent.
func (p *Pool) AdvisoryTx(ctx context.Context, key int64, fn func(tx *sql.Tx) apperrors.Error) apperrors.Error {
	return p.Tx(ctx, func(tx *sql.Tx) apperrors.Error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("key", key).Msg("failed to take advisory lock")
			return dberror.ErrDatabase.Err(err)
		}
		return fn(tx)
	})
}

// CreateDatabase creates a physical database. It must run outside a
// transaction and against a pool connected to an existing database.
func (p *Pool) CreateDatabase(ctx context.Context, name string) apperrors.Error {
	_, err := p.db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name))
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "42P04" {
			return dberror.ErrAlreadyExists.Msg("database already exists: " + name)
		}
		log.Ctx(ctx).Error().Err(err).Str("database", name).Msg("failed to create database")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// TranslateError maps driver errors onto the db error taxonomy.
func TranslateError(err error) apperrors.Error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return dberror.ErrNotFound
	}
	if pgErr, ok := err.(*pgconn.PgError); ok {
		switch pgErr.Code {
		case "23505":
			return dberror.ErrAlreadyExists.Msg(pgErr.ConstraintName)
		case "23503":
			return dberror.ErrFKViolation.Msg(pgErr.ConstraintName)
		case "3D000":
			return dberror.ErrDatabaseMissing
		}
	}
	return dberror.ErrDatabase.Err(err)
}
