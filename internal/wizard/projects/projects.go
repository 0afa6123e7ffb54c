// Package projects creates and opens projects. Each project owns a
// physical database and a directory tree; opening one swaps the session
// onto a fresh pool without touching the repository connection.
package projects

import (
	"context"
	"errors"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/common/wire"
	"github.com/wizardpipe/wizard/internal/wizard/assets"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
	"github.com/wizardpipe/wizard/internal/wizard/session"
	"github.com/wizardpipe/wizard/internal/wizard/users"
)

var (
	ErrProjects  apperrors.Error = apperrors.New("projects error")
	ErrBadInput                  = ErrProjects.New("invalid input")
	ErrBadPass                   = ErrProjects.New("wrong project password")
	ErrForbidden                 = ErrProjects.New("administrator required")
)

// Project names become physical database names, so the alphabet is
// tighter than for tree nodes.
var projectNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{2,31}$`)

// Settings carries the picture parameters of a new project.
type Settings struct {
	FrameRate   float64
	ImageWidth  int
	ImageHeight int
	Deadline    int64
	OCIOConfig  string
}

// Create provisions a new project: physical database, schema, directory
// tree and repository row, then opens it on the session. Administrators
// only.
func Create(ctx context.Context, sess *session.Session, dsn, name, path, password string, settings Settings) (*session.Session, *dbmanager.Pool, apperrors.Error) {
	if !sess.IsAdmin() {
		return nil, nil, ErrForbidden
	}
	if !projectNamePattern.MatchString(name) {
		return nil, nil, ErrBadInput.Msg("project name must match " + projectNamePattern.String())
	}
	if len(password) < 6 {
		return nil, nil, ErrBadInput.Msg("project password must be at least 6 characters")
	}
	if path == "" {
		return nil, nil, ErrBadInput.Msg("project path is required")
	}
	hash, herr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if herr != nil {
		return nil, nil, ErrProjects.Err(herr)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, nil, ErrProjects.Msg("cannot create project directory: " + path).Err(err)
	}

	dbname := dbmanager.ProjectDBName(name)
	if err := sess.Repo.Pool().CreateDatabase(ctx, dbname); err != nil {
		return nil, nil, err
	}
	pool, err := dbmanager.Open(dsn, dbname)
	if err != nil {
		return nil, nil, err
	}
	store := postgresql.NewProjectStore(pool)
	if err := store.EnsureProjectSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	project := &models.Project{
		Name:         name,
		Path:         path,
		Pass:         string(hash),
		CreationUser: sess.UserName(),
		CreationTime: time.Now().Unix(),
		FrameRate:    settings.FrameRate,
		ImageWidth:   settings.ImageWidth,
		ImageHeight:  settings.ImageHeight,
		Deadline:     settings.Deadline,
		OCIOConfig:   settings.OCIOConfig,
	}
	if _, err := sess.Repo.CreateProject(ctx, project); err != nil {
		pool.Close()
		return nil, nil, err
	}

	next := sess.WithProject(project, store)
	if err := assets.BootstrapProject(ctx, next); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := users.RememberProject(ctx, next, project.ID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("could not remember project on machine binding")
	}
	next.PublishTeam(wire.Message{
		Type:     wire.TypeRefreshTeam,
		UserName: sess.UserName(),
		Text:     "created project " + name,
	})
	log.Ctx(ctx).Info().Str("project", name).Str("path", path).Msg("project created")
	return next, pool, nil
}

// Open binds the session to an existing project after checking its
// password. The previous project pool, if any, belongs to the caller.
func Open(ctx context.Context, sess *session.Session, dsn, name, password string) (*session.Session, *dbmanager.Pool, apperrors.Error) {
	project, err := sess.Repo.GetProject(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if berr := bcrypt.CompareHashAndPassword([]byte(project.Pass), []byte(password)); berr != nil {
		return nil, nil, ErrBadPass
	}
	return open(ctx, sess, dsn, project)
}

// Resume reopens the project remembered on the machine binding without a
// password prompt. Returns ErrNotFound when the project is gone.
func Resume(ctx context.Context, sess *session.Session, dsn string, projectID int64) (*session.Session, *dbmanager.Pool, apperrors.Error) {
	project, err := sess.Repo.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	return open(ctx, sess, dsn, project)
}

func open(ctx context.Context, sess *session.Session, dsn string, project *models.Project) (*session.Session, *dbmanager.Pool, apperrors.Error) {
	pool, err := dbmanager.Open(dsn, dbmanager.ProjectDBName(project.Name))
	if err != nil {
		if errors.Is(err, dberror.ErrDatabaseMissing) {
			return nil, nil, ErrProjects.Msg("project database is gone: " + project.Name).Err(err)
		}
		return nil, nil, err
	}
	next := sess.WithProject(project, postgresql.NewProjectStore(pool))
	if err := users.RememberProject(ctx, next, project.ID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("could not remember project on machine binding")
	}
	log.Ctx(ctx).Info().Str("project", project.Name).Msg("project opened")
	return next, pool, nil
}
