package users

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/config"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// Login authenticates and binds this machine to the account. A machine
// only ever carries one logged-in user; logging in replaces any stale
// binding left by a crash.
func Login(ctx context.Context, repo *postgresql.RepositoryStore, userName, password string) (*session.Session, apperrors.Error) {
	u, err := Authenticate(ctx, repo, userName, password)
	if err != nil {
		return nil, err
	}
	rc := config.GetRuntimeConfig()
	if rc == nil {
		return nil, ErrUsers.Msg("runtime identity not loaded")
	}
	if wrap, werr := repo.GetMachineWrap(ctx, rc.MachineKey); werr == nil && wrap.UserID != 0 && wrap.UserID != u.ID {
		log.Ctx(ctx).Info().
			Int64("previous_user_id", wrap.UserID).
			Msg("replacing stale machine binding")
	}
	if err := repo.UpsertMachineWrap(ctx, rc.MachineKey, u.ID, 0); err != nil {
		return nil, err
	}
	return &session.Session{User: u, Repo: repo}, nil
}

// Logout clears the machine binding. The project pool, if any, stays
// open until the caller closes it.
func Logout(ctx context.Context, sess *session.Session) apperrors.Error {
	rc := config.GetRuntimeConfig()
	if rc == nil {
		return ErrUsers.Msg("runtime identity not loaded")
	}
	if err := sess.Repo.UpsertMachineWrap(ctx, rc.MachineKey, 0, 0); err != nil {
		return err
	}
	return nil
}

// RememberProject records the selected project on the machine binding so
// the next start can land back in it.
func RememberProject(ctx context.Context, sess *session.Session, projectID int64) apperrors.Error {
	rc := config.GetRuntimeConfig()
	if rc == nil {
		return ErrUsers.Msg("runtime identity not loaded")
	}
	return sess.Repo.UpsertMachineWrap(ctx, rc.MachineKey, sess.User.ID, projectID)
}

// ResumeSession rebuilds the logged-in user from the machine binding, if
// one exists. Used at daemon start to skip the login prompt.
func ResumeSession(ctx context.Context, repo *postgresql.RepositoryStore) (*models.User, int64, apperrors.Error) {
	rc := config.GetRuntimeConfig()
	if rc == nil {
		return nil, 0, ErrUsers.Msg("runtime identity not loaded")
	}
	wrap, err := repo.GetMachineWrap(ctx, rc.MachineKey)
	if err != nil {
		if errors.Is(err, dberror.ErrNotFound) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	if wrap.UserID == 0 {
		return nil, 0, nil
	}
	u, err := repo.GetUserByID(ctx, wrap.UserID)
	if err != nil {
		return nil, 0, err
	}
	return u, wrap.ProjectID, nil
}
