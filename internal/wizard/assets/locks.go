package assets

import (
	"context"
	"errors"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/common/wire"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// AcquireLock takes the exclusive lock of a work environment for the
// logged-in user. Re-acquiring a lock already held is a no-op; a lock
// held by someone else is ErrLockConflict.
func AcquireLock(ctx context.Context, sess *session.Session, workEnvID int64) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	if err := sess.Store.TryLockWorkEnv(ctx, workEnvID, sess.User.ID); err != nil {
		if errors.Is(err, dberror.ErrAlreadyExists) {
			return ErrLockConflict.Err(err)
		}
		return err
	}
	sess.PublishTeam(wire.Message{Type: wire.TypeRefreshTeam, UserName: sess.UserName()})
	return nil
}

// ReleaseLock drops the lock held by the logged-in user. Administrators
// pass force to break another user's lock, after a crash for instance.
func ReleaseLock(ctx context.Context, sess *session.Session, workEnvID int64, force bool) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	if force && !sess.IsAdmin() {
		return ErrPermission.Msg("breaking a lock requires administrator rights")
	}
	if err := sess.Store.UnlockWorkEnv(ctx, workEnvID, sess.User.ID, force); err != nil {
		return err
	}
	sess.PublishTeam(wire.Message{Type: wire.TypeRefreshTeam, UserName: sess.UserName()})
	return nil
}
