// Package events writes activity wall rows and fans change notifications
// out to the local GUI queue and the team bus.
package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/common/wire"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// Event types recorded on the activity wall.
const (
	TypeCreation    = "creation"
	TypeArchive     = "archive"
	TypeExport      = "export"
	TypeVideo       = "video"
	TypeTicket      = "ticket"
	TypeDeath       = "death"
	TypeSubtask     = "subtask"
	TypeHookFailure = "hook_failure"
	TypeStageState  = "stage_state"
	TypeLevelUp     = "level_up"
)

// Emit writes one event row, refreshes the local UI and notifies the
// team. The caller's mutation is already committed; a failed event write
// is logged but does not undo it.
func Emit(ctx context.Context, sess *session.Session, typ, title, message, data string) apperrors.Error {
	ev := models.Event{
		CreationUser: sess.UserName(),
		CreationTime: time.Now().Unix(),
		Type:         typ,
		Title:        title,
		Message:      message,
		Data:         data,
	}
	if _, err := sess.Store.CreateEvent(ctx, &ev); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("type", typ).Msg("failed to record event")
		return err
	}
	sess.NotifyGUI(wire.Message{Type: wire.TypeRefresh})
	sess.PublishTeam(wire.Message{Type: wire.TypeRefreshTeam, UserName: sess.UserName()})
	return nil
}
