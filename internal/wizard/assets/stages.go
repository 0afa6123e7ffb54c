package assets

import (
	"context"
	"strings"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/events"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// Stage states. "rtk" is retake, "wfa" waiting for approval; "omt"
// (omit) counts as closed, like done.
var StageStates = []string{"todo", "wip", "done", "error", "rtk", "wfa", "omt"}

// Stage priorities, lowest to highest.
var StagePriorities = []string{"normal", "high", "urgent"}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// SetStageState moves a stage through its lifecycle and records the
// transition on the activity wall.
func SetStageState(ctx context.Context, sess *session.Session, stageID int64, state string) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	if !oneOf(state, StageStates) {
		return ErrValidation.Msg("unknown stage state: " + state +
			" (expected one of " + strings.Join(StageStates, ", ") + ")")
	}
	stage, err := sess.Store.GetStage(ctx, stageID)
	if err != nil {
		return err
	}
	if stage.State == state {
		return nil
	}
	if err := sess.Store.UpdateStage(ctx, stageID, map[string]any{"state": state}); err != nil {
		return err
	}
	_ = events.Emit(ctx, sess, events.TypeStageState, "stage "+state, stage.Path, "{}")
	return nil
}

// AssignStage hands a stage to a user. Empty unassigns.
func AssignStage(ctx context.Context, sess *session.Session, stageID int64, userName string) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	if userName != "" {
		if _, err := sess.Repo.GetUser(ctx, userName); err != nil {
			return err
		}
	}
	return sess.Store.UpdateStage(ctx, stageID, map[string]any{"assignment": userName})
}

// SetStagePriority changes the scheduling priority.
func SetStagePriority(ctx context.Context, sess *session.Session, stageID int64, priority string) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	if !oneOf(priority, StagePriorities) {
		return ErrValidation.Msg("unknown stage priority: " + priority)
	}
	return sess.Store.UpdateStage(ctx, stageID, map[string]any{"priority": priority})
}

// SetStageEstimation sets the estimated time budget in seconds.
func SetStageEstimation(ctx context.Context, sess *session.Session, stageID, seconds int64) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	if seconds < 0 {
		return ErrValidation.Msg("estimated time cannot be negative")
	}
	return sess.Store.UpdateStage(ctx, stageID, map[string]any{"estimated_time": seconds})
}
