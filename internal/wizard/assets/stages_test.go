package assets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

func stageSession() *session.Session {
	return &session.Session{
		User:    &models.User{UserName: "alice"},
		Project: &models.Project{Name: "demo", Path: "/tmp/demo"},
		Store:   postgresql.NewProjectStore(nil),
	}
}

func TestSetStageStateRejectsUnknownState(t *testing.T) {
	err := SetStageState(context.Background(), stageSession(), 1, "paused")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSetStagePriorityRejectsUnknownPriority(t *testing.T) {
	err := SetStagePriority(context.Background(), stageSession(), 1, "asap")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSetStageEstimationRejectsNegative(t *testing.T) {
	err := SetStageEstimation(context.Background(), stageSession(), 1, -60)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStageVocabulary(t *testing.T) {
	for _, state := range []string{"todo", "wip", "done", "error", "rtk", "wfa", "omt"} {
		assert.True(t, oneOf(state, StageStates), state)
	}
	assert.True(t, oneOf("urgent", StagePriorities))
	assert.False(t, oneOf("low", StagePriorities))
	assert.False(t, oneOf("", StageStates))
}

func TestSetStagePriorityRejectsLow(t *testing.T) {
	err := SetStagePriority(context.Background(), stageSession(), 1, "low")
	assert.ErrorIs(t, err, ErrValidation)
}
