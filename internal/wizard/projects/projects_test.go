package projects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

func adminSession() *session.Session {
	return &session.Session{User: &models.User{UserName: "alice", Administrator: true}}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()

	_, _, err := Create(ctx, &session.Session{User: &models.User{UserName: "bob"}}, "", "demo", "/tmp/demo", "secret1", Settings{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = Create(ctx, adminSession(), "", "Demo", "/tmp/demo", "secret1", Settings{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadInput)

	_, _, err = Create(ctx, adminSession(), "", "de", "/tmp/demo", "secret1", Settings{})
	assert.ErrorIs(t, err, ErrBadInput)

	_, _, err = Create(ctx, adminSession(), "", "demo", "/tmp/demo", "short", Settings{})
	assert.ErrorIs(t, err, ErrBadInput)

	_, _, err = Create(ctx, adminSession(), "", "demo", "", "secret1", Settings{})
	assert.ErrorIs(t, err, ErrBadInput)
}

func TestProjectNamePattern(t *testing.T) {
	assert.True(t, projectNamePattern.MatchString("big_movie_2"))
	assert.False(t, projectNamePattern.MatchString("2movie"))
	assert.False(t, projectNamePattern.MatchString("Big"))
	assert.False(t, projectNamePattern.MatchString("a b"))
}
