package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/wizard/db/models"
)

func TestCreateRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	_, err := Create(ctx, nil, "x", "longenough", "", false)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrBadInput)

	_, err = Create(ctx, nil, "alice", "short", "", false)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrBadInput)

	_, err = Create(ctx, nil, "-dash", "longenough", "", false)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrBadInput)
}

func TestQuoteAverage(t *testing.T) {
	assert.Equal(t, 0.0, QuoteAverage(&models.Quote{Scores: "[]"}))
	assert.Equal(t, 4.0, QuoteAverage(&models.Quote{Scores: "[3,5]"}))
	assert.InDelta(t, 3.33, QuoteAverage(&models.Quote{Scores: "[2,3,5]"}), 0.01)
}
