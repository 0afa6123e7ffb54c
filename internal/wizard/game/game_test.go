package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wizardpipe/wizard/internal/wizard/db/models"
)

func TestLevel(t *testing.T) {
	tuning := DefaultTuning

	assert.Equal(t, 0, Level(0, tuning))
	assert.Equal(t, 0, Level(50, tuning))
	assert.Equal(t, 1, Level(100, tuning))
	// (800/100)^(1/1.5) = 8^(2/3) = 4
	assert.Equal(t, 4, Level(800, tuning))
	assert.Equal(t, 3, Level(799, tuning))
}

func TestLevelCustomTuning(t *testing.T) {
	tuning := Tuning{XPDivisor: 10, LevelExponent: 1}
	assert.Equal(t, 5, Level(50, tuning))
	assert.Equal(t, 12, Level(120, tuning))
}

func TestKeptArtefacts(t *testing.T) {
	u := &models.User{Artefacts: `{"anvil":2,"lucky_clover":1,"golden_mug":3}`}
	kept := keptArtefacts(u)
	assert.JSONEq(t, `{"lucky_clover":1,"golden_mug":3}`, kept)

	u = &models.User{Artefacts: `{"anvil":1}`}
	assert.JSONEq(t, `{}`, keptArtefacts(u))
}
