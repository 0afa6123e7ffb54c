package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wizardpipe/wizard/internal/wizard/session"
)

type fixedRunning []int64

func (f fixedRunning) Running() []int64 { return f }

func TestSkewed(t *testing.T) {
	interval := time.Minute
	assert.False(t, skewed(time.Minute, interval))
	assert.False(t, skewed(61*time.Second, interval))
	assert.True(t, skewed(3*time.Minute, interval))
	assert.True(t, skewed(10*time.Second, interval))
}

func TestNewSchedulerDefaultsInterval(t *testing.T) {
	s := NewScheduler(&session.Session{}, fixedRunning{}, 0)
	assert.Equal(t, defaultInterval, s.interval)
}

func TestTickWithoutProjectIsNoop(t *testing.T) {
	s := NewScheduler(&session.Session{}, fixedRunning{1, 2}, time.Second)
	s.tick(context.Background(), time.Minute)
}

func TestSubSecondElapsedIsNoop(t *testing.T) {
	s := NewScheduler(&session.Session{}, fixedRunning{}, time.Second)
	s.tick(context.Background(), 200*time.Millisecond)
}
