// Package stats drives the periodic production statistics of the open
// project. Every interval it snapshots the active stages into
// progress_events and attributes wall-clock work time to the stages,
// work environments and user that currently have a DCC open.
package stats

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/wizard/assets"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/game"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

const defaultInterval = 60 * time.Second

// RunningProvider reports the work environments with a live DCC
// process. The launcher satisfies it.
type RunningProvider interface {
	Running() []int64
}

// Scheduler accrues work time and progress snapshots on a fixed beat.
type Scheduler struct {
	sess     *session.Session
	running  RunningProvider
	interval time.Duration
}

func NewScheduler(sess *session.Session, running RunningProvider, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{sess: sess, running: running, interval: interval}
}

// Run ticks until the context ends. Elapsed time is measured with the
// monotonic clock, so a workstation sleeping through a beat credits the
// real elapsed time instead of one interval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			elapsed := now.Sub(last)
			last = now
			if skewed(elapsed, s.interval) {
				log.Ctx(ctx).Warn().
					Dur("elapsed", elapsed).
					Dur("interval", s.interval).
					Msg("stats beat skewed, crediting real elapsed time")
			}
			s.tick(ctx, elapsed)
		}
	}
}

// skewed reports an elapsed beat far from the configured interval,
// which happens after suspend or under heavy load.
func skewed(elapsed, interval time.Duration) bool {
	return elapsed > interval*3/2 || elapsed < interval/2
}

// tick runs one accrual pass. A tick without an open project is a
// no-op; errors are logged and never stop the beat.
func (s *Scheduler) tick(ctx context.Context, elapsed time.Duration) {
	if s.sess == nil || s.sess.Project == nil || s.sess.Store == nil {
		return
	}
	seconds := int64(elapsed.Round(time.Second) / time.Second)
	if seconds <= 0 {
		return
	}

	openPerStage := make(map[int64]int64)
	anyOpen := false
	for _, workEnvID := range s.running.Running() {
		tc, err := assets.ResolveWorkEnvContext(ctx, s.sess, workEnvID)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Int64("work_env_id", workEnvID).
				Msg("stats could not resolve running work environment")
			continue
		}
		anyOpen = true
		openPerStage[tc.Stage.ID]++
		if err := s.sess.Store.AddWorkEnvWorkTime(ctx, workEnvID, seconds); err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Int64("work_env_id", workEnvID).
				Msg("stats could not accrue work environment time")
		}
	}

	if anyOpen {
		if err := game.AddWorkTime(ctx, s.sess, seconds); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("stats could not accrue user work time")
		}
	}

	stages, err := s.sess.Store.ListActiveStages(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("stats could not list active stages")
		return
	}
	now := time.Now().Unix()
	for _, stage := range stages {
		delta := seconds * openPerStage[stage.ID]
		if delta > 0 {
			if err := s.sess.Store.AddStageWorkTime(ctx, stage.ID, delta); err != nil {
				log.Ctx(ctx).Warn().Err(err).
					Int64("stage_id", stage.ID).
					Msg("stats could not accrue stage time")
				continue
			}
		}
		_, err := s.sess.Store.CreateProgressEvent(ctx, &models.ProgressEvent{
			CreationTime:  now,
			StageID:       stage.ID,
			State:         stage.State,
			WorkTimeDelta: delta,
		})
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Int64("stage_id", stage.ID).
				Msg("stats could not record progress event")
		}
	}
}
