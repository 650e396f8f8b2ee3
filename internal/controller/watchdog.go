package controller

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/wabridge/wabridge/internal/domain"
	"github.com/wabridge/wabridge/internal/state"
)

const (
	DefaultWatchdogInterval = time.Minute
	DefaultStaleThreshold   = 15 * time.Minute
)

// RecoveryTrigger requests a non-wiping recovery. Satisfied by a closure
// over Controller.Recover.
type RecoveryTrigger func(reason string)

// Watchdog catches silent hangs: sessions that still claim Ready but have
// not re-confirmed liveness within the staleness threshold. Explicit failure
// events never reach this path; the watchdog exists for the failures that
// emit nothing at all.
type Watchdog struct {
	interval  time.Duration
	staleness time.Duration
	store     *state.Store
	trigger   RecoveryTrigger
	clock     clock.Clock
	logger    *zap.Logger
}

func NewWatchdog(interval, staleness time.Duration, store *state.Store, trigger RecoveryTrigger, clk clock.Clock, logger *zap.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	if staleness <= 0 {
		staleness = DefaultStaleThreshold
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Watchdog{
		interval:  interval,
		staleness: staleness,
		store:     store,
		trigger:   trigger,
		clock:     clk,
		logger:    logger,
	}
}

// Run ticks until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	snap := w.store.Snapshot()
	if snap.Phase != domain.PhaseReady {
		return
	}
	elapsed := w.clock.Now().Sub(snap.LastReadyAt)
	if elapsed <= w.staleness {
		return
	}
	w.logger.Warn("session stale, triggering recovery",
		zap.Duration("since_ready", elapsed),
		zap.Duration("threshold", w.staleness))
	w.trigger("watchdog: session stale")
}
