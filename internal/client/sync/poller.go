package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Cycler runs one sync cycle to completion.
type Cycler interface {
	RunCycle(ctx context.Context) (*CycleReport, error)
}

// Poller repeats a Cycler at a fixed interval. Cycles never overlap and a
// running cycle is never interrupted: cancellation is only observed while
// waiting for the next tick.
type Poller struct {
	cycler   Cycler
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(cycler Cycler, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{cycler: cycler, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled and then returns nil.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("starting continuous sync", "interval", p.interval)

	// a timer rather than a ticker, so a slow cycle does not queue ticks
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		if ctx.Err() != nil {
			p.logger.Info("sync stopped", "reason", context.Cause(ctx))
			return nil
		}

		if err := p.RunOnce(ctx); err != nil {
			p.logger.Error("continuous sync error", "error", err)
		}

		timer.Reset(p.interval)
	}
}

// RunOnce runs a single cycle detached from ctx's cancellation.
func (p *Poller) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newSyncError(KindCycle, "", "", fmt.Errorf("panic: %v", r))
		}
	}()

	report, err := p.cycler.RunCycle(context.WithoutCancel(ctx))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if report != nil {
		p.logger.Info("sync completed", "at", time.Now().Format(time.RFC3339), "changes", report.HasChanges())
	}
	return nil
}
