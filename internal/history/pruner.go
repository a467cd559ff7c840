package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
	"git.home.luguber.info/inful/devbundle/internal/logfields"
)

// Pruner periodically removes records older than the retention window.
type Pruner struct {
	scheduler gocron.Scheduler
	store     Store
	retention time.Duration
	now       func() time.Time
}

// NewPruner creates a pruner that runs every interval once started.
func NewPruner(store Store, retention, interval time.Duration) (*Pruner, error) {
	if retention <= 0 || interval <= 0 {
		return nil, ferrors.ValidationError("history retention and prune interval must be positive").
			WithContext("retention", retention.String()).
			WithContext("interval", interval.String()).
			Build()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.InternalError("create history scheduler").WithCause(err).Build()
	}
	p := &Pruner{scheduler: s, store: store, retention: retention, now: time.Now}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { p.PruneOnce(context.Background()) }),
		gocron.WithName("history-prune"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, ferrors.InternalError("schedule history pruning").WithCause(err).Build()
	}
	return p, nil
}

// Start begins the schedule.
func (p *Pruner) Start() {
	slog.Debug("Starting history pruner", slog.String("retention", p.retention.String()))
	p.scheduler.Start()
}

// Stop shuts the scheduler down.
func (p *Pruner) Stop() error {
	return p.scheduler.Shutdown()
}

// PruneOnce removes expired records now.
func (p *Pruner) PruneOnce(ctx context.Context) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		slog.Warn("history prune failed", logfields.Error(err))
		return
	}
	if n > 0 {
		slog.Info("Pruned compilation history", slog.Int64("removed", n))
	}
}
