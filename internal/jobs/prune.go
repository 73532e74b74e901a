package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Skotchmaster/campus_events/internal/logging"
	"github.com/Skotchmaster/campus_events/internal/metrics"
)

const pruneTimeout = time.Minute

type LedgerPruner interface {
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// Pruner deletes ledger entries whose expiry has passed. Revoked entries are
// kept until they expire so replays keep failing as "revoked".
type Pruner struct {
	Ledger  LedgerPruner
	Metrics *metrics.Metrics
	Log     *slog.Logger
	Now     func() time.Time

	cron *cron.Cron
}

func (p *Pruner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	n, err := p.Ledger.PruneExpired(ctx, p.now())
	if err != nil {
		return 0, err
	}
	p.Metrics.Pruned(n)
	return n, nil
}

// Start schedules RunOnce on a standard five-field cron expression.
func (p *Pruner) Start(schedule string) error {
	l := p.Log
	if l == nil {
		l = slog.Default()
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(logging.IntoContext(context.Background(), l), pruneTimeout)
		defer cancel()

		n, err := p.RunOnce(ctx)
		if err != nil {
			l.Error("ledger_prune_failed", "error", err)
			return
		}
		l.Info("ledger_pruned", "deleted", n)
	})
	if err != nil {
		return err
	}
	p.cron = c
	c.Start()
	return nil
}

// Stop waits for a running prune to finish or ctx to end.
func (p *Pruner) Stop(ctx context.Context) {
	if p.cron == nil {
		return
	}
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
	}
}
