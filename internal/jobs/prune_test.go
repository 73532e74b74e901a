package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/campus_events/internal/metrics"
)

type fakeLedger struct {
	mu    sync.Mutex
	calls []time.Time
	n     int64
	err   error
}

func (f *fakeLedger) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return f.n, f.err
}

func TestRunOnce(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{n: 3}
	m := metrics.New(prometheus.NewRegistry())
	p := &Pruner{Ledger: ledger, Metrics: m, Now: func() time.Time { return fixed }}

	n, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []time.Time{fixed}, ledger.calls)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.LedgerPruned))

	ledger.err = errors.New("db down")
	_, err = p.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.LedgerPruned))
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	p := &Pruner{Ledger: &fakeLedger{}}
	assert.Error(t, p.Start("every now and then"))
	p.Stop(context.Background())
}

func TestStartStop(t *testing.T) {
	p := &Pruner{Ledger: &fakeLedger{}}
	require.NoError(t, p.Start("@every 1h"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)
	assert.NoError(t, ctx.Err())
}
