package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/seedscan/internal/infra/storage"
)

// Pruner deletes stored results based on a retention period.
type Pruner struct {
	retention time.Duration
	repo      storage.ResultRepository
	log       *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, repo storage.ResultRepository, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		repo:      repo,
		log:       log,
		now:       time.Now,
	}
}

// Interval is how often the pruner runs: a tenth of the retention, within [1m, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes everything older than the retention period once.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)

	n, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune results", "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned results", "count", n, "before", cutoff.Format(time.RFC3339))
	}
	return n
}
