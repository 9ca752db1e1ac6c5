package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/relay/pkg/usage"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain access records.
	// 0 keeps records forever.
	RetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration. Reports cover
// the most recent occurrence of a month, so a little over a year is kept.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 400,
		PruneSchedule: "0 3 * * *",
	}
}

// Pruner deletes access records older than the retention period.
type Pruner struct {
	storage usage.Storage
	config  *Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(storage usage.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	return &Pruner{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "usage.retention"),
		now:     time.Now,
	}
}

// Cutoff returns the oldest time still retained, or the zero time when
// retention is unlimited.
func (p *Pruner) Cutoff() time.Time {
	if p.config.RetentionDays <= 0 {
		return time.Time{}
	}
	return p.now().AddDate(0, 0, -p.config.RetentionDays)
}

// Prune deletes expired records and returns how many were removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.Cutoff()
	if cutoff.IsZero() {
		p.logger.Debug("retention unlimited, nothing pruned")
		return 0, nil
	}

	deleted, err := p.storage.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune by age failed: %w", err)
	}

	if deleted > 0 {
		p.logger.Info("pruned usage records",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
		)
	}
	return deleted, nil
}
