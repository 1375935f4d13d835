package learning

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
)

// DefaultRebuildLimit bounds how much history a rebuild replays.
const DefaultRebuildLimit = 1000

// RebuildStats carries counts only so the response stays small.
type RebuildStats struct {
	TotalRecords     int                   `json:"totalRecords"`
	PatternsProduced int                   `json:"patternsProduced"`
	Status           constants.LearnStatus `json:"status"`
}

// Aggregator rebuilds the pattern index from correction history.
type Aggregator struct {
	engine *Engine
	limit  int
	logger *slog.Logger
}

func NewAggregator(engine *Engine, limit int, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = DefaultRebuildLimit
	}
	return &Aggregator{engine: engine, limit: limit, logger: logger}
}

// RebuildPatterns replays the most recent history in chronological order into
// a fresh index, persists it, then swaps it in. Writers are excluded for the
// duration; on error the live index is left as it was.
func (a *Aggregator) RebuildPatterns(ctx context.Context) (RebuildStats, error) {
	start := time.Now()
	e := a.engine

	e.mu.Lock()
	defer e.mu.Unlock()

	recs, err := e.repos.Corrections.ListRecentCorrections(ctx, a.limit)
	if err != nil {
		return RebuildStats{}, common.WrapError(err, "list corrections")
	}

	st := NewStore()
	for i := len(recs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return RebuildStats{}, common.NewAppError(common.CodeCanceled, "rebuild canceled", err)
		}
		apply(st, recs[i])
	}

	patterns := st.Snapshot()
	if e.repos.Patterns != nil {
		if err := e.repos.Patterns.ReplacePatterns(ctx, patterns); err != nil {
			return RebuildStats{}, common.WrapError(err, "replace patterns")
		}
	}
	e.store.Store(st)

	e.metrics.Patterns.Set(float64(len(patterns)))
	e.metrics.RebuildDuration.Observe(time.Since(start).Seconds())
	a.logger.Info("learning.rebuild.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"records", len(recs),
		"patterns", len(patterns),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return RebuildStats{
		TotalRecords:     len(recs),
		PatternsProduced: len(patterns),
		Status:           constants.LearnStatusRebuilt,
	}, nil
}
