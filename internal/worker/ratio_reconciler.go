package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/tree"
)

// RatioReconciler periodically recomputes every category's achievement
// ratio from scratch. Ratios are already refreshed inline on structural
// changes; this loop repairs drift left by crashes between a todo write
// and its recalculation.
type RatioReconciler struct {
	docs     store.DocStore
	recalc   tree.Recalculator
	interval time.Duration
}

// NewRatioReconciler creates a reconciler.
func NewRatioReconciler(docs store.DocStore, recalc tree.Recalculator, interval time.Duration) *RatioReconciler {
	return &RatioReconciler{
		docs:     docs,
		recalc:   recalc,
		interval: interval,
	}
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
//
// The loop waits for the first ticker interval before processing: a full
// reconciliation reads every tree in the store, and running that during
// server startup would compete with request traffic for no urgency.
func (r *RatioReconciler) Run(ctx context.Context) {
	slog.Info("ratio reconciler started",
		"component", "worker",
		"worker", "ratio-reconciler",
		"interval", r.interval.String(),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ratio reconciler stopped",
				"component", "worker",
				"worker", "ratio-reconciler",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile recomputes every category, continuing on individual failures.
func (r *RatioReconciler) reconcile(ctx context.Context) {
	start := time.Now()

	docs, err := r.docs.ListGroup(ctx, "category")
	if err != nil {
		slog.Error("failed to list categories for reconciliation",
			"component", "worker",
			"worker", "ratio-reconciler",
			"error", err,
		)
		return
	}

	var succeeded, failed int
	for _, doc := range docs {
		if ctx.Err() != nil {
			return // Graceful shutdown
		}

		ref, ok := store.CategoryRefFromPath(doc.Path)
		if !ok {
			continue
		}
		if err := r.recalc.RecalculateCategory(ctx, ref); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("reconciliation failed for category",
				"component", "worker",
				"worker", "ratio-reconciler",
				"category_id", ref.CategoryID,
				"user_id", ref.UserID,
				"error", err,
			)
			failed++
			continue
		}
		succeeded++
	}

	if succeeded > 0 || failed > 0 {
		slog.Info("reconciliation cycle completed",
			"component", "worker",
			"worker", "ratio-reconciler",
			"categories_total", len(docs),
			"categories_succeeded", succeeded,
			"categories_failed", failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
