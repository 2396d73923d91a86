// Package worker contains the background loops: periodic settlement of
// locked goals and reconciliation of derived category ratios.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/types"
)

// Settler settles a single goal. Implemented by the settlement engine.
type Settler interface {
	Settle(ctx context.Context, ref types.GoalRef) (*types.SettleResult, error)
}

// SettlementCoordinator periodically sweeps every locked goal with an
// outstanding stake and settles newly reached milestones. This is the
// safety net behind the on-demand settlement endpoint: a refund that
// failed there is retried here.
type SettlementCoordinator struct {
	docs     store.DocStore
	settler  Settler
	interval time.Duration
}

// NewSettlementCoordinator creates a coordinator.
func NewSettlementCoordinator(docs store.DocStore, settler Settler, interval time.Duration) *SettlementCoordinator {
	return &SettlementCoordinator{
		docs:     docs,
		settler:  settler,
		interval: interval,
	}
}

// Run starts the settlement loop. It blocks until ctx is cancelled.
//
// The first sweep runs immediately so refunds missed during downtime are
// caught up without waiting a full interval.
func (c *SettlementCoordinator) Run(ctx context.Context) {
	slog.Info("settlement coordinator started",
		"component", "worker",
		"worker", "settlement-coordinator",
		"interval", c.interval.String(),
	)

	c.sweep(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("settlement coordinator stopped",
				"component", "worker",
				"worker", "settlement-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep settles every eligible goal, continuing on individual failures.
func (c *SettlementCoordinator) sweep(ctx context.Context) {
	start := time.Now()

	docs, err := c.docs.ListGroup(ctx, "goals")
	if err != nil {
		slog.Error("failed to list goals for settlement",
			"component", "worker",
			"worker", "settlement-coordinator",
			"error", err,
		)
		return
	}

	var eligible, refunded, failed int
	for _, doc := range docs {
		if ctx.Err() != nil {
			return // Graceful shutdown
		}

		ref, ok := store.GoalRefFromPath(doc.Path)
		if !ok || ref.Schema() == types.SchemaLegacy {
			continue
		}

		var goal types.Goal
		if err := json.Unmarshal(doc.Data, &goal); err != nil {
			slog.Warn("skipping undecodable goal",
				"component", "worker",
				"worker", "settlement-coordinator",
				"goal_id", ref.GoalID,
				"error", err,
			)
			continue
		}
		if !goal.Locked || goal.Stake <= 0 || goal.ChargeRef == "" || goal.FullyRefunded() {
			continue
		}

		eligible++
		result, err := c.settler.Settle(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("settlement failed for goal",
				"component", "worker",
				"worker", "settlement-coordinator",
				"goal_id", ref.GoalID,
				"user_id", ref.UserID,
				"error", err,
			)
			failed++
			continue
		}
		if result.Refunded {
			refunded++
		}
	}

	if eligible > 0 {
		slog.Info("settlement sweep completed",
			"component", "worker",
			"worker", "settlement-coordinator",
			"goals_eligible", eligible,
			"goals_refunded", refunded,
			"goals_failed", failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
