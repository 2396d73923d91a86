package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/waypoint/internal/api"
	"github.com/hyperengineering/waypoint/internal/assistant"
	"github.com/hyperengineering/waypoint/internal/config"
	"github.com/hyperengineering/waypoint/internal/payment"
	"github.com/hyperengineering/waypoint/internal/ratio"
	"github.com/hyperengineering/waypoint/internal/settlement"
	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/transfer"
	"github.com/hyperengineering/waypoint/internal/tree"
	"github.com/hyperengineering/waypoint/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "waypoint",
	Short: "Waypoint - Goal Commitment Service",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	initLogger(cfg.Log)
	slog.Info("configuration loaded")

	// 4. Initialize store (migrations, WAL mode)
	docs, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Wire the domain engines. The ratio engine reads trees through the
	// repository and the repository notifies it on structural changes, so
	// the recalculator is bound after both exist.
	trees := tree.NewRepository(docs, cfg.Tree.MaxDepth, cfg.Tree.MaxConcurrency)
	ratios := ratio.NewEngine(trees, docs)
	trees.BindRecalculator(ratios)

	gateway := payment.NewStripeGateway(cfg.Payment.SecretKey, cfg.Payment.Currency, cfg.Payment.ReturnOrigin)
	settle := settlement.NewEngine(docs, trees, ratios, gateway)

	idPolicy := transfer.IDPolicyRegenerate
	if cfg.Transfer.PreserveIDs {
		idPolicy = transfer.IDPolicyPreserve
	}
	codec := transfer.NewCodec(docs, trees, ratios, idPolicy)

	planner := assistant.NewOpenAI(cfg.Assistant.APIKey, cfg.Assistant.Model)
	slog.Info("planner initialized", "model", cfg.Assistant.Model)

	// 6. Initialize HTTP router
	handler := api.NewHandler(api.HandlerConfig{
		Docs:          docs,
		Trees:         trees,
		Ratios:        ratios,
		Settle:        settle,
		Codec:         codec,
		Planner:       planner,
		APIKey:        cfg.Auth.APIKey,
		WebhookSecret: cfg.Payment.WebhookSecret,
		Version:       Version,
	})
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 7. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 8. Start background workers
	var wg sync.WaitGroup
	settlementWorker := worker.NewSettlementCoordinator(docs, settle, time.Duration(cfg.Worker.SettlementInterval))
	startWorker(ctx, &wg, "settlement", settlementWorker.Run)
	reconciler := worker.NewRatioReconciler(docs, ratios, time.Duration(cfg.Worker.ReconcileInterval))
	startWorker(ctx, &wg, "ratio-reconciler", reconciler.Run)

	// 9. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		// Any other error indicates an actual server failure that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 10. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 11. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 11a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 11b. Wait for workers to complete
	wg.Wait()

	// 11c. Close store
	if err := docs.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func initLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
