// Command queue-server runs the task queue's HTTP intake surface and its
// worker pool in one process, wiring config/store/broker/registry per
// SPEC_FULL.md §10.3, grounded on the teacher's cmd/cobra_cli.go (cobra
// root command) and cmd/task-orchestrator/main.go (dependency wiring shape).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/aglm/taskqueue/internal/broker"
	"github.com/aglm/taskqueue/internal/httpapi"
	"github.com/aglm/taskqueue/internal/notifier"
	"github.com/aglm/taskqueue/internal/observability"
	"github.com/aglm/taskqueue/internal/queueservice"
	"github.com/aglm/taskqueue/internal/shared/async"
	"github.com/aglm/taskqueue/internal/shared/config"
	"github.com/aglm/taskqueue/internal/shared/logging"
	"github.com/aglm/taskqueue/internal/store"
	"github.com/aglm/taskqueue/internal/workflow"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "queue-server: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "queue-server",
		Short: "Task queue control plane: HTTP intake, broker dispatch, worker pool.",
	}
	root.AddCommand(newServeCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and worker pool.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewComponentLogger("Main")
	logger.Info("starting queue-server (driver=%s, workers=%d)", cfg.DBDriver, cfg.WorkerCount)

	var dsn string
	if cfg.DBDriver == store.DriverMySQL {
		dsn = cfg.MySQLDSN()
	} else {
		dsn = cfg.DBPath
	}
	sqlStore, err := store.Open(cfg.DBDriver, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer sqlStore.Close()
	if err := sqlStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	brokerClient := broker.New(cfg.RedisHost, cfg.RedisPort, cfg.RedisDB, time.Duration(cfg.BRPopTimeout+5)*time.Second)

	registry := workflow.NewRegistry(workflow.Config{
		ProjectRoot:        cfg.ProjectRoot,
		ModelBaseURL:       cfg.ModelBaseURL,
		ModelName:          cfg.ModelName,
		ModelAPIKey:        cfg.ModelAPIKey,
		DeviceID:           cfg.DeviceID,
		DeployTimeout:      time.Duration(cfg.DeployTimeout) * time.Second,
		DeployMessagesFile: cfg.DeployMessagesFile,
	})

	notify := notifier.NewScriptNotifier("python3", "scripts/reply_msg.py", cfg.ProjectRoot, logging.NewComponentLogger("Notifier"))
	notify.BaseURL = cfg.ModelBaseURL
	notify.APIKey = cfg.ModelAPIKey
	notify.Model = cfg.ModelName

	registerer := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registerer)

	tracerProvider, err := observability.NewTracerProvider(ctx, cfg.OTLPEndpoint, "taskqueue")
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}
	otel.SetTracerProvider(tracerProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer provider shutdown: %v", err)
		}
	}()

	svc := queueservice.New(queueservice.Config{
		QueueKey:            cfg.TaskQueue,
		KeyPrefix:           cfg.TaskKeyPrefix,
		WorkerCount:         cfg.WorkerCount,
		BRPopTimeoutSeconds: cfg.BRPopTimeout,
		ProjectRoot:         cfg.ProjectRoot,
	}, brokerClient, sqlStore, registry, notify, metrics, logging.NewComponentLogger("Worker"))

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	workerGroup := svc.StartWorkers(workerCtx)

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.New(svc, sqlStore, brokerClient, cfg.TaskKeyPrefix, logging.NewComponentLogger("HTTP")).Router())
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	serverErr := make(chan error, 1)
	async.Go(logger, "http-listener", func() {
		logger.Info("listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	})

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received, draining")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown: %v", err)
	}

	stopWorkers()
	if workerGroup != nil {
		_ = workerGroup.Wait()
	}
	logger.Info("shutdown complete")
	return nil
}
