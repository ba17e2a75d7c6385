// flowengine is a demonstration process: it wires a flow store (in-memory,
// or Postgres when FLOWENGINE_DB_URL is set), flow queue, flow registry
// and queued executor together,
// registers a couple of demonstration flows, and exposes /healthz and
// /metrics. It is not a submit/query/cancel network surface — callers
// that want one build it against internal/executor.Executor, the same
// contract this process only exercises locally.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/flowengine/internal/demoflows"
	"github.com/shaiso/flowengine/internal/executor"
	"github.com/shaiso/flowengine/internal/flowqueue"
	"github.com/shaiso/flowengine/internal/flowstore"
	"github.com/shaiso/flowengine/internal/flowstore/memstore"
	"github.com/shaiso/flowengine/internal/flowstore/pgstore"
	"github.com/shaiso/flowengine/internal/registry"
	"github.com/shaiso/flowengine/internal/schedule"
	"github.com/shaiso/flowengine/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting flowengine")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// In-memory store by default; Postgres when FLOWENGINE_DB_URL is set.
	var store flowstore.Store = memstore.New()
	if dsn := os.Getenv("FLOWENGINE_DB_URL"); dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = pgstore.New(pool)
		logger.Info("database connected")
	}

	queue := flowqueue.New(flowqueue.Config{VisibilityTimeout: 30 * time.Second})

	reg := registry.New()
	reg.Register(demoflows.Echo())
	reg.Register(demoflows.Countdown())

	metrics := executor.NewMetrics(prometheus.DefaultRegisterer)
	exec := executor.New(store, queue, reg, executor.Config{
		MaxConcurrent: 5,
		Logger:        logger,
		Metrics:       metrics,
	})
	exec.Start(ctx)

	sched := schedule.New(schedule.Config{Logger: logger})
	if err := sched.Add("countdown-demo", "@every 1m", func(ctx context.Context) error {
		_, err := exec.Submit(ctx, "countdown", demoflows.CountdownInput{From: 5}, "scheduler")
		return err
	}); err != nil {
		logger.Error("failed to register demo schedule", "error", err)
	}
	sched.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8090"
	if v := os.Getenv("FLOWENGINE_PORT"); v != "" {
		port = ":" + v
	}

	srv := &http.Server{Addr: port, Handler: mux}
	go func() {
		logger.Info("listening", "addr", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	exec.Stop(context.Background())

	logger.Info("flowengine stopped")
}
