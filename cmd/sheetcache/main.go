// Command sheetcache runs the cache in front of a simulated high-latency sheet
// backend, drives read-through traffic with tag invalidation, and serves
// Prometheus metrics plus a JSON introspection endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/sheetcache/cache"
	"github.com/IvanBrykalov/sheetcache/internal/config"
	pmet "github.com/IvanBrykalov/sheetcache/metrics/prom"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config (empty = defaults)")
		duration   = flag.Duration("duration", 0, "stop after this long (0 = until signalled)")
		workers    = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "workload goroutines")
		rows       = flag.Int("rows", 500, "rows per sheet")
		warmRows   = flag.Int("warm", 50, "rows per sheet loaded at start-up")
		writePct   = flag.Float64("writes", 0.01, "fraction of operations that mutate a row")
		latency    = flag.Duration("latency", 150*time.Millisecond, "simulated backend latency")
		failRate   = flag.Float64("fail", 0.02, "fraction of backend reads that fail")
		pprofAddr  = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := run(ctx, cfg, logger, runParams{
		workers:  *workers,
		rows:     *rows,
		warmRows: *warmRows,
		writes:   *writePct,
		latency:  *latency,
		failRate: *failRate,
		pprof:    *pprofAddr,
	}); err != nil {
		logger.Error("sheetcache stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("sheetcache stopped")
}

type runParams struct {
	workers  int
	rows     int
	warmRows int
	writes   float64
	latency  time.Duration
	failRate float64
	pprof    string
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, p runParams) error {
	ctx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	if p.pprof != "" {
		go func() {
			logger.Info("pprof: serving", "addr", p.pprof)
			logger.Warn("pprof server exited", "error", http.ListenAndServe(p.pprof, nil)) // #nosec G114 -- debug only
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := cfg.CacheOptions(logger)
	opts.Metrics = pmet.New(reg, cfg.Metrics.Namespace, cfg.Metrics.Subsystem, nil)
	c := cache.New(opts)
	defer func() { _ = c.Close() }()
	pmet.RegisterStats(reg, cfg.Metrics.Namespace, cfg.Metrics.Subsystem, nil, c)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/debug/cache", &debugHandler{cache: c, log: logger})

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	wl := &workload{
		cache:  c,
		store:  newSheetStore(p.latency, p.failRate),
		log:    logger,
		keys:   max(p.rows, 1),
		writes: p.writes,
	}
	if err := wl.warmUp(ctx, p.warmRows); err != nil {
		logger.Warn("warm-up incomplete", "error", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		go wl.report(ctx, 5*time.Second)
		wl.run(ctx, max(p.workers, 1))
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received", "cause", context.Cause(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			logger.Error("failed to force close server", "error", closeErr)
		}
	}
	cancelWork()
	<-done

	st := c.Stats()
	logger.Info("final cache stats",
		"hits", st.Hits,
		"misses", st.Misses,
		"hit_rate", st.HitRate,
		"sets", st.Sets,
		"deletes", st.Deletes,
		"evictions", st.Evictions,
		"expirations", st.Expirations,
		"backend_reads", wl.store.Reads(),
	)
	return runErr
}
