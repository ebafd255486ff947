package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	dispatch "github.com/Swind/go-dispatch"
	"github.com/Swind/go-dispatch/core"
	obs "github.com/Swind/go-dispatch/observability/prometheus"
)

// RunCommand returns the "run" command.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Admit tasks from concurrent producers and report throughput",

		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   4,
				EnvVars: []string{"DISPATCH_WORKERS"},
				Usage:   "Pool worker count",
			},
			&cli.IntFlag{
				Name:    "queues",
				Aliases: []string{"q"},
				Value:   8,
				EnvVars: []string{"DISPATCH_QUEUES"},
				Usage:   "Number of serial queues",
			},
			&cli.IntFlag{
				Name:    "producers",
				Aliases: []string{"p"},
				Value:   4,
				EnvVars: []string{"DISPATCH_PRODUCERS"},
				Usage:   "Concurrent admitting goroutines",
			},
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"n"},
				Value:   100000,
				EnvVars: []string{"DISPATCH_TASKS"},
				Usage:   "Tasks admitted per producer",
			},
			&cli.IntFlag{
				Name:    "batch-limit",
				Value:   core.DefaultBatchLimit,
				EnvVars: []string{"DISPATCH_BATCH_LIMIT"},
				Usage:   "Tasks per drain session before a queue yields its worker",
			},
			&cli.DurationFlag{
				Name:    "work",
				EnvVars: []string{"DISPATCH_WORK"},
				Usage:   "Simulated work per task",
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				EnvVars: []string{"DISPATCH_METRICS_ADDR"},
				Usage:   "Serve Prometheus metrics on this address (e.g. :2112)",
			},
			&cli.DurationFlag{
				Name:    "hold",
				EnvVars: []string{"DISPATCH_HOLD"},
				Usage:   "Keep serving metrics this long after the run",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"DISPATCH_LOG_LEVEL"},
				Usage:   "debug, info, warn or error",
			},
		},

		Action: RunAction,
	}
}

// RunAction parses flags and runs the benchmark.
func RunAction(c *cli.Context) error {
	level, err := zerolog.ParseLevel(strings.ToLower(c.String("log-level")))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid log level %q", c.String("log-level")), 1)
	}

	opts := benchOptions{
		Workers:     c.Int("workers"),
		Queues:      c.Int("queues"),
		Producers:   c.Int("producers"),
		Tasks:       c.Int("tasks"),
		BatchLimit:  c.Int("batch-limit"),
		Work:        c.Duration("work"),
		MetricsAddr: c.String("metrics-addr"),
		Hold:        c.Duration("hold"),
	}
	if err := opts.validate(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger := core.NewWriterLogger(zerolog.ConsoleWriter{Out: os.Stderr}, level)

	report, err := runBench(c.Context, opts, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	report.print(c.App.Writer)
	return nil
}

type benchOptions struct {
	Workers     int
	Queues      int
	Producers   int
	Tasks       int
	BatchLimit  int
	Work        time.Duration
	MetricsAddr string
	Hold        time.Duration
}

func (o benchOptions) validate() error {
	switch {
	case o.Workers < 1:
		return errors.New("workers must be at least 1")
	case o.Queues < 1:
		return errors.New("queues must be at least 1")
	case o.Producers < 1:
		return errors.New("producers must be at least 1")
	case o.Tasks < 0:
		return errors.New("tasks must not be negative")
	case o.BatchLimit < 1:
		return errors.New("batch-limit must be at least 1")
	}
	return nil
}

type benchReport struct {
	Tasks     int64
	Elapsed   time.Duration
	Sessions  int64
	Panics    int64
	PoolStats core.PoolStats
}

func (r benchReport) throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Tasks) / r.Elapsed.Seconds()
}

func (r benchReport) print(w io.Writer) {
	fmt.Fprintf(w, "tasks:      %d\n", r.Tasks)
	fmt.Fprintf(w, "elapsed:    %s\n", r.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "throughput: %.0f tasks/s\n", r.throughput())
	fmt.Fprintf(w, "sessions:   %d\n", r.Sessions)
	fmt.Fprintf(w, "panics:     %d\n", r.Panics)
	fmt.Fprintf(w, "workers:    %d\n", r.PoolStats.Workers)
}

func runBench(ctx context.Context, opts benchOptions, logger *core.ZerologLogger) (benchReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter("dispatch", reg, obs.ExporterOptions{})
	if err != nil {
		return benchReport{}, err
	}
	poller, err := obs.NewSnapshotPoller(reg, 100*time.Millisecond)
	if err != nil {
		return benchReport{}, err
	}

	schedCfg := &core.SchedulerConfig{
		Logger:              logger,
		PanicHandler:        core.NewDefaultPanicHandler(logger),
		Metrics:             exporter,
		RejectedTaskHandler: &core.DefaultRejectedTaskHandler{Logger: logger},
	}
	pool := dispatch.NewGoroutineThreadPoolWithConfig("bench-pool", opts.Workers, schedCfg)
	pool.Start(ctx)
	defer pool.Stop()
	poller.AddPool(pool.ID(), pool)

	queueCfg := &core.QueueConfig{
		BatchLimit:   opts.BatchLimit,
		Logger:       logger,
		PanicHandler: core.NewRateLimitedPanicHandler(core.NewDefaultPanicHandler(logger), logger, time.Second, 5),
		Metrics:      exporter,
	}
	queues := make([]*core.SerialQueue, opts.Queues)
	for i := range queues {
		label := fmt.Sprintf("bench-%d", i)
		queues[i] = core.NewSerialQueueWithConfig(label, pool, queueCfg)
		poller.AddQueue(label, queues[i])
	}
	defer func() {
		for _, q := range queues {
			q.Release()
		}
	}()

	poller.Start(ctx)
	defer poller.Stop()

	if opts.MetricsAddr != "" {
		server := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", core.F("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", core.F("addr", opts.MetricsAddr))
	}

	var executed atomic.Int64
	task := func(ctx context.Context) {
		if opts.Work > 0 {
			time.Sleep(opts.Work)
		}
		executed.Add(1)
	}

	logger.Info("bench starting",
		core.F("workers", opts.Workers),
		core.F("queues", opts.Queues),
		core.F("producers", opts.Producers),
		core.F("tasks", opts.Tasks),
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < opts.Producers; p++ {
		p := p
		g.Go(func() error {
			for i := 0; i < opts.Tasks; i++ {
				if i%1024 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				queues[(p+i)%len(queues)].Execute(task)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return benchReport{}, err
	}

	// A sync barrier per queue: everything admitted before it has run.
	barrier, bctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		q := q
		barrier.Go(func() error {
			return q.DispatchSync(bctx, func(ctx context.Context) {})
		})
	}
	if err := barrier.Wait(); err != nil {
		return benchReport{}, err
	}
	elapsed := time.Since(start)

	report := benchReport{
		Tasks:     executed.Load(),
		Elapsed:   elapsed,
		PoolStats: pool.Stats(),
	}
	for _, q := range queues {
		stats := q.Stats()
		report.Sessions += stats.Sessions
		report.Panics += stats.Panics
	}

	logger.Info("bench finished", core.F("tasks", report.Tasks), core.F("elapsed", elapsed))

	if opts.MetricsAddr != "" && opts.Hold > 0 {
		select {
		case <-time.After(opts.Hold):
		case <-ctx.Done():
		}
	}
	return report, nil
}

func metricsMux(reg *prom.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
