// Package main is the entry point for hello-server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"hello-server/internal/api"
	"hello-server/internal/client"
	"hello-server/internal/config"
	"hello-server/internal/events"
	"hello-server/internal/logger"
	"hello-server/internal/metrics"
	"hello-server/internal/server"
	"hello-server/internal/worker"
)

var (
	version = "dev"
)

type options struct {
	configFile  string
	addr        string
	workers     int
	workersSet  bool
	adminAddr   string
	pagesDir    string
	logLevel    string
	shutdown    string
	probePath   string
	load        int
	concurrency int
	showVersion bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "config file path (YAML/JSON)")
	flag.StringVar(&opts.addr, "addr", "", "listen address (default 127.0.0.1:7878)")
	flag.IntVar(&opts.workers, "workers", 0, "number of pool workers (default 4)")
	flag.StringVar(&opts.adminAddr, "admin", "", "admin API address, disabled when empty (e.g. 127.0.0.1:7879)")
	flag.StringVar(&opts.pagesDir, "pages", "", "directory with hello.html and 404.html (default: built-in pages)")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flag.StringVar(&opts.shutdown, "shutdown", "", "queued jobs on shutdown: drain or discard")
	flag.StringVar(&opts.probePath, "probe", "", "send one request for this path to -addr and print the response")
	flag.IntVar(&opts.load, "load", 0, "send this many requests to -addr and print a summary")
	flag.IntVar(&opts.concurrency, "concurrency", 4, "parallel requests for -load")
	flag.BoolVar(&opts.showVersion, "version", false, "print version")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `hello-server - canned page server backed by a fixed worker pool

Usage:
  hello-server [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # serve on 127.0.0.1:7878 with 4 workers
  hello-server

  # serve from a config file with the admin API enabled
  hello-server --config server.yaml --admin 127.0.0.1:7879

  # query a running server
  hello-server --probe /sleep
  hello-server --load 1000 --concurrency 16
`)
	}

	flag.Parse()
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "workers" {
			opts.workersSet = true
		}
	})

	if opts.showVersion {
		fmt.Printf("hello-server version %s\n", version)
		return
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		logger.Error("", "config error: %v", err)
		os.Exit(1)
	}
	logger.Default.SetLevel(cfg.LogLevel)

	switch {
	case opts.probePath != "":
		err = runProbe(cfg.Server.Addr, opts.probePath)
	case opts.load > 0:
		err = runLoad(cfg.Server.Addr, opts.load, opts.concurrency)
	default:
		err = runServer(cfg)
	}
	if err != nil {
		logger.Error("", "%v", err)
		os.Exit(1)
	}
}

// buildConfig はデフォルト値、設定ファイル、フラグの順に設定を重ねる
func buildConfig(opts options) (config.Config, error) {
	cfg := config.Default()

	if opts.configFile != "" {
		fileConfig, err := config.LoadFile(opts.configFile)
		if err != nil {
			return cfg, err
		}
		if err := fileConfig.Validate(); err != nil {
			return cfg, fmt.Errorf("invalid config: %w", err)
		}
		if cfg, err = fileConfig.ToConfig(); err != nil {
			return cfg, err
		}
	}

	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.workersSet {
		if opts.workers < 1 {
			return cfg, fmt.Errorf("-workers: %w: got %d", worker.ErrInvalidSize, opts.workers)
		}
		cfg.Pool.NumWorkers = opts.workers
	}
	if opts.adminAddr != "" {
		cfg.AdminAddr = opts.adminAddr
	}
	if opts.pagesDir != "" {
		cfg.PagesDir = opts.pagesDir
	}
	if opts.logLevel != "" {
		level, err := logger.ParseLevel(opts.logLevel)
		if err != nil {
			return cfg, err
		}
		cfg.LogLevel = level
	}
	if opts.shutdown != "" {
		mode, err := worker.ParseShutdownMode(opts.shutdown)
		if err != nil {
			return cfg, err
		}
		cfg.Pool.Shutdown = mode
	}

	return cfg, nil
}

// runServer は SIGINT/SIGTERM を受けるまでサーバーを動かす
func runServer(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("", "Received %v, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var pages server.Pages = server.EmbeddedPages()
	if cfg.PagesDir != "" {
		pages = server.DirPages(cfg.PagesDir)
	}
	if err := server.CheckPages(pages); err != nil {
		return err
	}

	bus := events.NewBus()
	defer bus.Close()
	m := metrics.New()

	poolConfig := cfg.Pool
	poolConfig.Events = bus
	pool, err := worker.NewWithConfig(poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Stop()

	srv := server.New(cfg.Server, pool, pages, server.WithMetrics(m), server.WithEvents(bus))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if cfg.AdminAddr != "" {
		admin := api.NewServer(cfg.AdminAddr, pool, m, bus)
		g.Go(func() error {
			return admin.Start(gctx)
		})
	}

	err = g.Wait()

	// 受付停止後、キューに残った接続を処理してからワーカーを join する
	pool.Stop()
	snap := m.Snapshot()
	logger.Info("", "Served %d requests (%d failed, %d rejected)",
		snap.TotalRequests, snap.FailedRequests, snap.RejectedConns)
	return err
}

func runProbe(addr, path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.New(addr).WithTimeout(0).Get(ctx, path)
	if err != nil {
		return err
	}
	fmt.Println(resp.StatusLine)
	fmt.Printf("Content-Length: %d\n\n", resp.ContentLength)
	fmt.Println(string(resp.Body))
	return nil
}

func runLoad(addr string, requests, concurrency int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := client.New(addr).Load(ctx, client.LoadConfig{
		Concurrency: concurrency,
		Requests:    requests,
		Paths:       []string{"/"},
	})
	if err != nil && result == nil {
		return err
	}

	snap := result.Snapshot
	fmt.Println("hello-server load summary")
	fmt.Println("=========================")
	fmt.Printf("Requests:  %d (%d failed)\n", snap.TotalRequests, snap.FailedRequests)
	fmt.Printf("RPS:       %.2f\n", snap.OverallRPS)
	fmt.Printf("Latency:   avg %v, p99 %v\n", snap.AverageLatency, snap.P99Latency)
	writeStatuses(os.Stdout, result.Statuses)
	return err
}

// writeStatuses はステータスコードごとの件数をコード順に書き出す
func writeStatuses(w io.Writer, statuses map[int]int) {
	for _, code := range slices.Sorted(maps.Keys(statuses)) {
		fmt.Fprintf(w, "Status %d: %d\n", code, statuses[code])
	}
}
