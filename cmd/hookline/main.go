package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hooklinehq/hookline/internal/analytics"
	"github.com/hooklinehq/hookline/internal/api"
	"github.com/hooklinehq/hookline/internal/circuitbreaker"
	"github.com/hooklinehq/hookline/internal/config"
	"github.com/hooklinehq/hookline/internal/delivery"
	"github.com/hooklinehq/hookline/internal/ingest"
	"github.com/hooklinehq/hookline/internal/janitor"
	"github.com/hooklinehq/hookline/internal/metrics"
	"github.com/hooklinehq/hookline/internal/queue"
	"github.com/hooklinehq/hookline/internal/reconciler"
	"github.com/hooklinehq/hookline/internal/store/postgres"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "api":
		os.Exit(runAPI())
	case "worker":
		os.Exit(runWorker())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`hookline - webhook event fan-out service

Usage:
  hookline <command>

Commands:
  api        Start the HTTP intake server
  worker     Start the delivery worker (queue runtime, reconciler, janitor)
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  REDIS_ADDR                Redis address for delivery analytics (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  WORKER_DRAIN_TIMEOUT      In-flight job drain timeout (default: "30s")

  BATCH_MAX_SIZE            Max events per submission (default: "100")

  WEBHOOK_MAX_ATTEMPTS      Delivery attempts per partner (default: "3")
  WEBHOOK_RETRY_DELAY       Base delivery backoff (default: "2500ms")
  WEBHOOK_TIMEOUT           Per-attempt HTTP timeout (default: "5s")

  WORKER_CONCURRENCY        Concurrent worker slots (default: "5")
  RATE_LIMIT_MAX            Jobs dispatched per window (default: "100")
  RATE_LIMIT_WINDOW         Dispatch rate window (default: "10s")
  QUEUE_POLL_INTERVAL       Queue poll interval (default: "500ms")
  QUEUE_JOB_ATTEMPTS        Job-level retry budget (default: "3")
  QUEUE_BACKOFF_BASE        Job retry backoff base (default: "5s")
  QUEUE_LEASE_DURATION      Per-attempt job lease (default: "1m")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  RECONCILE_ENABLED         Enable expired-lease recovery (default: "true")
  RECONCILE_INTERVAL        How often to scan for expired leases (default: "1m")
  RECONCILE_BATCH_SIZE      Max jobs recovered per cycle (default: "100")

  JANITOR_ENABLED           Enable finished-job retention (default: "true")
  JANITOR_SCHEDULE          Retention sweep cron schedule (default: "*/15 * * * *")
  COMPLETED_KEEP_COUNT      Completed jobs kept (default: "1000")
  COMPLETED_KEEP_AGE        Completed job retention age (default: "24h")
  DEAD_KEEP_COUNT           Dead jobs kept (default: "5000")
  DEAD_KEEP_AGE             Dead job retention age (default: "168h")

  CIRCUIT_BREAKER_THRESHOLD Consecutive failures before a partner URL is
                            shorted (default: "0" = disabled)
  CIRCUIT_BREAKER_COOLDOWN  Open-circuit cooldown (default: "30s")`)
}

// openDB opens the connection pool and verifies connectivity.
func openDB(cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("hookline: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// startMetrics starts the Prometheus endpoint when enabled. Returns a
// nil sink and server when metrics are off.
func startMetrics(cfg config.Config) (*metrics.PrometheusSink, *http.Server) {
	if !cfg.MetricsEnabled {
		log.Println("hookline: METRICS_ENABLED not set; metrics disabled")
		return nil, nil
	}

	sink := metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
	log.Printf("hookline: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	server := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: mux,
	}
	go func() {
		log.Printf("hookline: metrics server listening on :%s", cfg.MetricsPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("hookline: metrics server error: %v", err)
		}
	}()
	return sink, server
}

func shutdownServer(name string, server *http.Server, cfg config.Config) {
	if server == nil {
		return
	}
	log.Printf("hookline: stopping %s...", name)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("hookline: %s shutdown error: %v", name, err)
	}
	log.Printf("hookline: %s stopped", name)
}

func runAPI() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	db, err := openDB(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	store := postgres.New(db).WithJobAttempts(cfg.QueueJobAttempts)
	metricsSink, metricsServer := startMetrics(cfg)

	processor := ingest.New(store)
	if metricsSink != nil {
		processor = processor.WithMetrics(metricsSink)
	}

	handler := api.NewHandler(processor, store).
		WithHealthChecker(store).
		WithBatchMaxSize(cfg.BatchMaxSize)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
	go func() {
		log.Printf("hookline: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("hookline: http server error: %v", err)
		}
	}()

	log.Printf("hookline: api started (http=%s, batch_max=%d)", cfg.HTTPAddr, cfg.BatchMaxSize)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Printf("hookline: received signal %v, shutting down", received)

	// Phase 1: stop accepting submissions
	shutdownServer("http server", httpServer, cfg)

	// Phase 2: stop metrics endpoint
	shutdownServer("metrics server", metricsServer, cfg)

	log.Println("hookline: stopped")
	return exitSuccess
}

func runWorker() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	db, err := openDB(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	store := postgres.New(db).WithJobAttempts(cfg.QueueJobAttempts)
	metricsSink, metricsServer := startMetrics(cfg)

	sender := delivery.NewHTTPSender().
		WithRetryPolicy(cfg.WebhookMaxAttempts, cfg.WebhookRetryDelay, cfg.WebhookTimeout)
	if metricsSink != nil {
		sender = sender.WithMetrics(metricsSink)
	}

	processor := delivery.New(store, sender)
	if metricsSink != nil {
		processor = processor.WithMetrics(metricsSink)
	}

	if cfg.CircuitBreakerThreshold > 0 {
		processor = processor.WithBreaker(
			circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Printf("hookline: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		processor = processor.WithAnalytics(analytics.NewRedisSink(redisClient))
		log.Printf("hookline: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("hookline: REDIS_ADDR not set; analytics disabled")
	}

	runtime := queue.NewRuntime(queue.Config{
		Concurrency:     cfg.WorkerConcurrency,
		PollInterval:    cfg.QueuePollInterval,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		MaxAttempts:     cfg.QueueJobAttempts,
		BackoffBase:     cfg.QueueBackoffBase,
		Lease:           cfg.QueueLeaseDuration,
		DrainTimeout:    cfg.WorkerDrainTimeout,
	}, store, processor.HandleJob)
	if metricsSink != nil {
		runtime = runtime.WithMetrics(metricsSink)
	}

	runtimeCtx, cancelRuntime := context.WithCancel(context.Background())
	var runtimeWg sync.WaitGroup
	runtimeWg.Add(1)
	go func() {
		defer runtimeWg.Done()
		runtime.Run(runtimeCtx)
	}()

	var reconcilerWg sync.WaitGroup
	var cancelReconciler context.CancelFunc
	if cfg.ReconcileEnabled {
		var reconcilerCtx context.Context
		reconcilerCtx, cancelReconciler = context.WithCancel(context.Background())
		recon := reconciler.New(reconciler.Config{
			Interval:  cfg.ReconcileInterval,
			BatchSize: cfg.ReconcileBatchSize,
		}, store)
		if metricsSink != nil {
			recon = recon.WithMetrics(metricsSink)
		}
		reconcilerWg.Add(1)
		go func() {
			defer reconcilerWg.Done()
			recon.Run(reconcilerCtx)
		}()
	} else {
		log.Println("hookline: RECONCILE_ENABLED off; expired leases will not be recovered")
	}

	var janitorWg sync.WaitGroup
	var cancelJanitor context.CancelFunc
	if cfg.JanitorEnabled {
		var janitorCtx context.Context
		janitorCtx, cancelJanitor = context.WithCancel(context.Background())
		jan := janitor.New(janitor.Config{
			Schedule:  cfg.JanitorSchedule,
			Completed: janitor.Retention{Keep: cfg.CompletedKeepCount, Age: cfg.CompletedKeepAge},
			Dead:      janitor.Retention{Keep: cfg.DeadKeepCount, Age: cfg.DeadKeepAge},
		}, store)
		if metricsSink != nil {
			jan = jan.WithMetrics(metricsSink)
		}
		janitorWg.Add(1)
		go func() {
			defer janitorWg.Done()
			if err := jan.Run(janitorCtx); err != nil {
				log.Printf("hookline: janitor error: %v", err)
			}
		}()
	} else {
		log.Println("hookline: JANITOR_ENABLED off; finished jobs will accumulate")
	}

	log.Printf("hookline: worker started (concurrency=%d, rate=%d/%s)",
		cfg.WorkerConcurrency, cfg.RateLimitMax, cfg.RateLimitWindow)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Printf("hookline: received signal %v, shutting down", received)

	// Phase 1: stop claiming and drain in-flight deliveries
	log.Println("hookline: stopping queue runtime (draining jobs)...")
	cancelRuntime()
	runtimeWg.Wait()
	log.Println("hookline: queue runtime stopped")

	// Phase 2: stop the reconciler (no new requeues)
	if cancelReconciler != nil {
		log.Println("hookline: stopping reconciler...")
		cancelReconciler()
		reconcilerWg.Wait()
		log.Println("hookline: reconciler stopped")
	}

	// Phase 3: stop the janitor
	if cancelJanitor != nil {
		log.Println("hookline: stopping janitor...")
		cancelJanitor()
		janitorWg.Wait()
	}

	// Phase 4: stop metrics endpoint
	shutdownServer("metrics server", metricsServer, cfg)

	log.Println("hookline: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("hookline version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
