package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/goopick/madstamp/internal/analysis"
	"github.com/goopick/madstamp/internal/artifact"
	"github.com/goopick/madstamp/internal/async"
	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/dedup"
	"github.com/goopick/madstamp/internal/export"
	"github.com/goopick/madstamp/internal/genbridge"
	"github.com/goopick/madstamp/internal/generation"
	"github.com/goopick/madstamp/internal/ingest"
	"github.com/goopick/madstamp/internal/lifecycle"
	"github.com/goopick/madstamp/internal/notify"
	"github.com/goopick/madstamp/internal/ocrspace"
	"github.com/goopick/madstamp/internal/pipeline"
	repo "github.com/goopick/madstamp/internal/repository"
	"github.com/goopick/madstamp/internal/scoring"
	"github.com/goopick/madstamp/internal/server"
	"github.com/goopick/madstamp/internal/vectorize"
	"github.com/goopick/madstamp/internal/vision"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, closeDB, err := repo.Open(ctx, repo.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	if err := repo.HealthCheck(ctx, db, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	var store collab.ArtifactStore
	if cfg.Storage.Endpoint != "" {
		s, err := artifact.NewStore(ctx, cfg.Storage, logger)
		if err != nil {
			logger.Error("failed to connect object storage", "error", err)
			os.Exit(1)
		}
		store = s
	} else {
		logger.Warn("no storage endpoint configured, artifacts held in memory")
		store = artifact.NewMemory()
	}

	orders := repo.NewOrderRepository(db, logger)
	analyses := repo.NewAnalysisRepository(db, logger)
	attempts := repo.NewGenerationRepository(db, logger)
	deduper := dedup.NewSQL(db)

	notifier := notify.NewLogNotifier(cfg.Company, logger)
	machine := lifecycle.NewMachine(orders, notifier, cfg.Analysis.MaxReminders, logger)

	engine := scoring.NewEngine(scoring.Weights{
		Resolution:           cfg.Scoring.WeightResolution,
		EdgeClarity:          cfg.Scoring.WeightEdge,
		ColorSimplicity:      cfg.Scoring.WeightColor,
		BackgroundSeparation: cfg.Scoring.WeightBackground,
		Complexity:           cfg.Scoring.WeightComplexity,
		AIJudgment:           cfg.Scoring.WeightAIJudgment,
	}, cfg.Scoring.ProducibleAt, cfg.Scoring.ClarificationAt, cfg.Scoring.GoodEnoughAt)

	classifier := vision.NewClassifier(cfg.Vision, logger)
	extractor := ocrspace.NewClient(cfg.OCR, logger)
	analyzer := analysis.NewCoordinator(classifier, extractor, store, engine, cfg.Analysis, logger)

	converter := vectorize.NewConverter(store, vectorize.NewExecRunner(), cfg.Conversion, logger)
	if err := converter.CheckTools(ctx); err != nil {
		logger.Warn("vector tool probe failed, conversion will fail until fixed", "error", err)
	}
	bridge := genbridge.NewClient(cfg.Generation.BridgeURL, cfg.Generation.PollInterval*5, logger)
	producer := generation.NewCoordinator(bridge, converter, attempts, machine,
		cfg.Generation, cfg.Conversion, logger)

	processor := pipeline.NewProcessor(orders, analyses, machine, analyzer, producer, logger)

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Workers.Count),
		async.WithQueueSize(cfg.Workers.QueueSize),
		async.WithProcessTimeout(cfg.Workers.ProcessTimeout),
	)
	machine.SetSink(func(evt lifecycle.Event) {
		if pipeline.ShouldEnqueue(evt) {
			_ = queue.Enqueue(context.Background(), async.Job{OrderID: evt.OrderID, SubmittedAt: time.Now()})
		}
	})

	ingestSvc := ingest.NewService(deduper, store, machine, logger)
	exportSvc := export.NewService(orders, attempts, logger)
	api := server.New(ingestSvc, orders, analyses, attempts, machine, exportSvc, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http serve error", "error", err)
			os.Exit(1)
		}
	}()

	// gRPC carries only health and reflection; orchestration tooling probes it.
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)
	go func() {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on grpc address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		logger.Info("grpc listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	_ = httpSrv.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
