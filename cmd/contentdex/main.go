package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/atlasmeta/contentdex/internal/config"
	"github.com/atlasmeta/contentdex/internal/db"
	dbRedis "github.com/atlasmeta/contentdex/internal/db/redis"
	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	logpkg "github.com/atlasmeta/contentdex/internal/logger"
	"github.com/atlasmeta/contentdex/internal/metrics"
	contentrepo "github.com/atlasmeta/contentdex/internal/repository/content"
	"github.com/atlasmeta/contentdex/internal/repository/content/memindex"
	"github.com/atlasmeta/contentdex/internal/repository/equivalence"
	"github.com/atlasmeta/contentdex/internal/repository/equivalence/mongoeq"
	chiTransport "github.com/atlasmeta/contentdex/internal/transport/chi"
	natsTransport "github.com/atlasmeta/contentdex/internal/transport/nats"
	"github.com/atlasmeta/contentdex/internal/usecase/canonical"
	healthuc "github.com/atlasmeta/contentdex/internal/usecase/health"
	indexeruc "github.com/atlasmeta/contentdex/internal/usecase/indexer"
	searchuc "github.com/atlasmeta/contentdex/internal/usecase/search"
	"github.com/atlasmeta/contentdex/internal/version"
)

// contentIndex is what the usecases need from an index backend.
type contentIndex interface {
	indexeruc.Index
	searchuc.Index
}

// resolver is the read and write side of an equivalence backend.
type resolver interface {
	searchuc.Equivalence
	Assign(ctx context.Context, canonical content.ID, members []content.ID) (class, detached []content.ID, err error)
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic("failed to load .env: " + err.Error())
	}

	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting contentdex API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("equivalence_driver", cfg.Equivalence.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterHTTPMetrics()
	metrics.RegisterQueryMetrics()
	metrics.RegisterIngestMetrics()

	// Index backend
	var (
		store db.Store
		idx   contentIndex
		dbChk healthuc.Pinger
	)
	switch cfg.Database.Driver {
	case config.DriverRedis:
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")

		repo := contentrepo.New(store, cfg.Index.KeyPrefix).WithMaxNestedJoin(cfg.Index.MaxNestedJoin)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Fatal("Failed to ensure indexes", zap.Error(err))
		}
		idx, dbChk = repo, store
	case config.DriverMemory:
		mem, err := memindex.New()
		if err != nil {
			logger.Fatal("Failed to create in-memory index", zap.Error(err))
		}
		defer func() { _ = mem.Close() }()
		idx = mem
		dbChk = healthuc.PingFunc(func(context.Context) error { return nil })
		logger.Warn("Using in-memory index; data is lost on restart")
	}

	health := healthuc.New(dbChk)

	// Equivalence backend
	var eq resolver
	switch {
	case cfg.Equivalence.Driver == config.DriverMongo:
		m := cfg.Equivalence.Mongo
		mstore, err := mongoeq.Connect(ctx, m.URI, m.Database, m.Collection)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() { _ = mstore.Close(context.Background()) }()
		if err := mstore.EnsureIndexes(ctx); err != nil {
			logger.Fatal("Failed to ensure equivalence indexes", zap.Error(err))
		}
		eq = mstore
		health.WithCheck("equivalence", mstore)
	case store != nil:
		eq = equivalence.New(store, cfg.Index.KeyPrefix)
	default:
		logger.Warn("Redis equivalence needs the redis database driver; using in-memory equivalence")
		eq = equivalence.NewMemory()
	}

	// Use case services
	observer := metrics.Recorder{}
	engine := searchuc.New(idx, eq)
	canonicalSvc := canonical.New(engine, eq).
		WithPolicy(domain.WideningPolicy{
			InitialFactor: cfg.Query.InitialFactor,
			GrowthFactor:  cfg.Query.GrowthFactor,
			MaxRounds:     cfg.Query.MaxRounds,
			MaxWindow:     cfg.Query.MaxWindow,
		}).
		WithTimeout(cfg.Query.Timeout()).
		WithObserver(observer)
	indexSvc := indexeruc.New(idx).
		WithEquivalence(eq).
		WithObserver(observer).
		WithMaxBatchSize(cfg.Index.MaxBatchSize)

	// Ingestion stream
	consumerDone := make(chan error, 1)
	if cfg.NATS.Enabled {
		nc, err := natsgo.Connect(cfg.NATS.URL, natsgo.Name("contentdex"))
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		defer nc.Drain() //nolint:errcheck // best-effort on shutdown

		consumer, err := natsTransport.NewConsumer(nc, indexSvc, logger,
			natsTransport.WithStream(cfg.NATS.Stream),
			natsTransport.WithDurable(cfg.NATS.Consumer),
			natsTransport.WithObserver(observer),
		)
		if err != nil {
			logger.Fatal("Failed to create ingestion consumer", zap.Error(err))
		}
		health.WithCheck("nats", healthuc.PingFunc(func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		}))
		go func() { consumerDone <- consumer.Start(ctx) }()
	} else {
		close(consumerDone)
	}

	// HTTP server
	server := chiTransport.NewServer(
		canonicalSvc,
		chiTransport.QueryFunc(engine.Results),
		indexSvc,
		idx,
		health,
		logger,
	).WithPagination(cfg.Index.DefaultPageSize, cfg.Index.MaxPageSize)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, chiTransport.CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, chiTransport.CodeBadRequest, "method not allowed")
	})
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := <-consumerDone; err != nil {
		logger.Error("Ingestion consumer error", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func writeJSONError(w http.ResponseWriter, status int, code chiTransport.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{Code: code, Message: message})
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					writeJSONError(w, http.StatusInternalServerError, chiTransport.CodeInternalError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
