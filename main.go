package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/auth"
	"github.com/example/face-verify/internal/backends"
	"github.com/example/face-verify/internal/config"
	"github.com/example/face-verify/internal/embedding"
	"github.com/example/face-verify/internal/handlers"
	"github.com/example/face-verify/internal/logging"
	"github.com/example/face-verify/internal/repository"
	"github.com/example/face-verify/internal/telemetry"
	"github.com/example/face-verify/internal/tensorcache"
	"github.com/example/face-verify/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The backend is loaded once; a service that cannot embed does not start.
	backend, closeBackend, err := backends.New(ctx, backends.FromConfig(cfg), logger)
	if err != nil {
		logger.Fatal("failed to load embedding backend", zap.Error(err))
	}
	defer closeBackend() //nolint:errcheck

	provider, err := embedding.NewProvider(backend, cfg.EmbeddingDim, cfg.MaxImageSide, logger)
	if err != nil {
		logger.Fatal("invalid embedding configuration", zap.Error(err))
	}

	store, closeStore, err := initTensorStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open tensor cache", zap.Error(err), zap.String("backend", cfg.TensorCacheBackend))
	}
	defer closeStore()

	deps := usecase.Dependencies{
		Embedder: provider,
		Tensors:  tensorcache.New(store, cfg.EmbeddingDim, logger),
		Logger:   logger,
	}

	if cfg.DatabaseDSN != "" {
		db, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, cfg.IsDevelopment())
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		repo := repository.NewVerificationRepository(db, logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		deps.Repo = repo
	} else {
		logger.Info("DATABASE_DSN not set, verification history disabled")
	}

	if cfg.RedisAddr != "" {
		redisClient := initRedis(ctx, cfg.RedisAddr, logger)
		defer redisClient.Close()
		deps.Cache = usecase.NewRedisCache(redisClient)
	}

	if cfg.NATSURL != "" {
		nc, err := telemetry.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("nats unavailable, monitoring events disabled", zap.Error(err))
		} else {
			defer nc.Drain() //nolint:errcheck
			deps.Publisher = telemetry.NewNATSPublisher(nc, cfg.MonitoringTopic, logger)
		}
	}

	uc, err := usecase.NewVerificationUseCase(deps)
	if err != nil {
		logger.Fatal("failed to build verification use case", zap.Error(err))
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			logger.Fatal("JWT_SECRET is required in production")
		}
		logger.Warn("JWT_SECRET not set, authentication disabled")
	}
	r := newRouter(cfg, uc, logger)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("face verification API listening",
		zap.String("addr", cfg.Addr()),
		zap.String("backend", cfg.EmbeddingBackend),
		zap.Int("dimension", cfg.EmbeddingDim),
		zap.String("tensor_cache", cfg.TensorCacheBackend),
	)
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, svc handlers.VerificationService, logger *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.MaxMultipartMemory = cfg.MaxUploadSize

	var authMiddleware gin.HandlerFunc
	if cfg.JWTSecret != "" {
		authMiddleware = auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	}

	handlers.RegisterRoutes(r, svc, handlers.Options{
		MaxUploadSize:  cfg.MaxUploadSize,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	}, authMiddleware)
	return r
}

// initTensorStore opens the configured tensor cache storage.
func initTensorStore(ctx context.Context, cfg *config.Config) (tensorcache.Store, func(), error) {
	switch cfg.TensorCacheBackend {
	case config.CacheS3:
		blobs, err := tensorcache.NewS3Blobs(tensorcache.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return tensorcache.NewBlobStore(blobs), func() {}, nil

	case config.CachePGVector:
		pool, err := pgxpool.New(ctx, cfg.PGVectorDSN())
		if err != nil {
			return nil, nil, err
		}
		store := tensorcache.NewPGVectorStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		blobs, err := tensorcache.NewDiskBlobs(cfg.TensorCacheDir)
		if err != nil {
			return nil, nil, err
		}
		return tensorcache.NewBlobStore(blobs), func() {}, nil
	}
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		// result caching is best-effort; the client keeps retrying
		zapLogger.Warn("redis ping failed", zap.Error(err), zap.String("addr", addr))
	}
	return client
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
