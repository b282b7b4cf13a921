package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/plant-scan/internal/auth"
	"github.com/example/plant-scan/internal/catalog"
	"github.com/example/plant-scan/internal/config"
	"github.com/example/plant-scan/internal/detection"
	"github.com/example/plant-scan/internal/extractor"
	"github.com/example/plant-scan/internal/grpcdetect"
	"github.com/example/plant-scan/internal/handlers"
	"github.com/example/plant-scan/internal/logging"
	"github.com/example/plant-scan/internal/matcher"
	"github.com/example/plant-scan/internal/repository"
	"github.com/example/plant-scan/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)
	repo := repository.NewDetectionRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	cache := initCache(redisCtx, cfg.RedisAddr, logger)

	cat := loadCatalog(cfg.CatalogFile, logger)
	ex := extractor.NewRandomExtractor(cat, extractor.Config{MinTags: cfg.MinTags, MaxTags: cfg.MaxTags})
	m := matcher.New(cat, matcher.Config{Threshold: &cfg.FallbackThreshold})
	detector := detection.NewLocalDetector(ex, m, logger)

	uc := usecase.NewDetectionUseCase(repo, cache, detector, logger)
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience)

	grpcServer := grpcdetect.NewGRPCServer(verifier)
	grpcdetect.Register(grpcServer, uc, logger)
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen for gRPC", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go serveGRPC(grpcServer, grpcListener, logger)
	defer grpcServer.GracefulStop()

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize
	handlers.RegisterRoutes(r, uc, cat, auth.JWTMiddleware(verifier))

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	logger.Info("plant detection API listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("catalog_version", cat.Version()),
		zap.Int("catalog_entries", cat.Len()),
	)
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

// initCache connects to redis, or falls back to an in-process cache when no
// address is configured.
func initCache(ctx context.Context, addr string, zapLogger *zap.Logger) usecase.Cache {
	if addr == "" {
		zapLogger.Info("REDIS_ADDR not set, using in-memory result cache")
		return usecase.NewMemoryCache(time.Minute)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return usecase.NewRedisCache(client)
}

func loadCatalog(path string, zapLogger *zap.Logger) *catalog.Catalog {
	if path == "" {
		return catalog.Builtin()
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		zapLogger.Fatal("failed to load catalog", zap.String("path", path), zap.Error(err))
	}
	return cat
}

func serveGRPC(s *grpc.Server, lis net.Listener, logger *zap.Logger) {
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("gRPC server stopped", zap.Error(err))
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithListener(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, listener, nil)
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

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

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
