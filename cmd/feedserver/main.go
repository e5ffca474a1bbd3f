package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/DualCap/internal/feed"
	"github.com/cjeanneret/DualCap/internal/metrics"
)

// Environment keys read by the feed server.
const (
	envAddr         = "FEED_ADDR"
	envMongoURI     = "FEED_MONGO_URI"
	envMongoDB      = "FEED_MONGO_DB"
	envJWTSecret    = "FEED_JWT_SECRET"
	envPasswordHash = "FEED_PASSWORD_HASH"
)

type settings struct {
	Addr         string
	MongoURI     string
	MongoDB      string
	JWTSecret    string
	PasswordHash string
}

// loadSettings reads the server settings from the environment, after
// merging the optional dotenv file. Real environment variables win.
func loadSettings(envFile string) (settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return settings{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	s := settings{
		Addr:         getenv(envAddr, ":8081"),
		MongoURI:     os.Getenv(envMongoURI),
		MongoDB:      getenv(envMongoDB, "dualcap"),
		JWTSecret:    os.Getenv(envJWTSecret),
		PasswordHash: os.Getenv(envPasswordHash),
	}
	if s.JWTSecret == "" {
		return settings{}, fmt.Errorf("%s is required", envJWTSecret)
	}
	if s.PasswordHash == "" {
		return settings{}, fmt.Errorf("%s is required (generate one with -hash)", envPasswordHash)
	}
	return s, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file with FEED_* variables")
	hash := flag.String("hash", "", "print the bcrypt hash of the given password and exit")
	flag.Parse()

	if *hash != "" {
		h, err := feed.HashPassword(*hash)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(h)
		return
	}

	cfg, err := loadSettings(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("feed server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg settings, logger *zap.Logger) error {
	auth, err := feed.NewAuth(cfg.JWTSecret, cfg.PasswordHash)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	srv := feed.NewServer(store, auth, logger, metrics.NewFeed(reg))

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("feed server listening", zap.String("addr", cfg.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down feed server")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore connects to MongoDB when a URI is configured and falls back to
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg settings, logger *zap.Logger) (feed.Store, func(), error) {
	if cfg.MongoURI == "" {
		logger.Warn("no MongoDB URI configured, moments are kept in memory")
		return feed.NewMemoryStore(), func() {}, nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	m, err := feed.ConnectMongo(connectCtx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDB))
	return m, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Close(closeCtx); err != nil {
			logger.Warn("closing MongoDB failed", zap.Error(err))
		}
	}, nil
}
