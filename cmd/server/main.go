package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mauzec/taskindex/internal/api"
	"github.com/mauzec/taskindex/internal/cache"
	"github.com/mauzec/taskindex/internal/config"
	"github.com/mauzec/taskindex/internal/core"
	"github.com/mauzec/taskindex/internal/notify"
	"github.com/mauzec/taskindex/internal/paging"
	"github.com/mauzec/taskindex/internal/remote"
	"github.com/mauzec/taskindex/internal/service"
	"github.com/mauzec/taskindex/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	configAppName = "app"
	configExt     = "env"
	configDir     = "config"

	reloadTimeout = time.Minute
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout", "app_log.log"}
	cfg.ErrorOutputPaths = []string{"stderr", "app_log.log"}
	return cfg.Build()
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, group := range [][]prometheus.Collector{
		cache.Collectors(),
		paging.Collectors(),
		notify.Collectors(),
		service.Collectors(),
		api.Collectors(),
	} {
		reg.MustRegister(group...)
	}
	return reg
}

func main() {
	zapLogger, err := newLogger()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "cant init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	logger := zapLogger.Named("server")
	logger.Info("running server", zap.Int("pid", os.Getpid()))

	cfg, err := config.LoadAppConfig(configAppName, configExt, configDir)
	if err != nil || cfg == nil {
		logger.Fatal("cant read config, check file", zap.Error(err), zap.String("name", configAppName))
	}
	gin.SetMode(cfg.GinMode)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("cant create data dir", zap.Error(err), zap.String("dir", cfg.DataDir))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reloadCh := make(chan os.Signal, 1)
	signal.Notify(reloadCh, syscall.SIGHUP)
	defer signal.Stop(reloadCh)

	rem, err := remote.NewBoltRemote(filepath.Join(cfg.DataDir, "tasks.db"), &remote.BoltOptions{
		OpenTimeout: cfg.RemoteOpenTimeout,
	})
	if err != nil {
		logger.Fatal("cant open remote store", zap.Error(err))
	}

	bus := notify.NewBus(cfg.EventBuffer, zapLogger.Named("notify"))
	svc, err := service.NewTaskService(
		ctx,
		rem,
		service.NewPlaceholderIDGenerator(cfg.PlaceholderPrefix),
		time.Now,
		&service.Options{
			PageSize:       cfg.PageSize,
			CacheSize:      cfg.ResultCacheSize,
			SearchDebounce: cfg.SearchDebounce,
			WarmStart:      cfg.WarmStart,
			Publisher:      bus,
			Logger:         zapLogger.Named("store"),
		},
	)
	if err != nil {
		_ = rem.Close()
		logger.Fatal("cant create task service", zap.Error(err))
	}

	if !cfg.WarmStart {
		if _, err := svc.LoadMore(ctx, core.GlobalScope); err != nil {
			logger.Warn("cant load first page", zap.Error(err))
		}
		if cfg.PrefetchWorkers > 0 {
			err := worker.Prefetch(ctx, svc, worker.SectionScopes(), cfg.PrefetchWorkers, zapLogger.Named("prefetch"))
			if err != nil {
				logger.Warn("cant prefetch sections", zap.Error(err))
			}
		}
	}
	logger.Info("store ready", zap.Int("tasks", svc.Len()), zap.Bool("warm_start", cfg.WarmStart))

	srv, err := api.NewServer(&api.ServerOptions{
		TaskService: svc,
		Events:      bus,
		Metrics:     promhttp.HandlerFor(newRegistry(), promhttp.HandlerOpts{}),
		Logger:      zapLogger.Named("api"),
		Addr:        cfg.ServerAddr,
	})
	if err != nil {
		logger.Fatal("cant create api server", zap.Error(err))
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.ServerAddr))
		if err := srv.Run(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				return
			}
			errCh <- err
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			break loop
		case <-reloadCh:
			logger.Info("reload requested")
			rCtx, rCanc := context.WithTimeout(ctx, reloadTimeout)
			if err := svc.Reload(rCtx); err != nil {
				logger.Error("reload failed", zap.Error(err))
			} else {
				logger.Info("reload done", zap.Int("tasks", svc.Len()))
			}
			rCanc()
		case err := <-errCh:
			logger.Error("server failed", zap.Error(err))
			break loop
		}
	}

	// closing the bus ends open event streams so Shutdown does not wait on them
	bus.Close()
	offCtx, offCanc := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer offCanc()
	if err := srv.Shutdown(offCtx); err != nil {
		logger.Error("cant shutdown server", zap.Error(err))
	}
	svc.Close()
	if err := rem.Close(); err != nil {
		logger.Error("cant close remote store", zap.Error(err))
	}
	logger.Info("shutdown done")
}
