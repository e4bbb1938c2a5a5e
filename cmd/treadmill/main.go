package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"treadmill/internal/common/cache"
	"treadmill/internal/common/queue"
	"treadmill/internal/common/storage"
	"treadmill/internal/judge/apiclient"
	"treadmill/internal/judge/config"
	"treadmill/internal/judge/container"
	"treadmill/internal/judge/datapack"
	"treadmill/internal/judge/model"
	"treadmill/internal/judge/service"
	appErr "treadmill/pkg/errors"
	"treadmill/pkg/utils/logger"
	"treadmill/pkg/utils/telemetry"
)

const (
	defaultShutdownTimeout = 10 * time.Second

	// minWorkspaceFree is the least free space preflight accepts on the
	// workspace filesystem.
	minWorkspaceFree = int64(1) << 30
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(2)
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(2)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := preflight(cfg); err != nil {
		logger.Error(context.Background(), "preflight failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(2)
	}

	if err := telemetry.Init(telemetry.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Profile,
		Release:     version,
	}); err != nil {
		logger.Warn(context.Background(), "init telemetry failed", zap.Error(err))
	}
	defer telemetry.Flush(2 * time.Second)

	langs := make([]string, 0, len(model.SupportedLanguages()))
	for _, lang := range model.SupportedLanguages() {
		langs = append(langs, lang.DisplayName)
	}
	logger.Info(context.Background(), "treadmill worker starting",
		zap.String("version", version),
		zap.String("profile", cfg.Profile),
		zap.Strings("languages", langs))

	broker, err := queue.NewRedisBroker(queue.RedisBrokerConfig{
		Addr:       cfg.Redis.Addr(),
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		MaxRetries: cfg.Queue.MaxRetries,
	})
	if err != nil {
		logger.Error(context.Background(), "init redis broker failed", zap.Error(err))
		return
	}
	defer func() {
		_ = broker.Close()
	}()

	containers, err := container.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		logger.Error(context.Background(), "init docker client failed", zap.Error(err))
		return
	}
	defer func() {
		_ = containers.Close()
	}()

	api, err := apiclient.NewClient(cfg.API.Endpoint, cfg.API.SecretKey, cfg.API.Timeout)
	if err != nil {
		logger.Error(context.Background(), "init api client failed", zap.Error(err))
		return
	}

	var packs datapack.Provider
	if cfg.Workspace.S3FSRoot != "" {
		packs = datapack.NewS3FS(cfg.Workspace.S3FSRoot)
	}
	if cfg.Storage.Enabled() {
		objStorage, err := storage.NewMinIOStorage(storage.MinIOConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
		if err != nil {
			logger.Error(context.Background(), "init object storage failed", zap.Error(err))
			return
		}
		lockCfg := cache.DefaultRedisConfig()
		lockCfg.Addr = cfg.Redis.Addr()
		lockCfg.Password = cfg.Redis.Password
		lockCfg.DB = cfg.Redis.DB
		lockCache, err := cache.NewRedisCacheWithConfig(lockCfg)
		if err != nil {
			logger.Error(context.Background(), "init datapack lock failed", zap.Error(err))
			return
		}
		defer func() {
			_ = lockCache.Close()
		}()
		cached := datapack.NewCache(datapack.CacheConfig{
			RootDir:  cfg.Storage.CacheDir,
			Bucket:   cfg.Storage.Bucket,
			MaxBytes: cfg.Storage.CacheLimitBytes,
		}, objStorage, lockCache)
		if packs != nil {
			packs = datapack.NewFallback(packs, cached)
		} else {
			packs = cached
		}
	}

	deps := service.Deps{
		Config:     cfg,
		Broker:     broker,
		API:        api,
		Containers: containers,
		DataPacks:  packs,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, w := range []*service.Worker{service.NewJudgeWorker(deps), service.NewRetryWorker(deps)} {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	if cfg.Debug.Enabled {
		if cfg.Profile == config.ProfileProd {
			gin.SetMode(gin.ReleaseMode)
		}
		debugSrv := service.NewDebugServer(cfg, broker)
		go func() {
			logger.Info(context.Background(), "debug server started", zap.String("addr", cfg.Debug.Addr))
			if err := debugSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(context.Background(), "debug server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := debugSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error(context.Background(), "debug server shutdown failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received, draining")
	wg.Wait()
	logger.Info(context.Background(), "treadmill worker stopped")
}

// preflight rejects hosts the worker cannot judge on before the first
// queue pop: the workspace root must be writable with some headroom,
// and the s3fs mount must exist when one is configured.
func preflight(cfg *config.Config) error {
	root := cfg.Workspace.HostRoot
	if err := os.MkdirAll(root, 0o755); err != nil {
		return appErr.Wrapf(err, appErr.WorkspaceError, "create workspace root %s", root)
	}
	if err := unix.Access(root, unix.W_OK); err != nil {
		return appErr.Wrapf(err, appErr.WorkspaceError, "workspace root %s is not writable", root)
	}
	var fs unix.Statfs_t
	if err := unix.Statfs(root, &fs); err != nil {
		return appErr.Wrapf(err, appErr.WorkspaceError, "statfs %s", root)
	}
	if free := int64(fs.Bavail) * fs.Bsize; free < minWorkspaceFree {
		return appErr.Newf(appErr.WorkspaceError,
			"workspace root %s has only %d bytes free", root, free)
	}
	if s3fs := cfg.Workspace.S3FSRoot; s3fs != "" {
		if _, err := os.Stat(s3fs); err != nil {
			return appErr.Wrapf(err, appErr.WorkspaceError, "s3fs root %s", s3fs)
		}
	}
	return nil
}
