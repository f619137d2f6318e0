package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/davarch/pipeline-lineage/internal/application"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/config"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/logging"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/metrics"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const reloadDebounce = 300 * time.Millisecond

var watchNotify bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the scan scheduler",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := logging.New()
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Fatal("config", zap.Error(err))
		}

		targets := cfg.EnabledTargets()
		if len(targets) == 0 {
			log.Fatal("no enabled targets")
		}

		uc := newScanUseCase(cfg, log, watchNotify)
		sched := application.NewScheduler(log, uc, targets, cfg.Scan.Interval, cfg.Scan.PauseFile)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		watchAndReload(ctx, cfgPath, log, sched)
		serveMetrics(ctx, cfg.Metrics.Addr, log)

		log.Info("start",
			zap.String("version", version),
			zap.String("organization", cfg.AzureDevOps.Organization),
			zap.Int("targets", len(targets)),
			zap.Duration("every", cfg.Scan.Interval),
			zap.String("report", cfg.Report.Path),
			zap.String("azure_devops", cfg.AzureDevOps.BaseURL),
			zap.String("pause_file", cfg.Scan.PauseFile),
		)
		sched.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchNotify, "notify", false, "send a desktop notification after every scan")

	rootCmd.AddCommand(watchCmd)
}

func serveMetrics(ctx context.Context, addr string, log *zap.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
}

func watchAndReload(ctx context.Context, cfgPath string, log *zap.Logger, sched *application.Scheduler) {
	if cfgPath == "" {
		return
	}

	dir := filepath.Dir(cfgPath)
	base := filepath.Base(cfgPath)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify init failed", zap.Error(err))
		return
	}

	if err := w.Add(dir); err != nil {
		log.Warn("fsnotify add dir failed", zap.String("dir", dir), zap.Error(err))
		_ = w.Close()
		return
	}

	reload := func() {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Warn("config reload failed", zap.Error(err))
			return
		}
		targets := cfg.EnabledTargets()
		if len(targets) == 0 {
			log.Warn("config reload: no enabled targets")
		}
		sched.UpdateTargets(targets)
	}

	go func() {
		defer func() { _ = w.Close() }()

		var (
			mu    sync.Mutex
			timer *time.Timer
		)
		debounce := func() {
			mu.Lock()
			defer mu.Unlock()
			if timer == nil {
				timer = time.AfterFunc(reloadDebounce, reload)
				return
			}
			timer.Reset(reloadDebounce)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}

				if filepath.Base(ev.Name) != base {
					continue
				}

				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify error", zap.Error(err))
			}
		}
	}()
}
