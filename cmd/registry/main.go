// Command registry runs the mesh registry server: storage, resolver,
// health sweep, and the HTTP API, wired together the way the teacher's
// gateway command wires route table, MCP handler, and metrics server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/meshfabric/core/internal/bootstrap"
	"github.com/meshfabric/core/internal/health"
	"github.com/meshfabric/core/internal/logging"
	"github.com/meshfabric/core/internal/registryapi"
	"github.com/meshfabric/core/internal/resolver"
	"github.com/meshfabric/core/internal/store"
)

func main() {
	var (
		addr            string
		snapshotPath    string
		bootstrapFile   string
		sweepInterval   time.Duration
		shutdownGrace   time.Duration
	)

	flag.StringVar(&addr, "addr", ":8000", "HTTP listen address")
	flag.StringVar(&snapshotPath, "snapshot-path", "", "Path to a durable agent snapshot file (empty disables persistence)")
	flag.StringVar(&bootstrapFile, "bootstrap-file", "", "Optional seed file watched for hot-reload (empty disables watching)")
	flag.DurationVar(&sweepInterval, "sweep-interval", health.DefaultSweepInterval, "Health sweep interval")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 10*time.Second, "Graceful shutdown grace period")
	flag.Parse()

	logger := logging.NewLogger("registry")
	defer func() { _ = logger.Sync() }()

	logger.Infof("Starting mesh registry on %s (sweep=%s)", addr, sweepInterval)

	var opts []store.Option
	if snapshotPath != "" {
		opts = append(opts, store.WithSnapshotPath(snapshotPath))
	}
	st := store.New(logger, opts...)
	res := resolver.New(st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := health.New(st, sweepInterval, logger)
	go sweeper.Run(ctx)

	if bootstrapFile != "" {
		if f, err := bootstrap.Load(bootstrapFile); err != nil {
			logger.Errorf("failed to load bootstrap file %s: %v", bootstrapFile, err)
		} else {
			n := bootstrap.Apply(st, f)
			logger.Infof("applied %d agent(s) from bootstrap file %s", n, bootstrapFile)
		}
		go watchBootstrapFile(logger, st, bootstrapFile)
	}

	handler := registryapi.NewHandler(st, res, logger, nil)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("registry server error: %v", err)
		}
	}()

	logger.Infof("Mesh registry listening on %s", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down registry...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("registry server shutdown error: %v", err)
	}

	logger.Info("Registry stopped")
}

// watchBootstrapFile hot-reloads a seed file of pre-registered agents,
// the same way the teacher's gateway hot-reloads its routes file. A
// bootstrap file is optional; absence of one means the registry starts
// empty and relies entirely on live registration traffic.
func watchBootstrapFile(logger *zap.SugaredLogger, st *store.Store, path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Errorf("failed to create bootstrap file watcher: %v", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logger.Errorf("failed to watch directory %s: %v", dir, err)
		return
	}

	logger.Infof("watching %s for changes", path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				f, err := bootstrap.Load(path)
				if err != nil {
					logger.Errorf("bootstrap file reload failed: %v", err)
					continue
				}
				n := bootstrap.Apply(st, f)
				logger.Infof("bootstrap file changed; re-applied %d agent(s)", n)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Errorf("bootstrap file watcher error: %v", err)
		}
	}
}
