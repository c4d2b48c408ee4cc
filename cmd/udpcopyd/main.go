package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mateuskih/Trabalho-1-UDP/cli/output"
	"github.com/mateuskih/Trabalho-1-UDP/internal"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/metrics"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/server"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "path to server config file (TOML)")
	port := flag.Int("port", 0, "override the configured UDP listen port")
	rootDir := flag.String("root", "", "override the configured file root directory")
	metricsAddr := flag.String("metrics-addr", "", "override the configured Prometheus listen address")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	cfg, err := internal.LoadServerConfig(*configPath)
	if err != nil {
		internal.Error("failed to load server config", internal.Fields{
			internal.FieldError: err.Error(),
		})
		os.Exit(1)
	}

	overridden := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { overridden[f.Name] = true })
	if overridden["port"] {
		cfg.Port = *port
	}
	if overridden["root"] {
		cfg.RootDir = *rootDir
	}
	if overridden["metrics-addr"] {
		cfg.MetricsAddr = *metricsAddr
	}
	if overridden["log-level"] {
		cfg.LogLevel = *logLevel
	}

	if err := internal.ConfigureLogger(cfg.LogLevel); err != nil {
		internal.Warn("invalid log level, defaulting to info", internal.Fields{
			internal.FieldError: err.Error(),
		})
	}

	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		internal.Error("failed to create file root", internal.Fields{
			internal.FieldError: err.Error(),
		})
		os.Exit(1)
	}

	collector := metrics.NewServerCollector("")
	srv := server.New(cfg, storage.NewDir(cfg.RootDir), collector)

	if _, err := srv.Listen(ctx); err != nil {
		internal.Error("failed to bind udp listener", internal.Fields{
			internal.FieldPort:  cfg.Port,
			internal.FieldError: err.Error(),
		})
		os.Exit(1)
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			internal.Info("metrics endpoint listening", internal.Fields{
				internal.FieldPeer: cfg.MetricsAddr,
			})
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				internal.Warn("metrics endpoint failed", internal.Fields{
					internal.FieldError: err.Error(),
				})
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx)
	}()

	stopped := false
	select {
	case sig := <-sigChan:
		internal.Info("signal received, shutting down", internal.Fields{
			internal.FieldReason: sig.String(),
		})
		cancel()
	case err := <-errCh:
		if err != nil {
			internal.Error("server stopped", internal.Fields{
				internal.FieldError: err.Error(),
			})
		}
		cancel()
		stopped = true
	}

	_ = srv.Close()
	if !stopped {
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			internal.Warn("timed out waiting for sessions to drain", nil)
		}
	}

	if metricsSrv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancelShutdown()
	}

	output.NewPrinter().RenderServerStats(collector.Snapshot())
	internal.Info("shutdown complete", nil)
}
