// Command ghostlined is the ghostline daemon.
// It listens on a Unix domain socket for completion triggers from editor
// hosts and streams inline completions from the configured endpoint.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ghostline "github.com/Paranoid-AF/ghostline"
	"github.com/Paranoid-AF/ghostline/generate"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "log every request, response, and session transition")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	noWatch := flag.Bool("no-watch", false, "do not reload when the config file changes")
	flag.Parse()

	if *showVersion {
		fmt.Println("ghostlined", Version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	socketPath := resolveSocketPath()

	slog.Info("starting", "socket", socketPath, "version", Version)

	var srv *Server
	metrics := generate.NewMetrics(prometheus.DefaultRegisterer, func() int {
		if srv == nil {
			return 0
		}
		return srv.activeSessions()
	})
	projects := generate.NewProjectCache()
	defer projects.Close()

	srv, err := NewServer(socketPath, generate.WithMetrics(metrics), generate.WithProjectCache(projects))
	if err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	if !*noWatch {
		w, err := WatchConfig(ghostline.ConfigDir(), srv.reloadEngine)
		if err != nil {
			slog.Debug("not watching config", "dir", ghostline.ConfigDir(), "error", err)
		} else {
			defer w.Close()
		}
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("shutting down")
		srv.Close()
		os.Exit(0)
	}()

	slog.Info("ready")
	if err := srv.Serve(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", "error", err)
	}
}

func resolveSocketPath() string {
	if path := os.Getenv("GHOSTLINE_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/ghostline.sock"
	}
	return fmt.Sprintf("/tmp/ghostline-%d.sock", os.Getuid())
}
