package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/termweave/termweave/internal/server"
	"github.com/termweave/termweave/terminal"
)

func main() {
	var addr string
	var staticDir string
	var recordsPath string
	var logLevel string
	var scrollback int
	var shellIntegration bool
	flag.StringVar(&addr, "addr", ":8080", "HTTP listen address")
	flag.StringVar(&staticDir, "static", "", "path to the web UI build directory")
	flag.StringVar(&recordsPath, "records", "", "path to the session collection file (restored on start, saved on shutdown)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flag.IntVar(&scrollback, "scrollback", 0, "scrollback lines per session (0 = default)")
	flag.BoolVar(&shellIntegration, "shell-integration", true, "launch shells with working-directory reporting hooks")
	flag.Parse()

	logger := terminal.NewStdLogger(terminal.ParseLogLevel(logLevel))

	managerConfig := terminal.ManagerConfig{
		Logger:          logger,
		ScrollbackLines: scrollback,
	}
	if shellIntegration {
		managerConfig.ShellIntegration = &terminal.ShellIntegration{}
	}

	srv, err := server.New(server.Config{
		StaticDir:   staticDir,
		RecordsPath: recordsPath,
		Manager:     managerConfig,
	})
	if err != nil {
		logger.Error("server init failed", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}

	go func() {
		logger.Info("termweave server listening", "addr", addr)
		if staticDir != "" {
			logger.Info("serving web UI", "staticDir", staticDir)
			if url := displayLocalAccessURL(addr); url != "" {
				logger.Info("open in browser", "url", url)
			}
		} else {
			logger.Info("no static dir configured; API only")
		}
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := srv.Close(); err != nil {
		logger.Warn("session shutdown incomplete", "error", err)
	}
}

func displayLocalAccessURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}

	// Listening on all interfaces is common, but "localhost" is the most
	// helpful address to show for local browsing.
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}

	return "http://" + net.JoinHostPort(host, port)
}
