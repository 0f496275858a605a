// Command tabweave attaches to a live video watch page and keeps its
// injected tab layout coherent with the host SPA.
//
// Usage:
//
//	tabweave -config tabweave.yaml            # attach per YAML config
//	tabweave -url https://example.com/watch   # quick attach with defaults
//	tabweave -url ... -mcp                    # also serve MCP tools on stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tabweave/tabweave/hostdom"
	"github.com/tabweave/tabweave/internal/config"
	"github.com/tabweave/tabweave/journal"
	"github.com/tabweave/tabweave/mcpctl"
	"github.com/tabweave/tabweave/reconcile"
	"github.com/tabweave/tabweave/statushttp"
)

func main() {
	configPath := flag.String("config", "", "path to tabweave.yaml config file")
	url := flag.String("url", "", "watch page URL (quick attach with defaults)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	mcpStdio := flag.Bool("mcp", false, "serve MCP control tools on stdio")
	statusAddr := flag.String("status", "", "status endpoint address (overrides config)")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *url, *mcpStdio, *statusAddr); err != nil {
		logger.Error("tabweave: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, url string, mcpStdio bool, statusAddr string) error {
	var cfg *config.Config
	switch {
	case configPath != "":
		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	case url != "":
		cfg = config.Default(url)
	default:
		fmt.Fprintln(os.Stderr, "usage: tabweave -config <file> | -url <url>")
		os.Exit(1)
	}
	if statusAddr != "" {
		cfg.Status.Addr = statusAddr
	}

	// Browser + adapter.
	roles := make(map[string]hostdom.RoleSpec, len(cfg.Roles))
	for role, rc := range cfg.Roles {
		roles[role] = hostdom.RoleSpec{Selectors: rc.Selectors, Attributes: rc.Attributes}
	}
	session, err := hostdom.Attach(ctx, cfg.Page.URL,
		hostdom.BrowserConfig{
			Remote:          cfg.Browser.Remote,
			Headful:         cfg.Browser.Stealth == "headful",
			RecycleInterval: cfg.Browser.RecycleInterval,
			XvfbDisplay:     cfg.Browser.XvfbDisplay,
		},
		hostdom.Config{
			Roles:          roles,
			DebounceWindow: cfg.Debounce.Window,
			DebounceMax:    cfg.Debounce.MaxBuffer,
			SettleWait:     cfg.Page.SettleWait,
			Logger:         logger,
		})
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	defer session.Close()
	adapter := session.Adapter

	// Journal.
	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()
		jrnl = journal.New(db, cfg.Journal.Buffer, 2*time.Second, logger)
		defer jrnl.Close()
	}

	// Engine.
	engineCfg := reconcile.Config{
		Host:   adapter,
		Source: adapter,
		Logger: logger,
	}
	if jrnl != nil {
		engineCfg.Recorder = jrnl
	}
	engine := reconcile.New(engineCfg)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}
	defer engine.Stop()

	// Status endpoint.
	if cfg.Status.Addr != "" {
		srv := &http.Server{
			Addr:    cfg.Status.Addr,
			Handler: statushttp.New(engine, jrnl, logger).Router(),
		}
		go func() {
			logger.Info("tabweave: status endpoint", "addr", cfg.Status.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("tabweave: status endpoint failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// MCP on stdio.
	if mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{Name: "tabweave", Version: "0.1.0"}, nil)
		mcpctl.New(engine, jrnl, logger).Register(srv)
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
				logger.Error("tabweave: mcp server stopped", "error", err)
			}
		}()
	}

	logger.Info("tabweave: running", "url", cfg.Page.URL)
	<-ctx.Done()
	return nil
}
