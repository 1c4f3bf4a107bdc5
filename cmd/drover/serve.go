package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/runtime"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host  string `help:"Bind host. Overrides the config."`
	Port  int    `help:"Bind port. Overrides the config."`
	Watch bool   `help:"Watch the config source and log changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return err
	}
	defer loader.Close()

	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Shutdown(context.Background()); err != nil {
			slog.Warn("Shutdown finished with errors", "error", err)
		}
	}()

	if c.Watch {
		// Reloads are logged; a restart applies them.
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	srv, err := rt.Server()
	if err != nil {
		return err
	}

	printServeInfo(cfg, rt, srv.Addr())

	return srv.Run(ctx)
}

func printServeInfo(cfg *config.Config, rt *runtime.Runtime, addr string) {
	accent, reset := "", ""
	if term.IsTerminal(int(os.Stdout.Fd())) {
		accent = "\033[38;2;217;119;6m"
		reset = "\033[0m"
	}

	fmt.Printf("\n%sdrover ready%s\n", accent, reset)
	fmt.Printf("   API:      http://%s/v1\n", addr)
	fmt.Printf("   Health:   http://%s/healthz\n", addr)
	fmt.Printf("   Metrics:  http://%s/metrics\n", addr)

	auth := "disabled"
	if cfg.Server.Auth.Enabled {
		auth = "hs256"
		if cfg.Server.Auth.JWKSURL != "" {
			auth = "jwks"
		}
	}
	fmt.Printf("   Auth:     %s\n", auth)

	sessions := cfg.Session.Store
	if sessions == config.SessionStoreSQL {
		sessions = fmt.Sprintf("sql (%s)", cfg.Session.SQL.Driver)
	}
	fmt.Printf("   Sessions: %s\n", sessions)

	fmt.Println("\n   Agents:")
	for _, name := range rt.AgentNames() {
		fmt.Printf("     - http://%s/v1/agents/%s\n", addr, name)
	}

	fmt.Println("\nPress Ctrl+C to stop")
}
