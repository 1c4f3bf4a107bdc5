// Command drover runs the drover agent runtime.
//
// Usage:
//
//	drover serve --config drover.yaml
//	drover run scout "round up the Q3 numbers" --config drover.yaml
//	drover validate drover.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/drover-ai/drover"
	"github.com/drover-ai/drover/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server."`
	Run      RunCmd      `cmd:"" help:"Run an agent from the terminal."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Print the configuration JSON schema."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Config source: a file path or a file://, consul://, etcd:// or zk:// URI." env:"DROVER_CONFIG"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides the config." env:"LOG_LEVEL"`
	LogFormat string `help:"Log format (simple, verbose, json). Overrides the config." env:"LOG_FORMAT"`
	LogFile   string `help:"Log output file (default: stderr). Overrides the config." env:"LOG_FILE"`
}

// loadConfig resolves the config source, loads .env next to file sources,
// and applies the logging flag overrides before the runtime reads them.
func (cli *CLI) loadConfig(ctx context.Context) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		return nil, nil, fmt.Errorf("--config is required (a file path or a file://, consul://, etcd:// or zk:// URI)")
	}

	if !strings.Contains(cli.Config, "://") {
		_ = config.LoadDotEnvForConfig(cli.Config)
	}

	cfg, loader, err := config.LoadConfigURI(ctx, cli.Config)
	if err != nil {
		return nil, nil, err
	}

	cli.applyLoggingOverrides(cfg)
	return cfg, loader, nil
}

// applyLoggingOverrides lets flags and env vars win over the config file.
func (cli *CLI) applyLoggingOverrides(cfg *config.Config) {
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	if cli.LogFile != "" {
		cfg.Logging.Output = cli.LogFile
	}
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(drover.GetVersion())
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	return ctx, cancel
}

func main() {
	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("drover"),
		kong.Description("drover - server-side agent runtime: think, act, observe."),
		kong.UsageOnError(),
	)

	ctx.FatalIfErrorf(ctx.Run(&cli))
}
