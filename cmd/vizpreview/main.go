package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/config"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/server"
)

type options struct {
	Addr      string `long:"addr" description:"listen address (default :3007)"`
	Config    string `long:"config" short:"c" description:"settings document (YAML or JSON)"`
	LogLevel  string `long:"log-level" description:"trace, debug, info, warn or error"`
	LogFormat string `long:"log-format" description:"text or json"`
	Debug     bool   `long:"debug" description:"debug logging and gin debug mode"`
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.Load(opts.overrides())
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if err := setupLogging(cfg); err != nil {
		logger.Errorf("Invalid logging config: %v", err)
		os.Exit(1)
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg)
	if err := srv.Run(ctx); err != nil {
		logger.Errorf("Server failed: %v", err)
		os.Exit(1)
	}
	logger.Infof("Bye")
}

func parseArgs(args []string) (options, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	_, err := parser.ParseArgs(args)
	return opts, err
}

// overrides turns the flags that were actually given into config overrides.
func (o options) overrides() config.Overrides {
	var ov config.Overrides
	if o.Config != "" {
		ov.SettingsPath = &o.Config
	}
	if o.Addr != "" {
		ov.Addr = &o.Addr
	}
	if o.LogLevel != "" {
		ov.LogLevel = &o.LogLevel
	}
	if o.LogFormat != "" {
		ov.LogFormat = &o.LogFormat
	}
	if o.Debug {
		ov.Debug = &o.Debug
	}
	return ov
}

func setupLogging(cfg *config.Config) error {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return logger.SetFormat(cfg.LogFormat)
}
