package serve

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/wilhg/dify-rag-mcp/internal/cmd/base"
	"github.com/wilhg/dify-rag-mcp/internal/config"
)

const shutdownTimeout = 10 * time.Second

type Command struct {
	*base.Command

	cfg           base.ConfigFlags
	flagTransport string
	flagHost      string
	flagPort      int
	flagDev       bool
}

func (c *Command) Synopsis() string {
	return "Run the MCP server"
}

func (c *Command) Help() string {
	return `Usage: dify-rag-mcp serve [options]

  Serves the knowledge-base tools and resources over MCP. The stdio
  transport is the default; http (alias sse, websocket) serves the
  streamable HTTP endpoint at /mcp and a health probe at /healthz.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ContinueOnError))
	c.cfg.Register(f)
	f.StringVar(&c.flagTransport, "transport", "", "Transport: stdio, http, sse or websocket.")
	f.StringVar(&c.flagHost, "host", "", "Listen host for the HTTP transport. Overrides DIFY_HOST.")
	f.IntVar(&c.flagPort, "port", 0, "Listen port for the HTTP transport. Overrides DIFY_PORT.")
	f.BoolVar(&c.flagDev, "dev", false, "Development mode: debug logs and spans printed to stderr.")
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig(c.cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}
	if c.flagTransport != "" {
		cfg.Server.Transport = c.flagTransport
	}
	if c.flagHost != "" {
		cfg.Server.Host = c.flagHost
	}
	if c.flagPort != 0 {
		cfg.Server.Port = c.flagPort
	}
	if c.flagDev {
		cfg.Log.Debug = true
		cfg.Tracing.Exporter = config.TracingStdout
	}

	ctx, stop := signal.NotifyContext(c.Ctx(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := c.Build(ctx, cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error starting server: %v", err))
		return 1
	}
	log := stack.Log
	log.Info("starting", "name", cfg.Server.Name, "version", cfg.Server.Version,
		"transport", cfg.Server.Transport, "base_url", cfg.Dify.BaseURL)

	var result *multierror.Error
	if err := stack.Server.Run(ctx, cfg.Server.Transport, cfg.Addr()); err != nil {
		result = multierror.Append(result, err)
	}
	log.Info("stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stack.Close(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		c.UI.Error(fmt.Sprintf("server stopped with error: %v", err))
		return 1
	}
	return 0
}
