package health

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/wilhg/dify-rag-mcp/internal/cmd/base"
	"github.com/wilhg/dify-rag-mcp/pkg/mcpserver"
)

type Command struct {
	*base.Command

	cfg base.ConfigFlags
}

func (c *Command) Synopsis() string {
	return "Check that the upstream is reachable with the configured key"
}

func (c *Command) Help() string {
	return `Usage: dify-rag-mcp health [options]

  Lists a single dataset and prints the health report as JSON. Exits
  non-zero when the upstream is unreachable or rejects the key.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("health", flag.ContinueOnError))
	c.cfg.Register(f)
	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	cfg, err := c.LoadConfig(c.cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	ctx := c.Ctx()
	stack, err := c.Build(ctx, cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building client: %v", err))
		return 1
	}
	defer stack.Close(ctx)

	report := mcpserver.Health(ctx, stack.Service)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		c.UI.Error(fmt.Sprintf("error encoding report: %v", err))
		return 1
	}
	c.UI.Output(string(out))
	if report.Status != mcpserver.StatusHealthy {
		return 1
	}
	return 0
}
