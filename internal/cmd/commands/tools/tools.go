package tools

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/wilhg/dify-rag-mcp/internal/cmd/base"
	"github.com/wilhg/dify-rag-mcp/pkg/mcpclient"
)

type Command struct {
	*base.Command

	cfg           base.ConfigFlags
	flagJSON      bool
	flagResources bool
}

func (c *Command) Synopsis() string {
	return "List the tools the server exposes"
}

func (c *Command) Help() string {
	return `Usage: dify-rag-mcp tools [options]

  Starts the server in-process, connects an MCP client to it and prints
  the tool catalogue. No upstream call is made.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("tools", flag.ContinueOnError))
	c.cfg.Register(f)
	f.BoolVar(&c.flagJSON, "json", false, "Print descriptors, including input schemas, as JSON.")
	f.BoolVar(&c.flagResources, "resources", false, "List resources and resource templates instead of tools.")
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
		c.UI.Error(fmt.Sprintf("error building server: %v", err))
		return 1
	}
	defer stack.Close(ctx)

	client, err := mcpclient.InProcess(ctx, stack.Server)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting client: %v", err))
		return 1
	}
	defer client.Close()

	var listing any
	var lines []string
	if c.flagResources {
		rs, err := client.ListResources(ctx)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error listing resources: %v", err))
			return 1
		}
		listing = rs
		for _, r := range rs {
			lines = append(lines, fmt.Sprintf("%-58s %s", r.URI, r.Description))
		}
	} else {
		ts, err := client.ListTools(ctx)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error listing tools: %v", err))
			return 1
		}
		listing = ts
		for _, t := range ts {
			lines = append(lines, fmt.Sprintf("%-32s %s", t.Name, firstLine(t.Description)))
		}
	}

	if c.flagJSON {
		out, err := json.MarshalIndent(listing, "", "  ")
		if err != nil {
			c.UI.Error(fmt.Sprintf("error encoding listing: %v", err))
			return 1
		}
		c.UI.Output(string(out))
		return 0
	}
	c.UI.Output(strings.Join(lines, "\n"))
	return 0
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
