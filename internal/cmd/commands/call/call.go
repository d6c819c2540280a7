package call

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/wilhg/dify-rag-mcp/internal/cmd/base"
	"github.com/wilhg/dify-rag-mcp/pkg/mcpclient"
)

type Command struct {
	*base.Command

	cfg base.ConfigFlags
}

func (c *Command) Synopsis() string {
	return "Invoke one tool and print its result envelope"
}

func (c *Command) Help() string {
	return `Usage: dify-rag-mcp call [options] <tool> [json-arguments]

  Invokes a tool through an in-process MCP session and prints the
  envelope. Exits non-zero when the envelope reports a failure.

  Example:

    dify-rag-mcp call semantic_search '{"dataset_id": "...", "query": "refunds"}'` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("call", flag.ContinueOnError))
	c.cfg.Register(f)
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	rest := f.Args()
	if len(rest) < 1 || len(rest) > 2 {
		c.UI.Error("expected a tool name and optional JSON arguments")
		return 1
	}
	name := rest[0]
	arguments := map[string]any{}
	if len(rest) == 2 {
		if err := json.Unmarshal([]byte(rest[1]), &arguments); err != nil {
			c.UI.Error(fmt.Sprintf("arguments must be a JSON object: %v", err))
			return 1
		}
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

	env, err := client.CallTool(ctx, name, arguments)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error calling %s: %v", name, err))
		return 1
	}
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		c.UI.Error(fmt.Sprintf("error encoding envelope: %v", err))
		return 1
	}
	c.UI.Output(string(out))
	if ok, _ := env["success"].(bool); !ok {
		return 1
	}
	return 0
}
