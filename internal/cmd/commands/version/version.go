package version

import (
	"github.com/wilhg/dify-rag-mcp/internal/cmd/base"
	"github.com/wilhg/dify-rag-mcp/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return "Usage: dify-rag-mcp version"
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.String())
	return 0
}
