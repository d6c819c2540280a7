package cmd

import (
	"bufio"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/wilhg/dify-rag-mcp/internal/cmd/base"
	"github.com/wilhg/dify-rag-mcp/internal/cmd/commands/call"
	"github.com/wilhg/dify-rag-mcp/internal/cmd/commands/health"
	"github.com/wilhg/dify-rag-mcp/internal/cmd/commands/serve"
	"github.com/wilhg/dify-rag-mcp/internal/cmd/commands/tools"
	versioncmd "github.com/wilhg/dify-rag-mcp/internal/cmd/commands/version"
	"github.com/wilhg/dify-rag-mcp/internal/version"
)

// Main runs the CLI with the given arguments and returns the exit code.
func Main(args []string) int {
	log := hclog.New(&hclog.LoggerOptions{
		Name:   args[0],
		Output: os.Stderr,
	})
	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
	return run(args, &base.Command{Log: log, UI: ui})
}

func run(args []string, b *base.Command) int {
	cliName := args[0]

	if len(args) == 2 &&
		(args[1] == "-version" ||
			args[1] == "-v") {
		args = []string{cliName, "version"}
	}

	// The MCP host launches the binary without arguments.
	if len(args) == 1 {
		args = append(args, "serve")
	}

	c := &cli.CLI{
		Name:     version.Product,
		Args:     args[1:],
		Version:  version.Version,
		Commands: commands(b),
	}

	exitCode, err := c.Run()
	if err != nil {
		b.UI.Error(err.Error())
		return 1
	}
	return exitCode
}

func commands(b *base.Command) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"serve": func() (cli.Command, error) {
			return &serve.Command{Command: b}, nil
		},
		"health": func() (cli.Command, error) {
			return &health.Command{Command: b}, nil
		},
		"tools": func() (cli.Command, error) {
			return &tools.Command{Command: b}, nil
		},
		"call": func() (cli.Command, error) {
			return &call.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &versioncmd.Command{Command: b}, nil
		},
	}
}
