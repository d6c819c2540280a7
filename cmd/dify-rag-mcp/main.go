package main

import (
	"os"

	"github.com/wilhg/dify-rag-mcp/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
