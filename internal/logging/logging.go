// Package logging builds the process logger. Output always goes to stderr
// because stdout carries the stdio transport.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

type Options struct {
	Name  string
	Level string
	// File, when set, receives a copy of every line. It is opened for append.
	File string
	JSON bool
	// Stderr replaces os.Stderr. Mostly useful in tests.
	Stderr io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns the root logger and a closer for the log file, if any.
func New(opts Options) (hclog.Logger, io.Closer, error) {
	level := hclog.Info
	if opts.Level != "" {
		level = hclog.LevelFromString(opts.Level)
		if level == hclog.NoLevel {
			return nil, nil, errmodel.Configuration("log_level", fmt.Sprintf("Unknown log level %q", opts.Level))
		}
	}

	var out io.Writer = os.Stderr
	if opts.Stderr != nil {
		out = opts.Stderr
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errmodel.Wrap(errmodel.Configuration("log_file", fmt.Sprintf("Cannot open log file %s: %v", opts.File, err)), err)
		}
		out = io.MultiWriter(out, f)
		closer = f
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:            opts.Name,
		Level:           level,
		Output:          out,
		JSONFormat:      opts.JSON,
		IncludeLocation: level <= hclog.Debug,
	}), closer, nil
}
