// Package base holds what every CLI command shares: the UI, the bootstrap
// logger, the common configuration flags and the assembly of the adapter.
package base

import (
	"bytes"
	"context"
	"flag"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/wilhg/dify-rag-mcp/internal/config"
)

type Command struct {
	Log hclog.Logger
	UI  cli.Ui

	// LogOutput receives the configured logger's lines. Defaults to stderr.
	LogOutput io.Writer
	// Sources overrides where configuration is read from.
	Sources config.Sources
	// Context bounds long-running commands in addition to SIGINT and SIGTERM.
	Context context.Context
}

// Ctx returns the command's base context.
func (c *Command) Ctx() context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}

// FlagSet wraps flag.FlagSet with a renderer for command help.
type FlagSet struct {
	*flag.FlagSet
}

func NewFlagSet(f *flag.FlagSet) *FlagSet {
	f.SetOutput(io.Discard)
	return &FlagSet{FlagSet: f}
}

// Help renders the flag defaults for inclusion in a command's Help text.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer
	buf.WriteString("\n\nOptions:\n\n")
	f.SetOutput(&buf)
	f.PrintDefaults()
	f.SetOutput(io.Discard)
	return buf.String()
}

// ConfigFlags are accepted by every command that talks to the upstream.
type ConfigFlags struct {
	Path     string
	APIKey   string
	BaseURL  string
	LogLevel string
	LogFile  string
	Debug    bool
}

func (cf *ConfigFlags) Register(f *FlagSet) {
	f.StringVar(&cf.Path, "config", "", "Path to a YAML, HCL or JSON config file. Overrides CONFIG_PATH.")
	f.StringVar(&cf.APIKey, "dify-api-key", "", "Knowledge-base API key. Overrides DIFY_API_KEY.")
	f.StringVar(&cf.BaseURL, "dify-base-url", "", "Upstream base URL. Overrides DIFY_BASE_URL.")
	f.StringVar(&cf.LogLevel, "log-level", "", "Log level: TRACE, DEBUG, INFO, WARN or ERROR.")
	f.StringVar(&cf.LogFile, "log-file", "", "Also append logs to this file.")
	f.BoolVar(&cf.Debug, "debug", false, "Enable debug logging.")
}

// LoadConfig reads every configuration source and lays the flags on top.
func (c *Command) LoadConfig(cf ConfigFlags) (config.Config, error) {
	src := c.Sources
	if cf.Path != "" {
		src.Path = cf.Path
	}
	cfg, err := config.Load(src)
	if err != nil {
		return cfg, err
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Dify.APIKey, cf.APIKey)
	set(&cfg.Dify.BaseURL, cf.BaseURL)
	set(&cfg.Log.Level, cf.LogLevel)
	set(&cfg.Log.File, cf.LogFile)
	if cf.Debug {
		cfg.Log.Debug = true
	}
	return cfg, nil
}
