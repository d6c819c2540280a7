package base

import (
	"context"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/wilhg/dify-rag-mcp/internal/config"
	"github.com/wilhg/dify-rag-mcp/internal/logging"
	"github.com/wilhg/dify-rag-mcp/internal/version"
	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/mcpserver"
	"github.com/wilhg/dify-rag-mcp/pkg/otel"
	"github.com/wilhg/dify-rag-mcp/pkg/resources"
	"github.com/wilhg/dify-rag-mcp/pkg/tools"
)

// Stack is the fully wired adapter: logger, tracer, upstream client and the
// MCP server bound to both tables.
type Stack struct {
	Config  config.Config
	Log     hclog.Logger
	Service *dify.Service
	Server  *mcpserver.Server

	shutdown []func(context.Context) error
}

// Build validates cfg and assembles the adapter. The caller must Close it.
func (c *Command) Build(ctx context.Context, cfg config.Config) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, logFile, err := logging.New(logging.Options{
		Name:   version.Product,
		Level:  cfg.LogLevel(),
		File:   cfg.Log.File,
		JSON:   cfg.Log.JSON,
		Stderr: c.LogOutput,
	})
	if err != nil {
		return nil, err
	}
	s := &Stack{Config: cfg, Log: log}
	s.onClose(closeWith(logFile))
	cfg.WarnUnprefixedKey(log)

	stopTracing, err := otel.Init(ctx, otel.Config{
		ServiceName:    cfg.Server.Name,
		ServiceVersion: cfg.Server.Version,
		Exporter:       cfg.Tracing.Exporter,
		Writer:         c.LogOutput,
		Upstream:       cfg.Dify.BaseURL,
		Transport:      cfg.Server.Transport,
	})
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.onClose(stopTracing)

	client, err := dify.NewClient(dify.Config{
		BaseURL:    cfg.Dify.BaseURL,
		APIKey:     cfg.Dify.APIKey,
		Timeout:    cfg.Dify.Timeout,
		MaxRetries: cfg.Dify.MaxRetries,
		RetryDelay: cfg.Dify.RetryDelay,
		Logger:     log,
	})
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.onClose(closeWith(client))
	s.Service = dify.NewService(client)

	cat := resources.New(s.Service, log)
	reg, err := tools.NewRegistry(s.Service, log, tools.WithServerInfo(tools.ServerInfo{
		Name:      cfg.Server.Name,
		Version:   cfg.Server.Version,
		Transport: cfg.Server.Transport,
		Resources: len(cat.Descriptors()),
	}))
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.Server, err = mcpserver.New(mcpserver.Options{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
		Logger:  log,
		Service: s.Service,
	}, reg, cat)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	log.Debug("adapter assembled", "tools", reg.Len(), "base_url", client.BaseURL())
	return s, nil
}

func (s *Stack) onClose(fn func(context.Context) error) {
	s.shutdown = append(s.shutdown, fn)
}

// Close releases everything Build acquired, newest first.
func (s *Stack) Close(ctx context.Context) error {
	var result *multierror.Error
	for i := len(s.shutdown) - 1; i >= 0; i-- {
		if err := s.shutdown[i](ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.shutdown = nil
	return result.ErrorOrNil()
}

func closeWith(c io.Closer) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}
