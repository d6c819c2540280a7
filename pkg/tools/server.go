package tools

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/wilhg/dify-rag-mcp/internal/version"
	"github.com/wilhg/dify-rag-mcp/pkg/dify"
)

// ServerInfo describes the running adapter for get_server_info.
type ServerInfo struct {
	Name      string
	Version   string
	BaseURL   string
	Transport string
	Resources int
}

type Option func(*options)

type options struct {
	info ServerInfo
}

// WithServerInfo sets what get_server_info reports. Unset fields fall back to
// the build metadata and the client's base URL.
func WithServerInfo(info ServerInfo) Option {
	return func(o *options) { o.info = info }
}

// NewRegistry registers every knowledge-base tool bound to svc.
func NewRegistry(svc *dify.Service, logger hclog.Logger, opts ...Option) (*Registry, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	info := o.info
	info.Name = orDefault(info.Name, version.Product)
	info.Version = orDefault(info.Version, version.Version)
	if info.BaseURL == "" && svc.Client != nil {
		info.BaseURL = svc.Client.BaseURL()
	}

	r := NewEmptyRegistry(logger)
	var all []Tool
	all = append(all, datasetTools(svc)...)
	all = append(all, documentTools(svc)...)
	all = append(all, segmentTools(svc)...)
	all = append(all, searchTools(svc)...)
	all = append(all, serverInfoTool(r, info))
	for _, t := range all {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func serverInfoTool(r *Registry, info ServerInfo) Tool {
	return newTool("get_server_info", "Describe this server: version, upstream URL, transport and catalogue size.", reads,
		func(_ context.Context, _ struct{}) (Result, error) {
			data := map[string]any{
				"name":      info.Name,
				"version":   info.Version,
				"base_url":  info.BaseURL,
				"transport": info.Transport,
				"tools":     r.Len(),
				"resources": info.Resources,
			}
			return Result{Data: data, Message: fmt.Sprintf("%s %s", info.Name, info.Version)}, nil
		})
}
