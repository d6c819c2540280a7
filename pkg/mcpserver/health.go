package mcpserver

import (
	"context"

	"github.com/wilhg/dify-rag-mcp/internal/version"
	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type HealthReport struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// Health proves the upstream is reachable with the configured key by listing
// a single dataset.
func Health(ctx context.Context, svc *dify.Service) HealthReport {
	if err := probe(ctx, svc); err != nil {
		return HealthReport{Status: StatusUnhealthy, Message: err.Error()}
	}
	return HealthReport{
		Status:  StatusHealthy,
		Message: "Server is running normally",
		Version: version.Version,
		BaseURL: svc.Client.BaseURL(),
	}
}

func probe(ctx context.Context, svc *dify.Service) error {
	if svc == nil || svc.Client == nil {
		return errmodel.Configuration("api_key", "API client not initialized")
	}
	if _, err := svc.Datasets.List(ctx, dify.DatasetListQuery{Page: 1, Limit: 1}); err != nil {
		ce := errmodel.From(err)
		out := *ce
		out.Message = "Health check failed: " + ce.Message
		return errmodel.Wrap(&out, err)
	}
	return nil
}
