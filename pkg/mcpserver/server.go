// Package mcpserver binds the tool registry and resource catalogue to an MCP
// server and serves it over stdio or streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/dify-rag-mcp/internal/version"
	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
	"github.com/wilhg/dify-rag-mcp/pkg/resources"
	"github.com/wilhg/dify-rag-mcp/pkg/tools"
)

// Transports accepted by Run. sse and websocket are served by the streamable
// HTTP handler, which covers both.
const (
	TransportStdio     = "stdio"
	TransportHTTP      = "http"
	TransportSSE       = "sse"
	TransportWebsocket = "websocket"
)

const shutdownTimeout = 10 * time.Second

// DefaultInstructions is sent to clients during initialization.
const DefaultInstructions = "Manage Dify knowledge bases: datasets, documents, segments and retrieval. " +
	"Every tool answers with {success, data, message, error}."

type Options struct {
	Name         string
	Version      string
	Instructions string
	Logger       hclog.Logger
	// Service backs /healthz. Without it the endpoint only reports liveness.
	Service *dify.Service
}

type Server struct {
	mcp       *mcp.Server
	tools     *tools.Registry
	resources *resources.Catalogue
	svc       *dify.Service
	logger    hclog.Logger
}

// New registers every tool and resource on a fresh MCP server.
func New(opts Options, reg *tools.Registry, cat *resources.Catalogue) (*Server, error) {
	if reg == nil {
		return nil, errors.New("mcpserver: tool registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.Name == "" {
		opts.Name = version.Product
	}
	if opts.Version == "" {
		opts.Version = version.Version
	}
	if opts.Instructions == "" {
		opts.Instructions = DefaultInstructions
	}

	s := &Server{
		mcp:       mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, &mcp.ServerOptions{Instructions: opts.Instructions}),
		tools:     reg,
		resources: cat,
		svc:       opts.Service,
		logger:    logger.Named("mcp"),
	}
	for _, d := range reg.Descriptors() {
		s.mcp.AddTool(&mcp.Tool{
			Name:        d.Name,
			Title:       d.Title,
			Description: d.Description,
			InputSchema: d.InputSchema,
			Annotations: &mcp.ToolAnnotations{
				Title:          d.Title,
				ReadOnlyHint:   d.ReadOnly,
				IdempotentHint: d.Idempotent,
			},
		}, s.callTool(d.Name))
	}
	var nres int
	if cat != nil {
		nres = len(cat.Descriptors())
		for _, d := range cat.Descriptors() {
			if d.Template {
				s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
					URITemplate: d.URI,
					Name:        d.Name,
					Description: d.Description,
					MIMEType:    resources.MIMEType,
				}, s.readResource)
				continue
			}
			s.mcp.AddResource(&mcp.Resource{
				URI:         d.URI,
				Name:        d.Name,
				Description: d.Description,
				MIMEType:    resources.MIMEType,
			}, s.readResource)
		}
	}
	s.logger.Debug("server ready", "tools", reg.Len(), "resources", nres)
	return s, nil
}

// MCP exposes the underlying server, for callers that bring their own transport.
func (s *Server) MCP() *mcp.Server { return s.mcp }

func (s *Server) callTool(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		env := s.tools.Invoke(ctx, name, args)
		raw, err := json.Marshal(env)
		if err != nil {
			env = tools.Failure(errmodel.API(0, "Unexpected error: "+err.Error(), nil))
			raw, _ = json.Marshal(env)
		}
		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(raw)}},
			StructuredContent: json.RawMessage(raw),
			IsError:           !env.Success,
		}, nil
	}
}

func (s *Server) readResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	c, err := s.resources.Read(ctx, uri)
	if err != nil {
		if errmodel.Is(err, errmodel.KindNotFound) {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: c.URI, MIMEType: c.MIMEType, Text: c.Text}},
	}, nil
}

// Connect serves a single transport and returns the live session.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// Run serves until ctx is cancelled. addr is only used by the HTTP transports.
func (s *Server) Run(ctx context.Context, transport, addr string) error {
	switch strings.ToLower(transport) {
	case "", TransportStdio:
		s.logger.Info("serving", "transport", TransportStdio)
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case TransportHTTP, TransportSSE, TransportWebsocket:
		return s.serveHTTP(ctx, addr)
	default:
		return errmodel.Configuration("transport", fmt.Sprintf("Unsupported transport: %s", transport))
	}
}

// Handler returns the HTTP surface: the MCP endpoint at /mcp and a health
// probe at /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil))
	mux.HandleFunc("/healthz", s.healthz)
	return otelhttp.NewHandler(mux, "mcp.http")
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errmodel.Configuration("port", fmt.Sprintf("cannot listen on %s: %v", addr, err))
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("serving", "transport", TransportHTTP, "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// healthz reports liveness, and upstream reachability when a service is set.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	report := HealthReport{Status: StatusHealthy, Message: "Server is running normally", Version: version.Version}
	if s.svc != nil {
		if err := probe(r.Context(), s.svc); err != nil {
			s.logger.Warn("health check failed", "error", err)
			errmodel.WriteHTTP(w, r, err)
			return
		}
		report.BaseURL = s.svc.Client.BaseURL()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
