// Package mcpclient is a thin MCP client used by the CLI to list and call
// tools, either in process or against a running HTTP server.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/dify-rag-mcp/internal/version"
	"github.com/wilhg/dify-rag-mcp/pkg/mcpserver"
)

// Client defines the MCP client capabilities we need.
type Client interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
	ListResources(ctx context.Context) ([]ResourceDescriptor, error)
	ReadResource(ctx context.Context, uri string) (string, error)
	Close() error
}

// ToolDescriptor is a subset of the MCP tool schema.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	ReadOnly    bool            `json:"read_only"`
}

// ResourceDescriptor describes an MCP resource or resource template.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Template    bool   `json:"template"`
}

type sdkClient struct {
	session *mcp.ClientSession
	server  *mcp.ServerSession
}

// Connect performs the MCP handshake over t.
func Connect(ctx context.Context, t mcp.Transport) (Client, error) {
	c := mcp.NewClient(&mcp.Implementation{Name: version.Product + "-cli", Version: version.Version}, nil)
	cs, err := c.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp connect: %w", err)
	}
	return &sdkClient{session: cs}, nil
}

// Dial connects to a streamable HTTP endpoint such as http://localhost:8000/mcp.
func Dial(ctx context.Context, endpoint string) (Client, error) {
	return Connect(ctx, &mcp.StreamableClientTransport{Endpoint: endpoint})
}

// InProcess connects to srv through in-memory transports. Closing the client
// also ends the server session.
func InProcess(ctx context.Context, srv *mcpserver.Server) (Client, error) {
	st, ct := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("mcp serve: %w", err)
	}
	cli, err := Connect(ctx, ct)
	if err != nil {
		_ = ss.Close()
		return nil, err
	}
	cli.(*sdkClient).server = ss
	return cli, nil
}

func (s *sdkClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var out []ToolDescriptor
	for t, err := range s.session.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		schema, _ := json.Marshal(t.InputSchema)
		d := ToolDescriptor{Name: t.Name, Title: t.Title, Description: t.Description, InputSchema: schema}
		if t.Annotations != nil {
			d.ReadOnly = t.Annotations.ReadOnlyHint
		}
		out = append(out, d)
	}
	return out, nil
}

// CallTool returns the decoded response envelope. A failure envelope is not
// an error here; callers inspect its success field.
func (s *sdkClient) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := s.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	if m, ok := res.StructuredContent.(map[string]any); ok {
		return m, nil
	}
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			var m map[string]any
			if err := json.Unmarshal([]byte(tc.Text), &m); err != nil {
				return nil, fmt.Errorf("tool %s: undecodable result: %w", name, err)
			}
			return m, nil
		}
	}
	return nil, fmt.Errorf("tool %s: empty result", name)
}

func (s *sdkClient) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	var out []ResourceDescriptor
	for r, err := range s.session.Resources(ctx, nil) {
		if err != nil {
			return nil, err
		}
		out = append(out, ResourceDescriptor{URI: r.URI, Name: r.Name, Description: r.Description})
	}
	for r, err := range s.session.ResourceTemplates(ctx, nil) {
		if err != nil {
			return nil, err
		}
		out = append(out, ResourceDescriptor{URI: r.URITemplate, Name: r.Name, Description: r.Description, Template: true})
	}
	return out, nil
}

func (s *sdkClient) ReadResource(ctx context.Context, uri string) (string, error) {
	res, err := s.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return "", err
	}
	if len(res.Contents) == 0 {
		return "", fmt.Errorf("resource %s: no contents", uri)
	}
	return res.Contents[0].Text, nil
}

func (s *sdkClient) Close() error {
	err := s.session.Close()
	if s.server != nil {
		// The server side ends with the closed connection; its error only
		// restates that.
		_ = s.server.Wait()
	}
	return err
}
