package mcpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/dify/difytest"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
	"github.com/wilhg/dify-rag-mcp/pkg/mcpserver"
	"github.com/wilhg/dify-rag-mcp/pkg/resources"
	"github.com/wilhg/dify-rag-mcp/pkg/tools"
)

const datasetID = "3f0c1a2e-5b7d-4c8e-9f10-112233445566"

type fixture struct {
	srv      *mcpserver.Server
	upstream *difytest.Server
	svc      *dify.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	up := difytest.New(t)
	c, err := dify.NewClient(dify.Config{BaseURL: up.BaseURL(), APIKey: "dataset-test-key", Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	svc := dify.NewService(c)
	reg, err := tools.NewRegistry(svc, nil)
	require.NoError(t, err)
	srv, err := mcpserver.New(mcpserver.Options{Service: svc}, reg, resources.New(svc, nil))
	require.NoError(t, err)
	return &fixture{srv: srv, upstream: up, svc: svc}
}

func (f *fixture) session(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	st, ct := mcp.NewInMemoryTransports()
	ss, err := f.srv.Connect(ctx, st)
	require.NoError(t, err)
	cs, err := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil).Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})
	return cs
}

func envelope(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &env))
	return env
}

func TestListToolsCarriesSchemaAndHints(t *testing.T) {
	f := newFixture(t)
	cs := f.session(t)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	byName := map[string]*mcp.Tool{}
	for _, tool := range res.Tools {
		byName[tool.Name] = tool
	}
	require.Contains(t, byName, "get_dataset")
	require.Contains(t, byName, "semantic_search")
	require.Contains(t, byName, "get_server_info")

	get := byName["get_dataset"]
	assert.Equal(t, "Get Dataset", get.Title)
	require.NotNil(t, get.Annotations)
	assert.True(t, get.Annotations.ReadOnlyHint)
	schema, err := json.Marshal(get.InputSchema)
	require.NoError(t, err)
	assert.Contains(t, string(schema), `"dataset_id"`)

	assert.False(t, byName["create_dataset"].Annotations.ReadOnlyHint)
}

func TestCallToolEnvelopes(t *testing.T) {
	f := newFixture(t)
	cs := f.session(t)
	ctx := context.Background()
	f.upstream.Handle(http.MethodGet, "datasets/"+datasetID, 200, map[string]any{"id": datasetID, "name": "Docs"})

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "get_dataset", Arguments: map[string]any{"dataset_id": datasetID}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	env := envelope(t, res)
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "Docs", env["data"].(map[string]any)["name"])
	assert.Equal(t, env, res.StructuredContent)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "get_dataset", Arguments: map[string]any{"dataset_id": "nope"}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	env = envelope(t, res)
	assert.Equal(t, false, env["success"])
	assert.Equal(t, string(errmodel.KindValidation), env["error"].(map[string]any)["kind"])
}

func TestResources(t *testing.T) {
	f := newFixture(t)
	cs := f.session(t)
	ctx := context.Background()

	list, err := cs.ListResources(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list.Resources, 1)
	assert.Equal(t, "datasets://", list.Resources[0].URI)

	tmpl, err := cs.ListResourceTemplates(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, tmpl.ResourceTemplates, 5)

	f.upstream.Handle(http.MethodGet, "datasets/"+datasetID, 200, map[string]any{"id": datasetID, "name": "Docs"})
	read, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "dataset://" + datasetID})
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "application/json", read.Contents[0].MIMEType)
	assert.Contains(t, read.Contents[0].Text, `"name": "Docs"`)

	f.upstream.Handle(http.MethodGet, "datasets", 200, map[string]any{"data": []any{}})
	_, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "datasets://"})
	require.NoError(t, err)
	assert.Equal(t, "100", f.upstream.Last().Query.Get("limit"))

	missing := "aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee"
	f.upstream.Handle(http.MethodGet, "datasets/"+missing, 404, nil)
	_, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "dataset://" + missing})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.upstream.Handle(http.MethodGet, "datasets", 200, map[string]any{"data": []any{}})
	report := mcpserver.Health(ctx, f.svc)
	assert.Equal(t, mcpserver.StatusHealthy, report.Status)
	assert.Equal(t, f.upstream.BaseURL()+"/", report.BaseURL)
	assert.Equal(t, "1", f.upstream.Last().Query.Get("limit"))

	f.upstream.Handle(http.MethodGet, "datasets", 401, nil)
	report = mcpserver.Health(ctx, f.svc)
	assert.Equal(t, mcpserver.StatusUnhealthy, report.Status)
	assert.Contains(t, report.Message, "Health check failed")

	assert.Equal(t, mcpserver.StatusUnhealthy, mcpserver.Health(ctx, nil).Status)
}

func TestHTTPHandler(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	t.Cleanup(ts.Close)
	ctx := context.Background()

	f.upstream.Handle(http.MethodGet, "datasets", 200, map[string]any{"data": []any{}})
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var report mcpserver.HealthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, mcpserver.StatusHealthy, report.Status)

	f.upstream.Handle(http.MethodGet, "datasets", 401, nil)
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var failure map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failure))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, failure["success"])
	assert.Contains(t, failure["message"], "Health check failed")

	cs, err := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil).
		Connect(ctx, &mcp.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "get_server_info", Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, true, envelope(t, res)["success"])
}

func TestRunRejectsUnknownTransport(t *testing.T) {
	f := newFixture(t)
	err := f.srv.Run(context.Background(), "carrier-pigeon", "")
	assert.True(t, errmodel.Is(err, errmodel.KindConfiguration))
}

func TestRunHTTPStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx, "sse", "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
