package mcpclient_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/dify/difytest"
	"github.com/wilhg/dify-rag-mcp/pkg/mcpclient"
	"github.com/wilhg/dify-rag-mcp/pkg/mcpserver"
	"github.com/wilhg/dify-rag-mcp/pkg/resources"
	"github.com/wilhg/dify-rag-mcp/pkg/tools"
)

const datasetID = "3f0c1a2e-5b7d-4c8e-9f10-112233445566"

func newInProcess(t *testing.T) (mcpclient.Client, *difytest.Server) {
	t.Helper()
	up := difytest.New(t)
	c, err := dify.NewClient(dify.Config{BaseURL: up.BaseURL(), APIKey: "dataset-test-key", Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	svc := dify.NewService(c)
	reg, err := tools.NewRegistry(svc, nil)
	require.NoError(t, err)
	srv, err := mcpserver.New(mcpserver.Options{}, reg, resources.New(svc, nil))
	require.NoError(t, err)

	cli, err := mcpclient.InProcess(context.Background(), srv)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return cli, up
}

func TestListTools(t *testing.T) {
	cli, _ := newInProcess(t)
	ts, err := cli.ListTools(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, ts)

	var found bool
	for _, d := range ts {
		if d.Name == "list_datasets" {
			found = true
			assert.True(t, d.ReadOnly)
			assert.Contains(t, string(d.InputSchema), `"keyword"`)
		}
	}
	assert.True(t, found)
}

func TestCallTool(t *testing.T) {
	cli, up := newInProcess(t)
	ctx := context.Background()
	up.Handle(http.MethodGet, "datasets", 200, map[string]any{
		"data": []any{map[string]any{"id": datasetID, "name": "Docs"}},
	})

	env, err := cli.CallTool(ctx, "list_datasets", nil)
	require.NoError(t, err)
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "Found 1 datasets", env["message"])

	// The protocol layer rejects unknown names before any handler runs.
	_, err = cli.CallTool(ctx, "no_such_tool", map[string]any{})
	assert.Error(t, err)

	env, err = cli.CallTool(ctx, "get_dataset", map[string]any{"dataset_id": "x"})
	require.NoError(t, err)
	assert.Equal(t, false, env["success"])
}

func TestResources(t *testing.T) {
	cli, up := newInProcess(t)
	ctx := context.Background()

	rs, err := cli.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 6)
	assert.False(t, rs[0].Template)
	assert.True(t, rs[1].Template)

	up.Handle(http.MethodGet, "datasets/"+datasetID, 200, map[string]any{"id": datasetID, "name": "Docs"})
	text, err := cli.ReadResource(ctx, "dataset://"+datasetID)
	require.NoError(t, err)
	assert.Contains(t, text, `"id": "`+datasetID+`"`)
}
