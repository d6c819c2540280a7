package resources_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/dify/difytest"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
	"github.com/wilhg/dify-rag-mcp/pkg/resources"
)

const (
	datasetID  = "3f0c1a2e-5b7d-4c8e-9f10-112233445566"
	documentID = "7a1b2c3d-4e5f-4a6b-8c7d-8e9f0a1b2c3d"
	segmentID  = "0b1c2d3e-4f5a-4b6c-9d7e-8f9a0b1c2d3e"
)

func newCatalogue(t *testing.T) (*resources.Catalogue, *difytest.Server) {
	t.Helper()
	srv := difytest.New(t)
	c, err := dify.NewClient(dify.Config{BaseURL: srv.BaseURL(), APIKey: "dataset-test-key", Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return resources.New(dify.NewService(c), nil), srv
}

func TestDescriptors(t *testing.T) {
	cat, _ := newCatalogue(t)
	var uris []string
	fixed := 0
	for _, d := range cat.Descriptors() {
		uris = append(uris, d.URI)
		if !d.Template {
			fixed++
		}
	}
	assert.Equal(t, []string{
		"datasets://",
		"dataset://{dataset_id}",
		"documents://{dataset_id}",
		"document://{dataset_id}/{document_id}",
		"segments://{dataset_id}/{document_id}",
		"segment://{dataset_id}/{document_id}/{segment_id}",
	}, uris)
	assert.Equal(t, 1, fixed)
}

func TestReadRoutes(t *testing.T) {
	cat, srv := newCatalogue(t)
	ds := "datasets/" + datasetID
	doc := ds + "/documents/" + documentID
	srv.Handle(http.MethodGet, "datasets", 200, map[string]any{"data": []any{}, "total": 0})
	srv.Handle(http.MethodGet, ds, 200, map[string]any{"id": datasetID, "name": "Docs"})
	srv.Handle(http.MethodGet, ds+"/documents", 200, map[string]any{"data": []any{}})
	srv.Handle(http.MethodGet, doc, 200, map[string]any{"id": documentID, "name": "guide.md"})
	srv.Handle(http.MethodGet, doc+"/segments", 200, map[string]any{"data": []any{}})
	srv.Handle(http.MethodGet, doc+"/segments/"+segmentID, 200, map[string]any{"id": segmentID, "content": "chunk"})

	cases := []struct {
		uri   string
		path  string
		limit string
	}{
		{"datasets://", "datasets", "100"},
		{"dataset://" + datasetID, ds, ""},
		{"documents://" + datasetID, ds + "/documents", "100"},
		{"document://" + datasetID + "/" + documentID, doc, ""},
		{"segments://" + datasetID + "/" + documentID, doc + "/segments", "100"},
		{"segment://" + datasetID + "/" + documentID + "/" + segmentID, doc + "/segments/" + segmentID, ""},
	}
	for _, tc := range cases {
		t.Run(tc.uri, func(t *testing.T) {
			out, err := cat.Read(context.Background(), tc.uri)
			require.NoError(t, err)
			assert.Equal(t, tc.uri, out.URI)
			assert.Equal(t, "application/json", out.MIMEType)
			assert.True(t, json.Valid([]byte(out.Text)))
			assert.Contains(t, out.Text, "\n  ")

			last := srv.Last()
			assert.Equal(t, tc.path, last.Path)
			assert.Equal(t, tc.limit, last.Query.Get("limit"))
		})
	}
}

func TestReadDatasetRendersRecord(t *testing.T) {
	cat, srv := newCatalogue(t)
	srv.Handle(http.MethodGet, "datasets/"+datasetID, 200, map[string]any{"id": datasetID, "name": "Docs", "document_count": 3})

	out, err := cat.Read(context.Background(), "dataset://"+datasetID)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Text), &got))
	assert.Equal(t, "Docs", got["name"])
	assert.Equal(t, 3.0, got["document_count"])
}

func TestReadMalformedURIs(t *testing.T) {
	cat, srv := newCatalogue(t)
	for _, uri := range []string{
		"dataset:" + datasetID,
		"widgets://" + datasetID,
		"dataset://",
		"dataset://not-a-uuid",
		"document://" + datasetID,
		"segment://" + datasetID + "/" + documentID,
		"datasets://extra",
	} {
		_, err := cat.Read(context.Background(), uri)
		assert.True(t, errmodel.Is(err, errmodel.KindValidation), "uri %q: %v", uri, err)
	}
	assert.Equal(t, 0, srv.Count())
}

func TestReadNotFound(t *testing.T) {
	cat, srv := newCatalogue(t)
	srv.Handle(http.MethodGet, "datasets/"+datasetID, 404, nil)

	_, err := cat.Read(context.Background(), "dataset://"+datasetID)
	assert.True(t, errmodel.Is(err, errmodel.KindNotFound))
}
