package dify_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

func datasetBody(name string) map[string]any {
	return map[string]any{
		"id":                 datasetID,
		"name":               name,
		"indexing_technique": "high_quality",
		"document_count":     3,
		"word_count":         1200,
		"created_at":         1700000000,
		"tags":               []any{map[string]any{"id": tagID, "name": "docs"}},
	}
}

func TestListDatasetsScenario(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodGet, "datasets", 200, map[string]any{"data": []any{}, "total": 0, "page": 1, "limit": 20, "has_more": false})

	out, err := svc.Datasets.List(context.Background(), dify.DatasetListQuery{Page: 1, Limit: 20, Keyword: "x"})
	require.NoError(t, err)
	require.NotNil(t, out.Data)
	assert.Len(t, out.Data, 0)
	assert.Equal(t, 0, out.Total)

	require.Equal(t, 1, srv.Count())
	req := srv.Last()
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "datasets", req.Path)
	assert.Equal(t, map[string][]string{"page": {"1"}, "limit": {"20"}, "keyword": {"x"}}, map[string][]string(req.Query))
}

func TestListDatasetsOmitsUnsetQuery(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodGet, "datasets", 200, map[string]any{"data": []any{datasetBody("kb")}, "total": 1})

	out, err := svc.Datasets.List(context.Background(), dify.DatasetListQuery{TagIDs: []string{"a", "b"}})
	require.NoError(t, err)
	require.Len(t, out.Data, 1)
	assert.Equal(t, "kb", out.Data[0].Name)
	assert.Equal(t, int64(1700000000), out.Data[0].CreatedAt)
	assert.Equal(t, "docs", out.Data[0].Tags[0].Name)

	q := srv.Last().Query
	assert.Equal(t, "a,b", q.Get("tag_ids"))
	for _, k := range []string{"page", "limit", "keyword", "include_all"} {
		assert.NotContains(t, q, k)
	}
}

func TestCreateDatasetBodyHasOnlySetFields(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodPost, "datasets", 200, datasetBody("kb"))

	ds, err := svc.Datasets.Create(context.Background(), dify.DatasetCreate{Name: "  kb  ", Permission: "only_me"})
	require.NoError(t, err)
	assert.Equal(t, datasetID, ds.ID)
	assert.Equal(t, map[string]any{"name": "kb", "permission": "only_me"}, srv.Last().Body)
}

func TestCreateDatasetValidation(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	cases := map[string]dify.DatasetCreate{
		"blank name":     {Name: "   "},
		"long name":      {Name: strings.Repeat("n", 41)},
		"bad technique":  {Name: "kb", IndexingTechnique: "fast"},
		"bad permission": {Name: "kb", Permission: "everyone"},
		"bad search":     {Name: "kb", RetrievalModel: &dify.RetrievalModel{SearchMethod: "magic"}},
		"bad top_k":      {Name: "kb", RetrievalModel: &dify.RetrievalModel{TopK: ptr(-1)}},
		"zero top_k":     {Name: "kb", RetrievalModel: &dify.RetrievalModel{TopK: ptr(0)}},
		"bad threshold":  {Name: "kb", RetrievalModel: &dify.RetrievalModel{ScoreThreshold: ptr(1.5)}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Datasets.Create(ctx, in)
			requireKind(t, err, errmodel.KindValidation)
		})
	}
	assert.Equal(t, 0, srv.Count())
}

func TestMalformedIdentifiersNeverReachTheWire(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	bad := []string{"", "abc", "not-a-uuid-at-all", strings.Repeat("x", 36), datasetID + "0"}

	for _, id := range bad {
		calls := []func() error{
			func() error { _, err := svc.Datasets.Get(ctx, id); return err },
			func() error { _, err := svc.Datasets.Delete(ctx, id); return err },
			func() error { _, err := svc.Datasets.Update(ctx, id, dify.DatasetUpdate{}); return err },
			func() error { _, err := svc.Datasets.Queries(ctx, id); return err },
			func() error { _, err := svc.Datasets.BindTags(ctx, datasetID, []string{id}); return err },
			func() error { _, err := svc.Datasets.DeleteTag(ctx, id); return err },
			func() error { _, err := svc.Documents.Get(ctx, datasetID, id); return err },
			func() error { _, err := svc.Documents.DeleteMetadata(ctx, datasetID, documentID, id); return err },
			func() error { _, err := svc.Segments.Get(ctx, datasetID, documentID, id); return err },
			func() error { _, err := svc.Segments.GetSubSegment(ctx, datasetID, documentID, segmentID, id); return err },
			func() error { _, err := svc.Search.Semantic(ctx, id, dify.SearchRequest{Query: "q"}); return err },
			func() error { _, err := svc.Search.SearchMultiple(ctx, []string{datasetID, id}, dify.SearchRequest{Query: "q"}); return err },
		}
		for i, call := range calls {
			err := call()
			require.Error(t, err, "call %d with %q", i, id)
			assert.True(t, errmodel.Is(err, errmodel.KindValidation), "call %d with %q: %v", i, id, err)
		}
	}
	assert.Equal(t, 0, srv.Count())
}

func TestGetDatasetIsNotCached(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodGet, "datasets/"+datasetID, 200, datasetBody("kb"))
	ctx := context.Background()

	first, err := svc.Datasets.Get(ctx, datasetID)
	require.NoError(t, err)
	second, err := svc.Datasets.Get(ctx, datasetID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, srv.Count())
}

func TestDeleteDatasetNotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Datasets.Delete(context.Background(), datasetID)
	requireKind(t, err, errmodel.KindNotFound)
}

func TestUpdateDatasetSendsPatch(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodPatch, "datasets/"+datasetID, 200, datasetBody("renamed"))

	ds, err := svc.Datasets.Update(context.Background(), datasetID, dify.DatasetUpdate{Name: ptr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", ds.Name)
	assert.Equal(t, map[string]any{"name": "renamed"}, srv.Last().Body)
}

func TestTagLifecycle(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	tag := map[string]any{"id": tagID, "name": "docs", "dataset_count": 2}
	srv.Handle(http.MethodGet, "datasets/tags", 200, []any{tag})
	srv.Handle(http.MethodPost, "datasets/tags", 200, tag)
	srv.Handle(http.MethodPatch, "datasets/tags/"+tagID, 200, tag)
	srv.Handle(http.MethodDelete, "datasets/tags/"+tagID, 204, nil)
	srv.Handle(http.MethodPost, "datasets/"+datasetID+"/tags", 200, map[string]any{"result": "success"})
	srv.Handle(http.MethodDelete, "datasets/"+datasetID+"/tags", 200, map[string]any{"result": "success"})

	tags, err := svc.Datasets.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, 2, tags[0].DatasetCount)

	_, err = svc.Datasets.CreateTag(ctx, dify.DatasetTagCreate{Name: strings.Repeat("t", 51)})
	requireKind(t, err, errmodel.KindValidation)
	created, err := svc.Datasets.CreateTag(ctx, dify.DatasetTagCreate{Name: "docs"})
	require.NoError(t, err)
	assert.Equal(t, tagID, created.ID)

	_, err = svc.Datasets.UpdateTag(ctx, tagID, dify.DatasetTagUpdate{Color: ptr("#fff")})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"color": "#fff"}, srv.Last().Body)

	ok, err := svc.Datasets.DeleteTag(ctx, tagID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Datasets.BindTags(ctx, datasetID, nil)
	requireKind(t, err, errmodel.KindValidation)
	ok, err = svc.Datasets.BindTags(ctx, datasetID, []string{tagID})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Datasets.UnbindTags(ctx, datasetID, []string{tagID})
	require.NoError(t, err)
	assert.True(t, ok)
	last := srv.Last()
	assert.Equal(t, http.MethodDelete, last.Method)
	assert.Equal(t, []any{tagID}, last.Body["tag_ids"])
}

func TestDatasetAuxiliaryEndpoints(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	srv.Handle(http.MethodGet, "datasets/"+datasetID+"/queries", 200, map[string]any{"data": []any{map[string]any{"content": "q"}}})
	srv.Handle(http.MethodGet, "datasets/"+datasetID+"/error-docs", 200, map[string]any{})
	srv.Handle(http.MethodGet, "datasets/"+datasetID+"/indexing-status", 200, map[string]any{"status": "completed"})
	srv.Handle(http.MethodGet, "datasets/embedding-models", 200, map[string]any{"data": []any{map[string]any{"provider": "openai", "model": "text-embedding-3", "available": true}}, "total": 1})
	srv.Handle(http.MethodPatch, "datasets/"+datasetID+"/retrieval-settings", 200, map[string]any{"search_method": "hybrid_search"})
	srv.Handle(http.MethodPost, "datasets/"+datasetID+"/copy", 200, datasetBody("copy"))
	srv.Handle(http.MethodPost, "datasets/"+datasetID+"/export", 200, map[string]any{"dataset": map[string]any{}})
	srv.Handle(http.MethodPost, "datasets/import", 200, datasetBody("imported"))

	queries, err := svc.Datasets.Queries(ctx, datasetID)
	require.NoError(t, err)
	assert.Len(t, queries, 1)

	docs, err := svc.Datasets.ErrorDocs(ctx, datasetID)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)

	status, err := svc.Datasets.IndexingStatus(ctx, datasetID)
	require.NoError(t, err)
	assert.Equal(t, "completed", status["status"])

	models, err := svc.Datasets.EmbeddingModels(ctx)
	require.NoError(t, err)
	require.Len(t, models.Data, 1)
	assert.True(t, models.Data[0].Available)

	settings, err := svc.Datasets.UpdateRetrievalSettings(ctx, datasetID, dify.RetrievalModel{SearchMethod: "hybrid_search", TopK: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, "hybrid_search", settings["search_method"])

	cp, err := svc.Datasets.Copy(ctx, datasetID, "copy")
	require.NoError(t, err)
	assert.Equal(t, "copy", cp.Name)

	exported, err := svc.Datasets.Export(ctx, datasetID)
	require.NoError(t, err)
	assert.Contains(t, exported, "dataset")

	_, err = svc.Datasets.Import(ctx, nil)
	requireKind(t, err, errmodel.KindValidation)
	imported, err := svc.Datasets.Import(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, "imported", imported.Name)
}

func ptr[T any](v T) *T { return &v }
