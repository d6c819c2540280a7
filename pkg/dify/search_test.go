package dify_test

import (
	"context"
	"math"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

const otherDatasetID = "aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee"

func retrievePath() string { return "datasets/" + datasetID + "/retrieve" }

func searchBody(n int) map[string]any {
	data := make([]any, 0, n)
	for i := 0; i < n; i++ {
		data = append(data, map[string]any{"id": segmentID, "content": "hit", "score": 0.9, "document_id": documentID, "document_name": "guide.md"})
	}
	return map[string]any{"data": data, "total": n, "query": "q", "search_method": "semantic_search"}
}

func TestSearchDefaults(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodPost, retrievePath(), 200, searchBody(2))

	out, err := svc.Search.Search(context.Background(), datasetID, dify.SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, out.Data, 2)
	assert.Equal(t, 0.9, out.Data[0].Score)

	assert.Equal(t, map[string]any{
		"query":            "q",
		"search_method":    "semantic_search",
		"top_k":            10.0,
		"reranking_enable": false,
	}, srv.Last().Body)
}

func TestSearchScoreThresholdBounds(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodPost, retrievePath(), 200, searchBody(0))
	ctx := context.Background()

	for _, v := range []float64{-0.01, 1.01, 2, -1, math.NaN(), math.Inf(1)} {
		_, err := svc.Search.Search(ctx, datasetID, dify.SearchRequest{Query: "q", ScoreThreshold: ptr(v)})
		assert.True(t, errmodel.Is(err, errmodel.KindValidation), "threshold %v", v)
	}
	assert.Equal(t, 0, srv.Count())

	for _, v := range []float64{0, 0.5, 1} {
		_, err := svc.Search.Search(ctx, datasetID, dify.SearchRequest{Query: "q", ScoreThreshold: ptr(v)})
		require.NoError(t, err, "threshold %v", v)
	}
	assert.Equal(t, 0.0, srv.Requests()[0].Body["score_threshold"])
}

func TestSearchTopK(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodPost, retrievePath(), 200, searchBody(1))
	ctx := context.Background()

	for _, k := range []int{-3, 0} {
		_, err := svc.Search.Semantic(ctx, datasetID, dify.SearchRequest{Query: "q", TopK: ptr(k)})
		requireKind(t, err, errmodel.KindValidation)
		_, err = svc.Search.HitTesting(ctx, datasetID, "q", "", ptr(k), nil)
		requireKind(t, err, errmodel.KindValidation)
		_, err = svc.Search.ExportResults(ctx, datasetID, "q", "", ptr(k), "")
		requireKind(t, err, errmodel.KindValidation)
	}
	assert.Equal(t, 0, srv.Count())

	_, err := svc.Search.Search(ctx, datasetID, dify.SearchRequest{Query: "q", TopK: ptr(1)})
	require.NoError(t, err)
	assert.Equal(t, 1.0, srv.Last().Body["top_k"])

	_, err = svc.Search.Search(ctx, datasetID, dify.SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, 10.0, srv.Last().Body["top_k"], "unset top_k takes the default")
}

func TestSearchQueryValidation(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()

	_, err := svc.Search.Search(ctx, datasetID, dify.SearchRequest{Query: "   "})
	requireKind(t, err, errmodel.KindValidation)
	_, err = svc.Search.Search(ctx, datasetID, dify.SearchRequest{Query: strings.Repeat("q", dify.MaxQueryLength+1)})
	requireKind(t, err, errmodel.KindValidation)
	_, err = svc.Search.Search(ctx, datasetID, dify.SearchRequest{Query: "q", SearchMethod: "vector"})
	requireKind(t, err, errmodel.KindValidation)
	assert.Equal(t, 0, srv.Count())
}

func TestSearchVariants(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodPost, retrievePath(), 200, searchBody(1))
	ctx := context.Background()
	req := dify.SearchRequest{Query: "q", TopK: ptr(3)}

	_, err := svc.Search.Semantic(ctx, datasetID, req)
	require.NoError(t, err)
	assert.Equal(t, "semantic_search", srv.Last().Body["search_method"])

	_, err = svc.Search.Keyword(ctx, datasetID, dify.SearchRequest{Query: "q", RerankingEnable: ptr(true)})
	require.NoError(t, err)
	body := srv.Last().Body
	assert.Equal(t, "keyword_search", body["search_method"])
	assert.Equal(t, false, body["reranking_enable"])

	_, err = svc.Search.FullText(ctx, datasetID, req)
	require.NoError(t, err)
	body = srv.Last().Body
	assert.Equal(t, "full_text_search", body["search_method"])
	assert.Equal(t, false, body["reranking_enable"])

	_, err = svc.Search.Hybrid(ctx, datasetID, req)
	require.NoError(t, err)
	body = srv.Last().Body
	assert.Equal(t, "hybrid_search", body["search_method"])
	assert.Equal(t, true, body["reranking_enable"])
	assert.Equal(t, map[string]any{"semantic_search": 0.7, "keyword_search": 0.3}, body["weights"])

	_, err = svc.Search.Hybrid(ctx, datasetID, dify.SearchRequest{
		Query:           "q",
		RerankingEnable: ptr(false),
		Weights:         map[string]float64{"semantic_search": 0.5, "keyword_search": 0.5},
	})
	require.NoError(t, err)
	body = srv.Last().Body
	assert.Equal(t, false, body["reranking_enable"])
	assert.Equal(t, map[string]any{"semantic_search": 0.5, "keyword_search": 0.5}, body["weights"])
}

func TestSearchMultiple(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodPost, "datasets/retrieve", 200, map[string]any{
		datasetID: searchBody(2),
	})
	ctx := context.Background()

	_, err := svc.Search.SearchMultiple(ctx, nil, dify.SearchRequest{Query: "q"})
	requireKind(t, err, errmodel.KindValidation)

	out, err := svc.Search.SearchMultiple(ctx, []string{datasetID, otherDatasetID}, dify.SearchRequest{Query: "q"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Len(t, out[datasetID].Data, 2)
	assert.NotContains(t, out, otherDatasetID)

	body := srv.Last().Body
	assert.Equal(t, []any{datasetID, otherDatasetID}, body["dataset_ids"])
	assert.Equal(t, "q", body["query"])
}

func TestSearchAuxiliaryEndpoints(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	base := "datasets/" + datasetID
	srv.Handle(http.MethodGet, base+"/hit-testing", 200, map[string]any{"records": []any{}})
	srv.Handle(http.MethodGet, base+"/search-suggestions", 200, map[string]any{"suggestions": []any{"alpha", "alps"}})
	srv.Handle(http.MethodGet, base+"/search-history", 200, map[string]any{"data": []any{}, "page": 1})
	srv.Handle(http.MethodDelete, base+"/search-history", 204, nil)
	srv.Handle(http.MethodPost, base+"/search-results/export", 200, map[string]any{"url": "https://files/x.json"})

	_, err := svc.Search.HitTesting(ctx, datasetID, "q", "", nil, ptr(0.25))
	require.NoError(t, err)
	q := srv.Last().Query
	assert.Equal(t, "semantic_search", q.Get("search_method"))
	assert.Equal(t, "10", q.Get("top_k"))
	assert.Equal(t, "0.25", q.Get("score_threshold"))

	sugg, err := svc.Search.Suggestions(ctx, datasetID, "al", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "alps"}, sugg)
	assert.Equal(t, "5", srv.Last().Query.Get("limit"))

	_, err = svc.Search.History(ctx, datasetID, 0, 0)
	require.NoError(t, err)
	q = srv.Last().Query
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "20", q.Get("limit"))

	ok, err := svc.Search.ClearHistory(ctx, datasetID)
	require.NoError(t, err)
	assert.True(t, ok)

	exp, err := svc.Search.ExportResults(ctx, datasetID, "q", "keyword_search", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "https://files/x.json", exp["url"])
	assert.Equal(t, map[string]any{"query": "q", "search_method": "keyword_search", "top_k": 100.0, "format": "json"}, srv.Last().Body)
}
