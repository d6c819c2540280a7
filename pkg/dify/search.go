package dify

import (
	"context"
	"net/url"
	"strconv"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
	"github.com/wilhg/dify-rag-mcp/pkg/validate"
)

const (
	DefaultSearchMethod = "semantic_search"
	DefaultTopK         = 10
	MaxQueryLength      = 1000

	defaultSuggestionLimit = 5
	defaultHistoryLimit    = 20
	defaultExportTopK      = 100
	defaultExportFormat    = "json"
)

// DefaultHybridWeights splits the hybrid score between vector and keyword matches.
func DefaultHybridWeights() map[string]float64 {
	return map[string]float64{"semantic_search": 0.7, "keyword_search": 0.3}
}

// SearchRequest is the retrieval body. Unset fields take the defaults applied
// by Search: semantic search, ten results and no reranking. A TopK that is set
// must be at least 1.
type SearchRequest struct {
	Query           string             `json:"query"`
	SearchMethod    string             `json:"search_method"`
	TopK            *int               `json:"top_k"`
	ScoreThreshold  *float64           `json:"score_threshold,omitempty"`
	RerankingEnable *bool              `json:"reranking_enable,omitempty"`
	RerankingModel  map[string]any     `json:"reranking_model,omitempty"`
	Weights         map[string]float64 `json:"weights,omitempty"`
	Filter          map[string]any     `json:"filter,omitempty"`
}

// SearchAPI runs retrieval queries against one or more datasets.
type SearchAPI struct {
	c *Client
}

func NewSearchAPI(c *Client) *SearchAPI { return &SearchAPI{c: c} }

// Search retrieves the segments of one dataset that best match the query.
func (a *SearchAPI) Search(ctx context.Context, datasetID string, req SearchRequest) (*SearchResponse, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	body, err := normalizeSearch(req)
	if err != nil {
		return nil, err
	}
	res, err := a.c.Post(ctx, datasetPath(datasetID, "retrieve"), &Request{JSON: body})
	if err != nil {
		return nil, err
	}
	return decodeSearch(res)
}

func (a *SearchAPI) Semantic(ctx context.Context, datasetID string, req SearchRequest) (*SearchResponse, error) {
	req.SearchMethod = "semantic_search"
	return a.Search(ctx, datasetID, req)
}

// Keyword runs an inverted-index search. Reranking is always off.
func (a *SearchAPI) Keyword(ctx context.Context, datasetID string, req SearchRequest) (*SearchResponse, error) {
	req.SearchMethod = "keyword_search"
	req.RerankingEnable = boolPtr(false)
	req.Weights = nil
	return a.Search(ctx, datasetID, req)
}

// Hybrid blends vector and keyword scores. Weights default to
// DefaultHybridWeights and reranking is on unless the caller set it.
func (a *SearchAPI) Hybrid(ctx context.Context, datasetID string, req SearchRequest) (*SearchResponse, error) {
	req.SearchMethod = "hybrid_search"
	if len(req.Weights) == 0 {
		req.Weights = DefaultHybridWeights()
	}
	if req.RerankingEnable == nil {
		req.RerankingEnable = boolPtr(true)
	}
	return a.Search(ctx, datasetID, req)
}

func (a *SearchAPI) FullText(ctx context.Context, datasetID string, req SearchRequest) (*SearchResponse, error) {
	req.SearchMethod = "full_text_search"
	req.RerankingEnable = boolPtr(false)
	req.Weights = nil
	return a.Search(ctx, datasetID, req)
}

// SearchMultiple queries several datasets in one call. The result is keyed by
// dataset id and only holds the ids the upstream answered for.
func (a *SearchAPI) SearchMultiple(ctx context.Context, datasetIDs []string, req SearchRequest) (map[string]*SearchResponse, error) {
	if len(datasetIDs) == 0 {
		return nil, errmodel.Validation("dataset_ids", datasetIDs, "dataset_ids cannot be empty")
	}
	for _, id := range datasetIDs {
		if _, err := validate.DatasetID(id); err != nil {
			return nil, err
		}
	}
	body, err := normalizeSearch(req)
	if err != nil {
		return nil, err
	}
	payload := struct {
		SearchRequest
		DatasetIDs []string `json:"dataset_ids"`
	}{body, datasetIDs}
	res, err := a.c.Post(ctx, "datasets/retrieve", &Request{JSON: payload})
	if err != nil {
		return nil, err
	}
	out := make(map[string]*SearchResponse, len(datasetIDs))
	for _, id := range datasetIDs {
		part, ok := res[id].(map[string]any)
		if !ok {
			continue
		}
		r, err := decodeSearch(part)
		if err != nil {
			return nil, err
		}
		out[id] = r
	}
	return out, nil
}

// HitTesting previews which segments a query would hit without recording it.
func (a *SearchAPI) HitTesting(ctx context.Context, datasetID, query, method string, topK *int, threshold *float64) (map[string]any, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	body, err := normalizeSearch(SearchRequest{Query: query, SearchMethod: method, TopK: topK, ScoreThreshold: threshold})
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("query", body.Query)
	params.Set("search_method", body.SearchMethod)
	params.Set("top_k", strconv.Itoa(*body.TopK))
	if body.ScoreThreshold != nil {
		params.Set("score_threshold", strconv.FormatFloat(*body.ScoreThreshold, 'f', -1, 64))
	}
	return a.c.Get(ctx, datasetPath(datasetID, "hit-testing"), params)
}

// Suggestions returns query completions for a prefix. limit 0 means 5.
func (a *SearchAPI) Suggestions(ctx context.Context, datasetID, query string, limit int) ([]string, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	query, err := validate.NonEmptyString(query, "query", MaxQueryLength)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = defaultSuggestionLimit
	}
	if limit, err = validate.PositiveInteger(limit, "limit", 1); err != nil {
		return nil, err
	}
	params := url.Values{"query": {query}, "limit": {strconv.Itoa(limit)}}
	res, err := a.c.Get(ctx, datasetPath(datasetID, "search-suggestions"), params)
	if err != nil {
		return nil, err
	}
	var out struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	if out.Suggestions == nil {
		out.Suggestions = []string{}
	}
	return out.Suggestions, nil
}

// History pages through recorded queries. Zero page and limit mean 1 and 20.
func (a *SearchAPI) History(ctx context.Context, datasetID string, page, limit int) (map[string]any, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	params := url.Values{}
	if err := pagination(params, page, limit); err != nil {
		return nil, err
	}
	return a.c.Get(ctx, datasetPath(datasetID, "search-history"), params)
}

func (a *SearchAPI) ClearHistory(ctx context.Context, datasetID string) (bool, error) {
	if err := checkPath(datasetID); err != nil {
		return false, err
	}
	if _, err := a.c.Delete(ctx, datasetPath(datasetID, "search-history"), nil); err != nil {
		return false, err
	}
	return true, nil
}

// ExportResults asks the upstream to package a result set. A nil topK means
// 100 and an empty format means json.
func (a *SearchAPI) ExportResults(ctx context.Context, datasetID, query, method string, topK *int, format string) (map[string]any, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	if topK == nil {
		topK = intPtr(defaultExportTopK)
	}
	if format == "" {
		format = defaultExportFormat
	}
	body, err := normalizeSearch(SearchRequest{Query: query, SearchMethod: method, TopK: topK})
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"query":         body.Query,
		"search_method": body.SearchMethod,
		"top_k":         *body.TopK,
		"format":        format,
	}
	return a.c.Post(ctx, datasetPath(datasetID, "search-results/export"), &Request{JSON: data})
}

// normalizeSearch validates req and fills in the defaults.
func normalizeSearch(req SearchRequest) (SearchRequest, error) {
	q, err := validate.NonEmptyString(req.Query, "query", MaxQueryLength)
	if err != nil {
		return req, err
	}
	req.Query = q
	if req.SearchMethod == "" {
		req.SearchMethod = DefaultSearchMethod
	}
	if _, err := validate.SearchMethod(req.SearchMethod); err != nil {
		return req, err
	}
	if req.TopK == nil {
		req.TopK = intPtr(DefaultTopK)
	} else if _, err := validate.PositiveInteger(*req.TopK, "top_k", 1); err != nil {
		return req, err
	}
	if req.ScoreThreshold != nil {
		if _, err := validate.ScoreThreshold(*req.ScoreThreshold); err != nil {
			return req, err
		}
	}
	if req.RerankingEnable == nil {
		req.RerankingEnable = boolPtr(false)
	}
	return req, nil
}

func decodeSearch(res map[string]any) (*SearchResponse, error) {
	var out SearchResponse
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []SearchResult{}
	}
	return &out, nil
}

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }
