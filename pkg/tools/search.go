package tools

import (
	"context"
	"fmt"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
)

type searchArgs struct {
	DatasetID       string             `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	Query           string             `json:"query" jsonschema:"search text, at most 1000 characters"`
	TopK            *int               `json:"top_k,omitempty" jsonschema:"number of results, at least 1, default 10"`
	ScoreThreshold  *float64           `json:"score_threshold,omitempty" jsonschema:"minimum relevance score between 0 and 1"`
	RerankingEnable *bool              `json:"reranking_enable,omitempty" jsonschema:"rerank results before returning them"`
	RerankingModel  map[string]any     `json:"reranking_model,omitempty"`
	Weights         map[string]float64 `json:"weights,omitempty" jsonschema:"hybrid weights keyed by semantic_search and keyword_search"`
	Filter          map[string]any     `json:"filter,omitempty" jsonschema:"metadata filter"`
}

func (a searchArgs) request() dify.SearchRequest {
	return dify.SearchRequest{
		Query:           a.Query,
		TopK:            a.TopK,
		ScoreThreshold:  a.ScoreThreshold,
		RerankingEnable: a.RerankingEnable,
		RerankingModel:  a.RerankingModel,
		Weights:         a.Weights,
		Filter:          a.Filter,
	}
}

type multiSearchArgs struct {
	DatasetIDs      []string           `json:"dataset_ids" jsonschema:"datasets to search"`
	Query           string             `json:"query" jsonschema:"search text, at most 1000 characters"`
	SearchMethod    string             `json:"search_method,omitempty" jsonschema:"semantic_search (default), keyword_search, hybrid_search or full_text_search"`
	TopK            *int               `json:"top_k,omitempty" jsonschema:"number of results per dataset, at least 1, default 10"`
	ScoreThreshold  *float64           `json:"score_threshold,omitempty"`
	RerankingEnable *bool              `json:"reranking_enable,omitempty"`
	Weights         map[string]float64 `json:"weights,omitempty"`
}

type hitTestingArgs struct {
	DatasetID      string   `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	Query          string   `json:"query"`
	SearchMethod   string   `json:"search_method,omitempty" jsonschema:"semantic_search by default"`
	TopK           *int     `json:"top_k,omitempty" jsonschema:"number of results, at least 1, default 10"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
}

type suggestionsArgs struct {
	DatasetID string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	Query     string `json:"query" jsonschema:"partial query to complete"`
	Limit     int    `json:"limit,omitempty" jsonschema:"number of suggestions, default 5"`
}

type historyArgs struct {
	DatasetID string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	Page      int    `json:"page,omitempty" jsonschema:"page number, default 1"`
	Limit     int    `json:"limit,omitempty" jsonschema:"page size, default 20"`
}

type searchFunc func(context.Context, string, dify.SearchRequest) (*dify.SearchResponse, error)

func searchTool(name, description, label string, fn searchFunc) Tool {
	return newTool(name, description, reads,
		func(ctx context.Context, a searchArgs) (Result, error) {
			out, err := fn(ctx, a.DatasetID, a.request())
			if err != nil {
				return Result{}, err
			}
			return Result{Data: out, Message: fmt.Sprintf("%s found %d results", label, len(out.Data))}, nil
		})
}

func searchTools(svc *dify.Service) []Tool {
	s := svc.Search
	return []Tool{
		searchTool("semantic_search", "Find segments by meaning using vector similarity.", "Semantic search", s.Semantic),
		searchTool("keyword_search", "Find segments by keyword match. Reranking is not applied.", "Keyword search", s.Keyword),
		searchTool("hybrid_search", "Combine vector and keyword matching. Weights default to 0.7 semantic and 0.3 keyword.", "Hybrid search", s.Hybrid),
		searchTool("fulltext_search", "Find segments by full-text match. Reranking is not applied.", "Full-text search", s.FullText),
		newTool("multi_dataset_search", "Run one query against several datasets.", reads,
			func(ctx context.Context, a multiSearchArgs) (Result, error) {
				out, err := s.SearchMultiple(ctx, a.DatasetIDs, dify.SearchRequest{
					Query:           a.Query,
					SearchMethod:    a.SearchMethod,
					TopK:            a.TopK,
					ScoreThreshold:  a.ScoreThreshold,
					RerankingEnable: a.RerankingEnable,
					Weights:         a.Weights,
				})
				if err != nil {
					return Result{}, err
				}
				n := 0
				for _, r := range out {
					n += len(r.Data)
				}
				return Result{Data: out, Message: fmt.Sprintf("Multi-dataset search found %d results in %d datasets", n, len(out))}, nil
			}),
		newTool("hit_testing", "Preview which segments a query would hit without recording it.", reads,
			func(ctx context.Context, a hitTestingArgs) (Result, error) {
				out, err := s.HitTesting(ctx, a.DatasetID, a.Query, a.SearchMethod, a.TopK, a.ScoreThreshold)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: "Hit testing completed"}, nil
			}),
		newTool("search_suggestions", "Suggest completions for a partial query.", reads,
			func(ctx context.Context, a suggestionsArgs) (Result, error) {
				out, err := s.Suggestions(ctx, a.DatasetID, a.Query, a.Limit)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: fmt.Sprintf("Found %d suggestions", len(out))}, nil
			}),
		newTool("get_search_history", "List past queries against a dataset.", reads,
			func(ctx context.Context, a historyArgs) (Result, error) {
				out, err := s.History(ctx, a.DatasetID, a.Page, a.Limit)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: "Retrieved search history"}, nil
			}),
		newTool("clear_search_history", "Forget the query history of a dataset.", idempotent,
			func(ctx context.Context, a datasetRef) (Result, error) {
				ok, err := s.ClearHistory(ctx, a.DatasetID)
				return done(ok, err, "cleared", "Search history cleared")
			}),
	}
}
