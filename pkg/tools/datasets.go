package tools

import (
	"context"
	"fmt"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
)

type datasetRef struct {
	DatasetID string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
}

type tagRef struct {
	TagID string `json:"tag_id" jsonschema:"ID of the tag (UUID)"`
}

// retrievalArgs mirrors dify.RetrievalModel with every field optional.
type retrievalArgs struct {
	SearchMethod          string               `json:"search_method,omitempty" jsonschema:"semantic_search, keyword_search, hybrid_search or full_text_search"`
	RerankingEnable       *bool                `json:"reranking_enable,omitempty" jsonschema:"whether results are reranked"`
	RerankingMode         string               `json:"reranking_mode,omitempty"`
	RerankingModel        *dify.RerankingModel `json:"reranking_model,omitempty"`
	Weights               map[string]any       `json:"weights,omitempty" jsonschema:"hybrid search weights"`
	TopK                  *int                 `json:"top_k,omitempty" jsonschema:"number of results to return, at least 1"`
	ScoreThresholdEnabled *bool                `json:"score_threshold_enabled,omitempty"`
	ScoreThreshold        *float64             `json:"score_threshold,omitempty" jsonschema:"minimum relevance score between 0 and 1"`
}

func (r *retrievalArgs) model() *dify.RetrievalModel {
	if r == nil {
		return nil
	}
	m := &dify.RetrievalModel{
		SearchMethod:          r.SearchMethod,
		RerankingMode:         r.RerankingMode,
		RerankingModel:        r.RerankingModel,
		TopK:                  r.TopK,
		ScoreThresholdEnabled: r.ScoreThresholdEnabled,
		ScoreThreshold:        r.ScoreThreshold,
	}
	if r.RerankingEnable != nil {
		m.RerankingEnable = *r.RerankingEnable
	}
	if len(r.Weights) > 0 {
		m.Weights = r.Weights
	}
	return m
}

type createDatasetArgs struct {
	Name                   string         `json:"name" jsonschema:"dataset name, at most 40 characters"`
	Description            string         `json:"description,omitempty"`
	IndexingTechnique      string         `json:"indexing_technique,omitempty" jsonschema:"high_quality (default) or economy"`
	Permission             string         `json:"permission,omitempty" jsonschema:"only_me (default), all_team_members or partial_members"`
	Provider               string         `json:"provider,omitempty" jsonschema:"vendor (default) or external"`
	ExternalKnowledgeAPIID string         `json:"external_knowledge_api_id,omitempty"`
	ExternalKnowledgeID    string         `json:"external_knowledge_id,omitempty"`
	EmbeddingModel         string         `json:"embedding_model,omitempty"`
	EmbeddingModelProvider string         `json:"embedding_model_provider,omitempty"`
	RetrievalModel         *retrievalArgs `json:"retrieval_model,omitempty"`
}

type updateDatasetArgs struct {
	DatasetID              string         `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	Name                   *string        `json:"name,omitempty"`
	Description            *string        `json:"description,omitempty"`
	IndexingTechnique      string         `json:"indexing_technique,omitempty"`
	Permission             string         `json:"permission,omitempty"`
	EmbeddingModel         string         `json:"embedding_model,omitempty"`
	EmbeddingModelProvider string         `json:"embedding_model_provider,omitempty"`
	RetrievalModel         *retrievalArgs `json:"retrieval_model,omitempty"`
	PartialMemberList      []string       `json:"partial_member_list,omitempty"`
}

type listDatasetsArgs struct {
	Page       int      `json:"page,omitempty" jsonschema:"page number, default 1"`
	Limit      int      `json:"limit,omitempty" jsonschema:"page size, default 20"`
	Keyword    string   `json:"keyword,omitempty"`
	TagIDs     []string `json:"tag_ids,omitempty"`
	IncludeAll bool     `json:"include_all,omitempty"`
}

type copyDatasetArgs struct {
	DatasetID string `json:"dataset_id" jsonschema:"ID of the source dataset (UUID)"`
	Name      string `json:"name" jsonschema:"name of the new dataset"`
}

type createTagArgs struct {
	Name        string `json:"name" jsonschema:"tag name, at most 50 characters"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

type updateTagArgs struct {
	TagID       string  `json:"tag_id" jsonschema:"ID of the tag (UUID)"`
	Name        *string `json:"name,omitempty"`
	Color       *string `json:"color,omitempty"`
	Description *string `json:"description,omitempty"`
}

type tagBindingArgs struct {
	DatasetID string   `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	TagIDs    []string `json:"tag_ids" jsonschema:"tag IDs to bind or unbind"`
}

type retrievalSettingsArgs struct {
	DatasetID      string        `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	RetrievalModel retrievalArgs `json:"retrieval_model" jsonschema:"new default retrieval settings"`
}

func datasetTools(svc *dify.Service) []Tool {
	ds := svc.Datasets
	return []Tool{
		newTool("create_dataset", "Create a knowledge base (dataset).", writes,
			func(ctx context.Context, a createDatasetArgs) (Result, error) {
				in := dify.DatasetCreate{
					Name:                   a.Name,
					Description:            a.Description,
					IndexingTechnique:      orDefault(a.IndexingTechnique, "high_quality"),
					Permission:             orDefault(a.Permission, "only_me"),
					Provider:               orDefault(a.Provider, "vendor"),
					ExternalKnowledgeAPIID: a.ExternalKnowledgeAPIID,
					ExternalKnowledgeID:    a.ExternalKnowledgeID,
					EmbeddingModel:         a.EmbeddingModel,
					EmbeddingModelProvider: a.EmbeddingModelProvider,
					RetrievalModel:         a.RetrievalModel.model(),
				}
				d, err := ds.Create(ctx, in)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: d, Message: fmt.Sprintf("Dataset '%s' created", d.Name)}, nil
			}),
		newTool("update_dataset", "Update a dataset's name, description, permissions or retrieval settings.", idempotent,
			func(ctx context.Context, a updateDatasetArgs) (Result, error) {
				d, err := ds.Update(ctx, a.DatasetID, dify.DatasetUpdate{
					Name:                   a.Name,
					Description:            a.Description,
					IndexingTechnique:      a.IndexingTechnique,
					Permission:             a.Permission,
					EmbeddingModel:         a.EmbeddingModel,
					EmbeddingModelProvider: a.EmbeddingModelProvider,
					RetrievalModel:         a.RetrievalModel.model(),
					PartialMemberList:      a.PartialMemberList,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: d, Message: fmt.Sprintf("Dataset '%s' updated", d.Name)}, nil
			}),
		newTool("list_datasets", "List datasets, optionally filtered by keyword or tags.", reads,
			func(ctx context.Context, a listDatasetsArgs) (Result, error) {
				out, err := ds.List(ctx, dify.DatasetListQuery{
					Keyword:    a.Keyword,
					TagIDs:     a.TagIDs,
					Page:       orDefault(a.Page, 1),
					Limit:      orDefault(a.Limit, 20),
					IncludeAll: a.IncludeAll,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: fmt.Sprintf("Found %d datasets", len(out.Data))}, nil
			}),
		newTool("get_dataset", "Get one dataset's details.", reads,
			func(ctx context.Context, a datasetRef) (Result, error) {
				d, err := ds.Get(ctx, a.DatasetID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: d, Message: fmt.Sprintf("Retrieved dataset '%s'", d.Name)}, nil
			}),
		newTool("delete_dataset", "Delete a dataset and all of its documents.", idempotent,
			func(ctx context.Context, a datasetRef) (Result, error) {
				ok, err := ds.Delete(ctx, a.DatasetID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: map[string]any{"deleted": ok}, Message: "Dataset deleted"}, nil
			}),
		newTool("copy_dataset", "Copy a dataset under a new name.", writes,
			func(ctx context.Context, a copyDatasetArgs) (Result, error) {
				d, err := ds.Copy(ctx, a.DatasetID, a.Name)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: d, Message: fmt.Sprintf("Dataset copied as '%s'", d.Name)}, nil
			}),
		newTool("get_dataset_indexing_status", "Get the indexing progress of a dataset.", reads,
			func(ctx context.Context, a datasetRef) (Result, error) {
				st, err := ds.IndexingStatus(ctx, a.DatasetID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: st, Message: "Retrieved dataset indexing status"}, nil
			}),
		newTool("get_dataset_queries", "List recent retrieval queries against a dataset.", reads,
			func(ctx context.Context, a datasetRef) (Result, error) {
				q, err := ds.Queries(ctx, a.DatasetID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: q, Message: fmt.Sprintf("Found %d queries", len(q))}, nil
			}),
		newTool("get_dataset_error_docs", "List documents whose indexing failed.", reads,
			func(ctx context.Context, a datasetRef) (Result, error) {
				docs, err := ds.ErrorDocs(ctx, a.DatasetID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: docs, Message: fmt.Sprintf("Found %d failed documents", len(docs))}, nil
			}),
		newTool("list_dataset_tags", "List the knowledge-base tags.", reads,
			func(ctx context.Context, _ struct{}) (Result, error) {
				tags, err := ds.ListTags(ctx)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: tags, Message: fmt.Sprintf("Found %d tags", len(tags))}, nil
			}),
		newTool("create_dataset_tag", "Create a knowledge-base tag.", writes,
			func(ctx context.Context, a createTagArgs) (Result, error) {
				tag, err := ds.CreateTag(ctx, dify.DatasetTagCreate{Name: a.Name, Color: a.Color, Description: a.Description})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: tag, Message: fmt.Sprintf("Tag '%s' created", tag.Name)}, nil
			}),
		newTool("update_dataset_tag", "Rename or recolor a tag.", idempotent,
			func(ctx context.Context, a updateTagArgs) (Result, error) {
				tag, err := ds.UpdateTag(ctx, a.TagID, dify.DatasetTagUpdate{Name: a.Name, Color: a.Color, Description: a.Description})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: tag, Message: fmt.Sprintf("Tag '%s' updated", tag.Name)}, nil
			}),
		newTool("delete_dataset_tag", "Delete a tag.", idempotent,
			func(ctx context.Context, a tagRef) (Result, error) {
				ok, err := ds.DeleteTag(ctx, a.TagID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: map[string]any{"deleted": ok}, Message: "Tag deleted"}, nil
			}),
		newTool("bind_dataset_tags", "Attach tags to a dataset.", idempotent,
			func(ctx context.Context, a tagBindingArgs) (Result, error) {
				ok, err := ds.BindTags(ctx, a.DatasetID, a.TagIDs)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: map[string]any{"bound": ok}, Message: fmt.Sprintf("Bound %d tags to dataset", len(a.TagIDs))}, nil
			}),
		newTool("unbind_dataset_tags", "Detach tags from a dataset.", idempotent,
			func(ctx context.Context, a tagBindingArgs) (Result, error) {
				ok, err := ds.UnbindTags(ctx, a.DatasetID, a.TagIDs)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: map[string]any{"unbound": ok}, Message: fmt.Sprintf("Unbound %d tags from dataset", len(a.TagIDs))}, nil
			}),
		newTool("list_embedding_models", "List the embedding models available to datasets.", reads,
			func(ctx context.Context, _ struct{}) (Result, error) {
				models, err := ds.EmbeddingModels(ctx)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: models, Message: fmt.Sprintf("Found %d embedding models", len(models.Data))}, nil
			}),
		newTool("get_dataset_retrieval_settings", "Get a dataset's retrieval settings.", reads,
			func(ctx context.Context, a datasetRef) (Result, error) {
				s, err := ds.RetrievalSettings(ctx, a.DatasetID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: s, Message: "Retrieved retrieval settings"}, nil
			}),
		newTool("update_dataset_retrieval_settings", "Change how a dataset is searched by default.", idempotent,
			func(ctx context.Context, a retrievalSettingsArgs) (Result, error) {
				s, err := ds.UpdateRetrievalSettings(ctx, a.DatasetID, *a.RetrievalModel.model())
				if err != nil {
					return Result{}, err
				}
				return Result{Data: s, Message: "Retrieval settings updated"}, nil
			}),
	}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
