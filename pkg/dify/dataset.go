package dify

import (
	"context"
	"net/url"
	"strings"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
	"github.com/wilhg/dify-rag-mcp/pkg/validate"
)

// DatasetAPI manages knowledge bases, their tags and retrieval settings.
type DatasetAPI struct {
	c *Client
}

func NewDatasetAPI(c *Client) *DatasetAPI { return &DatasetAPI{c: c} }

func (a *DatasetAPI) List(ctx context.Context, q DatasetListQuery) (*DatasetList, error) {
	params := url.Values{}
	if err := pagination(params, q.Page, q.Limit); err != nil {
		return nil, err
	}
	setString(params, "keyword", q.Keyword)
	if len(q.TagIDs) > 0 {
		params.Set("tag_ids", strings.Join(q.TagIDs, ","))
	}
	if q.IncludeAll {
		params.Set("include_all", "true")
	}
	res, err := a.c.Get(ctx, "datasets", params)
	if err != nil {
		return nil, err
	}
	var out DatasetList
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *DatasetAPI) Create(ctx context.Context, in DatasetCreate) (*Dataset, error) {
	name, err := validate.NonEmptyString(in.Name, "name", 40)
	if err != nil {
		return nil, err
	}
	in.Name = name
	if err := datasetEnums(in.IndexingTechnique, in.Permission); err != nil {
		return nil, err
	}
	if err := checkRetrievalModel(in.RetrievalModel); err != nil {
		return nil, err
	}
	res, err := a.c.Post(ctx, "datasets", &Request{JSON: in})
	if err != nil {
		return nil, err
	}
	return decodeDataset(res)
}

func (a *DatasetAPI) Get(ctx context.Context, datasetID string) (*Dataset, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	res, err := a.c.Get(ctx, datasetPath(datasetID), nil)
	if err != nil {
		return nil, err
	}
	return decodeDataset(res)
}

func (a *DatasetAPI) Update(ctx context.Context, datasetID string, in DatasetUpdate) (*Dataset, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	if in.Name != nil {
		name, err := validate.NonEmptyString(*in.Name, "name", 40)
		if err != nil {
			return nil, err
		}
		in.Name = &name
	}
	if err := datasetEnums(in.IndexingTechnique, in.Permission); err != nil {
		return nil, err
	}
	if err := checkRetrievalModel(in.RetrievalModel); err != nil {
		return nil, err
	}
	res, err := a.c.Patch(ctx, datasetPath(datasetID), in)
	if err != nil {
		return nil, err
	}
	return decodeDataset(res)
}

func (a *DatasetAPI) Delete(ctx context.Context, datasetID string) (bool, error) {
	if err := checkPath(datasetID); err != nil {
		return false, err
	}
	if _, err := a.c.Delete(ctx, datasetPath(datasetID), nil); err != nil {
		return false, err
	}
	return true, nil
}

// Queries returns the recent retrieval queries recorded against a dataset.
func (a *DatasetAPI) Queries(ctx context.Context, datasetID string) ([]any, error) {
	return a.dataList(ctx, datasetID, "queries")
}

// ErrorDocs returns the documents whose indexing failed.
func (a *DatasetAPI) ErrorDocs(ctx context.Context, datasetID string) ([]any, error) {
	return a.dataList(ctx, datasetID, "error-docs")
}

func (a *DatasetAPI) IndexingStatus(ctx context.Context, datasetID string) (map[string]any, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	return a.c.Get(ctx, datasetPath(datasetID, "indexing-status"), nil)
}

func (a *DatasetAPI) dataList(ctx context.Context, datasetID, tail string) ([]any, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	res, err := a.c.Get(ctx, datasetPath(datasetID, tail), nil)
	if err != nil {
		return nil, err
	}
	data, _ := res["data"].([]any)
	if data == nil {
		data = []any{}
	}
	return data, nil
}

func (a *DatasetAPI) ListTags(ctx context.Context) ([]DatasetTag, error) {
	res, err := a.c.Get(ctx, "datasets/tags", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []DatasetTag `json:"data"`
	}
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []DatasetTag{}
	}
	return out.Data, nil
}

func (a *DatasetAPI) CreateTag(ctx context.Context, in DatasetTagCreate) (*DatasetTag, error) {
	name, err := validate.NonEmptyString(in.Name, "name", 50)
	if err != nil {
		return nil, err
	}
	in.Name = name
	res, err := a.c.Post(ctx, "datasets/tags", &Request{JSON: in})
	if err != nil {
		return nil, err
	}
	return decodeTag(res)
}

func (a *DatasetAPI) UpdateTag(ctx context.Context, tagID string, in DatasetTagUpdate) (*DatasetTag, error) {
	if _, err := validate.TagID(tagID); err != nil {
		return nil, err
	}
	if in.Name != nil {
		name, err := validate.NonEmptyString(*in.Name, "name", 50)
		if err != nil {
			return nil, err
		}
		in.Name = &name
	}
	res, err := a.c.Patch(ctx, join("datasets", "tags", tagID), in)
	if err != nil {
		return nil, err
	}
	return decodeTag(res)
}

func (a *DatasetAPI) DeleteTag(ctx context.Context, tagID string) (bool, error) {
	if _, err := validate.TagID(tagID); err != nil {
		return false, err
	}
	if _, err := a.c.Delete(ctx, join("datasets", "tags", tagID), nil); err != nil {
		return false, err
	}
	return true, nil
}

func (a *DatasetAPI) BindTags(ctx context.Context, datasetID string, tagIDs []string) (bool, error) {
	if err := checkTagBinding(datasetID, tagIDs); err != nil {
		return false, err
	}
	if _, err := a.c.Post(ctx, datasetPath(datasetID, "tags"), &Request{JSON: map[string]any{"tag_ids": tagIDs}}); err != nil {
		return false, err
	}
	return true, nil
}

func (a *DatasetAPI) UnbindTags(ctx context.Context, datasetID string, tagIDs []string) (bool, error) {
	if err := checkTagBinding(datasetID, tagIDs); err != nil {
		return false, err
	}
	if _, err := a.c.Delete(ctx, datasetPath(datasetID, "tags"), map[string]any{"tag_ids": tagIDs}); err != nil {
		return false, err
	}
	return true, nil
}

func (a *DatasetAPI) EmbeddingModels(ctx context.Context) (*EmbeddingModelList, error) {
	res, err := a.c.Get(ctx, "datasets/embedding-models", nil)
	if err != nil {
		return nil, err
	}
	var out EmbeddingModelList
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *DatasetAPI) RetrievalSettings(ctx context.Context, datasetID string) (map[string]any, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	return a.c.Get(ctx, datasetPath(datasetID, "retrieval-settings"), nil)
}

func (a *DatasetAPI) UpdateRetrievalSettings(ctx context.Context, datasetID string, in RetrievalModel) (map[string]any, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	if err := checkRetrievalModel(&in); err != nil {
		return nil, err
	}
	return a.c.Patch(ctx, datasetPath(datasetID, "retrieval-settings"), in)
}

// Copy duplicates a dataset under a new name.
func (a *DatasetAPI) Copy(ctx context.Context, datasetID, name string) (*Dataset, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	name, err := validate.NonEmptyString(name, "name", 40)
	if err != nil {
		return nil, err
	}
	res, err := a.c.Post(ctx, datasetPath(datasetID, "copy"), &Request{JSON: map[string]any{"name": name}})
	if err != nil {
		return nil, err
	}
	return decodeDataset(res)
}

func (a *DatasetAPI) Export(ctx context.Context, datasetID string) (map[string]any, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	return a.c.Post(ctx, datasetPath(datasetID, "export"), nil)
}

// Import creates a dataset from a payload produced by Export.
func (a *DatasetAPI) Import(ctx context.Context, data map[string]any) (*Dataset, error) {
	if len(data) == 0 {
		return nil, errmodel.Validation("data", data, "import data cannot be empty")
	}
	res, err := a.c.Post(ctx, "datasets/import", &Request{JSON: data})
	if err != nil {
		return nil, err
	}
	return decodeDataset(res)
}

func datasetEnums(technique, permission string) error {
	if technique != "" {
		if _, err := validate.IndexingTechnique(technique); err != nil {
			return err
		}
	}
	if permission != "" {
		if _, err := validate.Permission(permission); err != nil {
			return err
		}
	}
	return nil
}

func checkRetrievalModel(m *RetrievalModel) error {
	if m == nil {
		return nil
	}
	if m.SearchMethod != "" {
		if _, err := validate.SearchMethod(m.SearchMethod); err != nil {
			return err
		}
	}
	if m.TopK != nil {
		if _, err := validate.PositiveInteger(*m.TopK, "top_k", 1); err != nil {
			return err
		}
	}
	if m.ScoreThreshold != nil {
		if _, err := validate.ScoreThreshold(*m.ScoreThreshold); err != nil {
			return err
		}
	}
	return nil
}

func checkTagBinding(datasetID string, tagIDs []string) error {
	if err := checkPath(datasetID); err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return errmodel.Validation("tag_ids", tagIDs, "tag_ids cannot be empty")
	}
	for _, id := range tagIDs {
		if _, err := validate.TagID(id); err != nil {
			return err
		}
	}
	return nil
}

func decodeDataset(res map[string]any) (*Dataset, error) {
	var out Dataset
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeTag(res map[string]any) (*DatasetTag, error) {
	var out DatasetTag
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
