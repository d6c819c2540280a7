package dify

import (
	"context"
	"net/url"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
	"github.com/wilhg/dify-rag-mcp/pkg/validate"
)

// SegmentAPI manages the chunks of a document and their child chunks.
type SegmentAPI struct {
	c *Client
}

func NewSegmentAPI(c *Client) *SegmentAPI { return &SegmentAPI{c: c} }

func (a *SegmentAPI) List(ctx context.Context, datasetID, documentID string, q SegmentListQuery) (*SegmentList, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	params := url.Values{}
	if err := pagination(params, q.Page, q.Limit); err != nil {
		return nil, err
	}
	setString(params, "keyword", q.Keyword)
	setString(params, "status", q.Status)
	setIntPtr(params, "hit_count_gte", q.HitCountGte)
	setIntPtr(params, "hit_count_lte", q.HitCountLte)
	setIntPtr(params, "word_count_gte", q.WordCountGte)
	setIntPtr(params, "word_count_lte", q.WordCountLte)
	setBoolPtr(params, "enabled", q.Enabled)
	res, err := a.c.Get(ctx, segmentsPath(datasetID, documentID), params)
	if err != nil {
		return nil, err
	}
	var out SegmentList
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *SegmentAPI) Create(ctx context.Context, datasetID, documentID string, in SegmentCreate) (*Segment, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	if _, err := validate.NonEmptyString(in.Content, "content", 0); err != nil {
		return nil, err
	}
	res, err := a.c.Post(ctx, segmentsPath(datasetID, documentID), &Request{JSON: in})
	if err != nil {
		return nil, err
	}
	return decodeSegment(res)
}

func (a *SegmentAPI) Get(ctx context.Context, datasetID, documentID, segmentID string) (*Segment, error) {
	if err := checkPath(datasetID, documentID, segmentID); err != nil {
		return nil, err
	}
	res, err := a.c.Get(ctx, segmentsPath(datasetID, documentID, segmentID), nil)
	if err != nil {
		return nil, err
	}
	return decodeSegment(res)
}

func (a *SegmentAPI) Update(ctx context.Context, datasetID, documentID, segmentID string, in SegmentUpdate) (*Segment, error) {
	if err := checkPath(datasetID, documentID, segmentID); err != nil {
		return nil, err
	}
	if in.Content != nil {
		if _, err := validate.NonEmptyString(*in.Content, "content", 0); err != nil {
			return nil, err
		}
	}
	res, err := a.c.Patch(ctx, segmentsPath(datasetID, documentID, segmentID), in)
	if err != nil {
		return nil, err
	}
	return decodeSegment(res)
}

func (a *SegmentAPI) Delete(ctx context.Context, datasetID, documentID, segmentID string) (bool, error) {
	if err := checkPath(datasetID, documentID, segmentID); err != nil {
		return false, err
	}
	if _, err := a.c.Delete(ctx, segmentsPath(datasetID, documentID, segmentID), nil); err != nil {
		return false, err
	}
	return true, nil
}

func (a *SegmentAPI) Enable(ctx context.Context, datasetID, documentID, segmentID string) (bool, error) {
	return a.toggle(ctx, datasetID, documentID, segmentID, "enable")
}

func (a *SegmentAPI) Disable(ctx context.Context, datasetID, documentID, segmentID string) (bool, error) {
	return a.toggle(ctx, datasetID, documentID, segmentID, "disable")
}

func (a *SegmentAPI) toggle(ctx context.Context, datasetID, documentID, segmentID, action string) (bool, error) {
	if err := checkPath(datasetID, documentID, segmentID); err != nil {
		return false, err
	}
	if _, err := a.c.Patch(ctx, segmentsPath(datasetID, documentID, segmentID, action), nil); err != nil {
		return false, err
	}
	return true, nil
}

func (a *SegmentAPI) ListSubSegments(ctx context.Context, datasetID, documentID, segmentID string, q SubSegmentListQuery) (*SubSegmentList, error) {
	if err := checkPath(datasetID, documentID, segmentID); err != nil {
		return nil, err
	}
	params := url.Values{}
	if err := pagination(params, q.Page, q.Limit); err != nil {
		return nil, err
	}
	setString(params, "keyword", q.Keyword)
	setString(params, "status", q.Status)
	setBoolPtr(params, "enabled", q.Enabled)
	res, err := a.c.Get(ctx, segmentsPath(datasetID, documentID, segmentID, "sub-segments"), params)
	if err != nil {
		return nil, err
	}
	var out SubSegmentList
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *SegmentAPI) CreateSubSegment(ctx context.Context, datasetID, documentID, segmentID string, in SubSegmentCreate) (*SubSegment, error) {
	if err := checkPath(datasetID, documentID, segmentID); err != nil {
		return nil, err
	}
	if _, err := validate.NonEmptyString(in.Content, "content", 0); err != nil {
		return nil, err
	}
	res, err := a.c.Post(ctx, segmentsPath(datasetID, documentID, segmentID, "sub-segments"), &Request{JSON: in})
	if err != nil {
		return nil, err
	}
	return decodeSubSegment(res)
}

func (a *SegmentAPI) GetSubSegment(ctx context.Context, datasetID, documentID, segmentID, subSegmentID string) (*SubSegment, error) {
	if err := checkPath(datasetID, documentID, segmentID, subSegmentID); err != nil {
		return nil, err
	}
	res, err := a.c.Get(ctx, segmentsPath(datasetID, documentID, segmentID, "sub-segments", subSegmentID), nil)
	if err != nil {
		return nil, err
	}
	return decodeSubSegment(res)
}

func (a *SegmentAPI) UpdateSubSegment(ctx context.Context, datasetID, documentID, segmentID, subSegmentID string, in SubSegmentUpdate) (*SubSegment, error) {
	if err := checkPath(datasetID, documentID, segmentID, subSegmentID); err != nil {
		return nil, err
	}
	if in.Content != nil {
		if _, err := validate.NonEmptyString(*in.Content, "content", 0); err != nil {
			return nil, err
		}
	}
	res, err := a.c.Patch(ctx, segmentsPath(datasetID, documentID, segmentID, "sub-segments", subSegmentID), in)
	if err != nil {
		return nil, err
	}
	return decodeSubSegment(res)
}

func (a *SegmentAPI) DeleteSubSegment(ctx context.Context, datasetID, documentID, segmentID, subSegmentID string) (bool, error) {
	if err := checkPath(datasetID, documentID, segmentID, subSegmentID); err != nil {
		return false, err
	}
	if _, err := a.c.Delete(ctx, segmentsPath(datasetID, documentID, segmentID, "sub-segments", subSegmentID), nil); err != nil {
		return false, err
	}
	return true, nil
}

func (a *SegmentAPI) Statistics(ctx context.Context, datasetID, documentID string) (*SegmentStatistics, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	res, err := a.c.Get(ctx, segmentsPath(datasetID, documentID, "statistics"), nil)
	if err != nil {
		return nil, err
	}
	var out SegmentStatistics
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *SegmentAPI) BatchEnable(ctx context.Context, datasetID, documentID string, segmentIDs []string) (*SegmentBatchOperationResponse, error) {
	return a.Batch(ctx, datasetID, documentID, segmentIDs, "enable")
}

func (a *SegmentAPI) BatchDisable(ctx context.Context, datasetID, documentID string, segmentIDs []string) (*SegmentBatchOperationResponse, error) {
	return a.Batch(ctx, datasetID, documentID, segmentIDs, "disable")
}

func (a *SegmentAPI) BatchDelete(ctx context.Context, datasetID, documentID string, segmentIDs []string) (*SegmentBatchOperationResponse, error) {
	return a.Batch(ctx, datasetID, documentID, segmentIDs, "delete")
}

// Batch applies operation to every listed segment in one call. Every id is
// checked before anything is sent. The upstream reply is returned as is,
// with fields other than the tallies in Extra.
func (a *SegmentAPI) Batch(ctx context.Context, datasetID, documentID string, segmentIDs []string, operation string) (*SegmentBatchOperationResponse, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	if _, err := validate.BatchOperation(operation); err != nil {
		return nil, err
	}
	if len(segmentIDs) == 0 {
		return nil, errmodel.Validation("segment_ids", segmentIDs, "segment_ids cannot be empty")
	}
	for _, id := range segmentIDs {
		if _, err := validate.SegmentID(id); err != nil {
			return nil, err
		}
	}
	body := map[string]any{"segment_ids": segmentIDs, "operation": operation}
	res, err := a.c.Post(ctx, segmentsPath(datasetID, documentID, "batch"), &Request{JSON: body})
	if err != nil {
		return nil, err
	}
	var out SegmentBatchOperationResponse
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	if out.FailedSegments == nil {
		out.FailedSegments = []map[string]any{}
	}
	for k, v := range res {
		switch k {
		case "success_count", "failed_count", "failed_segments":
		default:
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra[k] = v
		}
	}
	return &out, nil
}

func (a *SegmentAPI) Reindex(ctx context.Context, datasetID, documentID, segmentID string) (bool, error) {
	if err := checkPath(datasetID, documentID, segmentID); err != nil {
		return false, err
	}
	if _, err := a.c.Post(ctx, segmentsPath(datasetID, documentID, segmentID, "reindex"), nil); err != nil {
		return false, err
	}
	return true, nil
}

// HitTesting reports how a single segment scores against query.
func (a *SegmentAPI) HitTesting(ctx context.Context, datasetID, documentID, segmentID, query string) (map[string]any, error) {
	if err := checkPath(datasetID, documentID, segmentID); err != nil {
		return nil, err
	}
	query, err := validate.NonEmptyString(query, "query", 1000)
	if err != nil {
		return nil, err
	}
	return a.c.Get(ctx, segmentsPath(datasetID, documentID, segmentID, "hit-testing"), url.Values{"query": {query}})
}

func decodeSegment(res map[string]any) (*Segment, error) {
	var out Segment
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeSubSegment(res map[string]any) (*SubSegment, error) {
	var out SubSegment
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
