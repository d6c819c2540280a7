package dify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

const otherSegID = "c4d5e6f7-a8b9-4c0d-9e1f-2a3b4c5d6e7f"

func segPath(tail string) string {
	p := docsPath("segments")
	if tail != "" {
		p += "/" + tail
	}
	return p
}

func segmentBody() map[string]any {
	return map[string]any{"id": segmentID, "document_id": documentID, "content": "chunk", "keywords": []any{"a"}, "enabled": true}
}

func TestListSegmentsQuery(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodGet, segPath(""), 200, map[string]any{"data": []any{segmentBody()}, "total": 1})

	out, err := svc.Segments.List(context.Background(), datasetID, documentID, dify.SegmentListQuery{
		Keyword:     "k",
		HitCountGte: ptr(0),
		Enabled:     ptr(false),
		Page:        2,
	})
	require.NoError(t, err)
	require.Len(t, out.Data, 1)
	assert.Equal(t, []string{"a"}, out.Data[0].Keywords)

	q := srv.Last().Query
	assert.Equal(t, map[string][]string{
		"keyword":       {"k"},
		"hit_count_gte": {"0"},
		"enabled":       {"false"},
		"page":          {"2"},
	}, map[string][]string(q))
}

func TestSegmentCRUD(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	srv.Handle(http.MethodPost, segPath(""), 200, segmentBody())
	srv.Handle(http.MethodGet, segPath(segmentID), 200, segmentBody())
	srv.Handle(http.MethodPatch, segPath(segmentID), 200, segmentBody())
	srv.Handle(http.MethodDelete, segPath(segmentID), 204, nil)
	srv.Handle(http.MethodPatch, segPath(segmentID+"/enable"), 200, map[string]any{})
	srv.Handle(http.MethodPatch, segPath(segmentID+"/disable"), 200, map[string]any{})
	srv.Handle(http.MethodPost, segPath(segmentID+"/reindex"), 200, map[string]any{})

	_, err := svc.Segments.Create(ctx, datasetID, documentID, dify.SegmentCreate{Content: " "})
	requireKind(t, err, errmodel.KindValidation)

	seg, err := svc.Segments.Create(ctx, datasetID, documentID, dify.SegmentCreate{Content: "chunk", Keywords: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, segmentID, seg.ID)
	assert.Equal(t, map[string]any{"content": "chunk", "keywords": []any{"a"}}, srv.Last().Body)

	_, err = svc.Segments.Get(ctx, datasetID, documentID, segmentID)
	require.NoError(t, err)

	_, err = svc.Segments.Update(ctx, datasetID, documentID, segmentID, dify.SegmentUpdate{Answer: ptr("yes")})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "yes"}, srv.Last().Body)

	for _, fn := range []func(context.Context, string, string, string) (bool, error){
		svc.Segments.Enable, svc.Segments.Disable, svc.Segments.Reindex, svc.Segments.Delete,
	} {
		ok, err := fn(ctx, datasetID, documentID, segmentID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestBatchEnablePassesThroughPartialFailure(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodPost, segPath("batch"), 200, map[string]any{
		"success_count":   1,
		"failed_count":    1,
		"failed_segments": []any{map[string]any{"id": otherSegID, "error": "locked"}},
	})

	out, err := svc.Segments.BatchEnable(context.Background(), datasetID, documentID, []string{segmentID, otherSegID})
	require.NoError(t, err)
	assert.Equal(t, 1, out.SuccessCount)
	assert.Equal(t, 1, out.FailedCount)
	require.Len(t, out.FailedSegments, 1)
	assert.Equal(t, otherSegID, out.FailedSegments[0]["id"])

	require.Equal(t, 1, srv.Count())
	assert.Equal(t, map[string]any{"segment_ids": []any{segmentID, otherSegID}, "operation": "enable"}, srv.Last().Body)
}

func TestBatchKeepsUnlistedFields(t *testing.T) {
	svc, srv := newService(t)
	srv.Handle(http.MethodPost, segPath("batch"), 200, map[string]any{
		"result":          "success",
		"success_count":   2,
		"failed_count":    0,
		"failed_segments": []any{},
		"batch_id":        "b-17",
	})

	out, err := svc.Segments.BatchDelete(context.Background(), datasetID, documentID, []string{segmentID, otherSegID})
	require.NoError(t, err)
	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, map[string]any{"result": "success", "batch_id": "b-17"}, out.Extra)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"success","batch_id":"b-17","success_count":2,"failed_count":0,"failed_segments":[]}`, string(raw))
}

func TestBatchValidation(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()

	_, err := svc.Segments.BatchDelete(ctx, datasetID, documentID, nil)
	requireKind(t, err, errmodel.KindValidation)
	_, err = svc.Segments.BatchDisable(ctx, datasetID, documentID, []string{segmentID, "b"})
	requireKind(t, err, errmodel.KindValidation)
	_, err = svc.Segments.Batch(ctx, datasetID, documentID, []string{segmentID}, "archive")
	requireKind(t, err, errmodel.KindValidation)

	assert.Equal(t, 0, srv.Count())
}

func TestSubSegments(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	sub := map[string]any{"id": subSegID, "parent_segment_id": segmentID, "content": "child"}
	base := segmentID + "/sub-segments"
	srv.Handle(http.MethodGet, segPath(base), 200, map[string]any{"data": []any{sub}, "total": 1})
	srv.Handle(http.MethodPost, segPath(base), 200, sub)
	srv.Handle(http.MethodGet, segPath(base+"/"+subSegID), 200, sub)
	srv.Handle(http.MethodPatch, segPath(base+"/"+subSegID), 200, sub)
	srv.Handle(http.MethodDelete, segPath(base+"/"+subSegID), 204, nil)

	list, err := svc.Segments.ListSubSegments(ctx, datasetID, documentID, segmentID, dify.SubSegmentListQuery{Limit: 5})
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, segmentID, list.Data[0].ParentSegmentID)
	assert.Equal(t, "5", srv.Last().Query.Get("limit"))

	created, err := svc.Segments.CreateSubSegment(ctx, datasetID, documentID, segmentID, dify.SubSegmentCreate{Content: "child"})
	require.NoError(t, err)
	assert.Equal(t, subSegID, created.ID)

	_, err = svc.Segments.GetSubSegment(ctx, datasetID, documentID, segmentID, subSegID)
	require.NoError(t, err)

	_, err = svc.Segments.UpdateSubSegment(ctx, datasetID, documentID, segmentID, subSegID, dify.SubSegmentUpdate{Content: ptr("")})
	requireKind(t, err, errmodel.KindValidation)
	_, err = svc.Segments.UpdateSubSegment(ctx, datasetID, documentID, segmentID, subSegID, dify.SubSegmentUpdate{Enabled: ptr(true)})
	require.NoError(t, err)

	ok, err := svc.Segments.DeleteSubSegment(ctx, datasetID, documentID, segmentID, subSegID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSegmentStatisticsAndHitTesting(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()
	srv.Handle(http.MethodGet, segPath("statistics"), 200, map[string]any{"total_segments": 4, "enabled_segments": 3, "average_tokens": 12.5})
	srv.Handle(http.MethodGet, segPath(segmentID+"/hit-testing"), 200, map[string]any{"score": 0.8})

	st, err := svc.Segments.Statistics(ctx, datasetID, documentID)
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalSegments)
	assert.InDelta(t, 12.5, st.AverageTokens, 1e-9)

	res, err := svc.Segments.HitTesting(ctx, datasetID, documentID, segmentID, "what")
	require.NoError(t, err)
	assert.Equal(t, 0.8, res["score"])
	assert.Equal(t, "what", srv.Last().Query.Get("query"))
}
