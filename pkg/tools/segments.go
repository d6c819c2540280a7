package tools

import (
	"context"
	"fmt"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
)

type segmentRef struct {
	DatasetID  string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID string `json:"document_id" jsonschema:"ID of the document (UUID)"`
	SegmentID  string `json:"segment_id" jsonschema:"ID of the segment (UUID)"`
}

type subSegmentRef struct {
	DatasetID    string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID   string `json:"document_id" jsonschema:"ID of the document (UUID)"`
	SegmentID    string `json:"segment_id" jsonschema:"ID of the parent segment (UUID)"`
	SubSegmentID string `json:"sub_segment_id" jsonschema:"ID of the sub-segment (UUID)"`
}

type createSegmentArgs struct {
	DatasetID  string   `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID string   `json:"document_id" jsonschema:"ID of the document (UUID)"`
	Content    string   `json:"content" jsonschema:"segment text"`
	Answer     string   `json:"answer,omitempty" jsonschema:"answer text for Q&A documents"`
	Keywords   []string `json:"keywords,omitempty"`
}

type updateSegmentArgs struct {
	DatasetID  string   `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID string   `json:"document_id" jsonschema:"ID of the document (UUID)"`
	SegmentID  string   `json:"segment_id" jsonschema:"ID of the segment (UUID)"`
	Content    *string  `json:"content,omitempty"`
	Answer     *string  `json:"answer,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

type listSegmentsArgs struct {
	DatasetID    string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID   string `json:"document_id" jsonschema:"ID of the document (UUID)"`
	Keyword      string `json:"keyword,omitempty"`
	Status       string `json:"status,omitempty"`
	HitCountGte  *int   `json:"hit_count_gte,omitempty"`
	HitCountLte  *int   `json:"hit_count_lte,omitempty"`
	WordCountGte *int   `json:"word_count_gte,omitempty"`
	WordCountLte *int   `json:"word_count_lte,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
	Page         int    `json:"page,omitempty" jsonschema:"page number, default 1"`
	Limit        int    `json:"limit,omitempty" jsonschema:"page size, default 20"`
}

type batchSegmentsArgs struct {
	DatasetID  string   `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID string   `json:"document_id" jsonschema:"ID of the document (UUID)"`
	SegmentIDs []string `json:"segment_ids" jsonschema:"segments to operate on"`
	Operation  string   `json:"operation" jsonschema:"enable, disable or delete"`
}

type listSubSegmentsArgs struct {
	DatasetID  string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID string `json:"document_id" jsonschema:"ID of the document (UUID)"`
	SegmentID  string `json:"segment_id" jsonschema:"ID of the parent segment (UUID)"`
	Keyword    string `json:"keyword,omitempty"`
	Status     string `json:"status,omitempty"`
	Enabled    *bool  `json:"enabled,omitempty"`
	Page       int    `json:"page,omitempty" jsonschema:"page number, default 1"`
	Limit      int    `json:"limit,omitempty" jsonschema:"page size, default 20"`
}

type createSubSegmentArgs struct {
	DatasetID  string   `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID string   `json:"document_id" jsonschema:"ID of the document (UUID)"`
	SegmentID  string   `json:"segment_id" jsonschema:"ID of the parent segment (UUID)"`
	Content    string   `json:"content" jsonschema:"sub-segment text"`
	Keywords   []string `json:"keywords,omitempty"`
}

type updateSubSegmentArgs struct {
	DatasetID    string   `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID   string   `json:"document_id" jsonschema:"ID of the document (UUID)"`
	SegmentID    string   `json:"segment_id" jsonschema:"ID of the parent segment (UUID)"`
	SubSegmentID string   `json:"sub_segment_id" jsonschema:"ID of the sub-segment (UUID)"`
	Content      *string  `json:"content,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Enabled      *bool    `json:"enabled,omitempty"`
}

func segmentTools(svc *dify.Service) []Tool {
	segs := svc.Segments
	return []Tool{
		newTool("create_segment", "Add a segment (chunk) to a document.", writes,
			func(ctx context.Context, a createSegmentArgs) (Result, error) {
				s, err := segs.Create(ctx, a.DatasetID, a.DocumentID, dify.SegmentCreate{
					Content:  a.Content,
					Answer:   a.Answer,
					Keywords: a.Keywords,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: s, Message: "Segment created"}, nil
			}),
		newTool("list_segments", "List the segments of a document with optional filters.", reads,
			func(ctx context.Context, a listSegmentsArgs) (Result, error) {
				out, err := segs.List(ctx, a.DatasetID, a.DocumentID, dify.SegmentListQuery{
					Keyword:      a.Keyword,
					Status:       a.Status,
					HitCountGte:  a.HitCountGte,
					HitCountLte:  a.HitCountLte,
					WordCountGte: a.WordCountGte,
					WordCountLte: a.WordCountLte,
					Enabled:      a.Enabled,
					Page:         orDefault(a.Page, 1),
					Limit:        orDefault(a.Limit, 20),
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: fmt.Sprintf("Found %d segments", len(out.Data))}, nil
			}),
		newTool("get_segment", "Get one segment's details.", reads,
			func(ctx context.Context, a segmentRef) (Result, error) {
				s, err := segs.Get(ctx, a.DatasetID, a.DocumentID, a.SegmentID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: s, Message: "Retrieved segment"}, nil
			}),
		newTool("update_segment", "Edit a segment's content, answer, keywords or enabled flag.", idempotent,
			func(ctx context.Context, a updateSegmentArgs) (Result, error) {
				s, err := segs.Update(ctx, a.DatasetID, a.DocumentID, a.SegmentID, dify.SegmentUpdate{
					Content:  a.Content,
					Answer:   a.Answer,
					Keywords: a.Keywords,
					Enabled:  a.Enabled,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: s, Message: "Segment updated"}, nil
			}),
		newTool("delete_segment", "Delete a segment.", idempotent,
			func(ctx context.Context, a segmentRef) (Result, error) {
				ok, err := segs.Delete(ctx, a.DatasetID, a.DocumentID, a.SegmentID)
				return done(ok, err, "deleted", "Segment deleted")
			}),
		newTool("enable_segment", "Include a segment in retrieval.", idempotent,
			func(ctx context.Context, a segmentRef) (Result, error) {
				ok, err := segs.Enable(ctx, a.DatasetID, a.DocumentID, a.SegmentID)
				return done(ok, err, "enabled", "Segment enabled")
			}),
		newTool("disable_segment", "Exclude a segment from retrieval.", idempotent,
			func(ctx context.Context, a segmentRef) (Result, error) {
				ok, err := segs.Disable(ctx, a.DatasetID, a.DocumentID, a.SegmentID)
				return done(ok, err, "disabled", "Segment disabled")
			}),
		newTool("batch_segments", "Enable, disable or delete many segments of a document at once.", writes,
			func(ctx context.Context, a batchSegmentsArgs) (Result, error) {
				out, err := segs.Batch(ctx, a.DatasetID, a.DocumentID, a.SegmentIDs, a.Operation)
				if err != nil {
					return Result{}, err
				}
				msg := fmt.Sprintf("Batch %s: %d succeeded, %d failed", a.Operation, out.SuccessCount, out.FailedCount)
				return Result{Data: out, Message: msg}, nil
			}),
		newTool("get_segment_statistics", "Summarise segment counts, words, tokens and hits for a document.", reads,
			func(ctx context.Context, a documentRef) (Result, error) {
				st, err := segs.Statistics(ctx, a.DatasetID, a.DocumentID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: st, Message: fmt.Sprintf("Document has %d segments", st.TotalSegments)}, nil
			}),
		newTool("reindex_segment", "Rebuild the index entry of one segment.", idempotent,
			func(ctx context.Context, a segmentRef) (Result, error) {
				ok, err := segs.Reindex(ctx, a.DatasetID, a.DocumentID, a.SegmentID)
				return done(ok, err, "reindexed", "Segment reindexing started")
			}),
		newTool("list_sub_segments", "List the child chunks of a segment.", reads,
			func(ctx context.Context, a listSubSegmentsArgs) (Result, error) {
				out, err := segs.ListSubSegments(ctx, a.DatasetID, a.DocumentID, a.SegmentID, dify.SubSegmentListQuery{
					Keyword: a.Keyword,
					Status:  a.Status,
					Enabled: a.Enabled,
					Page:    orDefault(a.Page, 1),
					Limit:   orDefault(a.Limit, 20),
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: fmt.Sprintf("Found %d sub-segments", len(out.Data))}, nil
			}),
		newTool("create_sub_segment", "Add a child chunk to a segment.", writes,
			func(ctx context.Context, a createSubSegmentArgs) (Result, error) {
				s, err := segs.CreateSubSegment(ctx, a.DatasetID, a.DocumentID, a.SegmentID, dify.SubSegmentCreate{
					Content:  a.Content,
					Keywords: a.Keywords,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: s, Message: "Sub-segment created"}, nil
			}),
		newTool("update_sub_segment", "Edit a child chunk.", idempotent,
			func(ctx context.Context, a updateSubSegmentArgs) (Result, error) {
				s, err := segs.UpdateSubSegment(ctx, a.DatasetID, a.DocumentID, a.SegmentID, a.SubSegmentID, dify.SubSegmentUpdate{
					Content:  a.Content,
					Keywords: a.Keywords,
					Enabled:  a.Enabled,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: s, Message: "Sub-segment updated"}, nil
			}),
		newTool("delete_sub_segment", "Delete a child chunk.", idempotent,
			func(ctx context.Context, a subSegmentRef) (Result, error) {
				ok, err := segs.DeleteSubSegment(ctx, a.DatasetID, a.DocumentID, a.SegmentID, a.SubSegmentID)
				return done(ok, err, "deleted", "Sub-segment deleted")
			}),
	}
}
