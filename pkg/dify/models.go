package dify

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

// Shared shapes.

type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type RerankingModel struct {
	RerankingProviderName string `json:"reranking_provider_name"`
	RerankingModelName    string `json:"reranking_model_name"`
}

type RetrievalModel struct {
	SearchMethod          string          `json:"search_method,omitempty"`
	RerankingEnable       bool            `json:"reranking_enable"`
	RerankingMode         string          `json:"reranking_mode,omitempty"`
	RerankingModel        *RerankingModel `json:"reranking_model,omitempty"`
	Weights               any             `json:"weights,omitempty"`
	TopK                  *int            `json:"top_k,omitempty"`
	ScoreThresholdEnabled *bool           `json:"score_threshold_enabled,omitempty"`
	ScoreThreshold        *float64        `json:"score_threshold,omitempty"`
}

type ExternalKnowledgeInfo struct {
	ExternalKnowledgeID          string `json:"external_knowledge_id,omitempty"`
	ExternalKnowledgeAPIID       string `json:"external_knowledge_api_id,omitempty"`
	ExternalKnowledgeAPIName     string `json:"external_knowledge_api_name,omitempty"`
	ExternalKnowledgeAPIEndpoint string `json:"external_knowledge_api_endpoint,omitempty"`
}

type PreProcessingRule struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

type SegmentationRule struct {
	Separator    string `json:"separator,omitempty"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
	ChunkOverlap *int   `json:"chunk_overlap,omitempty"`
}

type ProcessingRules struct {
	PreProcessingRules   []PreProcessingRule `json:"pre_processing_rules,omitempty"`
	Segmentation         *SegmentationRule   `json:"segmentation,omitempty"`
	ParentMode           string              `json:"parent_mode,omitempty"`
	SubchunkSegmentation *SegmentationRule   `json:"subchunk_segmentation,omitempty"`
}

// ProcessRule tells the upstream how to clean and split a document.
type ProcessRule struct {
	Mode  string           `json:"mode"`
	Rules *ProcessingRules `json:"rules,omitempty"`
}

// AutomaticProcessRule lets the upstream pick cleaning and chunking settings.
func AutomaticProcessRule() *ProcessRule { return &ProcessRule{Mode: "automatic"} }

// Datasets.

type Dataset struct {
	ID                     string                 `json:"id"`
	Name                   string                 `json:"name"`
	Description            string                 `json:"description,omitempty"`
	Provider               string                 `json:"provider,omitempty"`
	Permission             string                 `json:"permission,omitempty"`
	DataSourceType         string                 `json:"data_source_type,omitempty"`
	IndexingTechnique      string                 `json:"indexing_technique,omitempty"`
	AppCount               int                    `json:"app_count"`
	DocumentCount          int                    `json:"document_count"`
	WordCount              int                    `json:"word_count"`
	CreatedBy              string                 `json:"created_by,omitempty"`
	CreatedAt              int64                  `json:"created_at,omitempty"`
	UpdatedBy              string                 `json:"updated_by,omitempty"`
	UpdatedAt              int64                  `json:"updated_at,omitempty"`
	EmbeddingModel         string                 `json:"embedding_model,omitempty"`
	EmbeddingModelProvider string                 `json:"embedding_model_provider,omitempty"`
	EmbeddingAvailable     *bool                  `json:"embedding_available,omitempty"`
	RetrievalModelDict     *RetrievalModel        `json:"retrieval_model_dict,omitempty"`
	Tags                   []Tag                  `json:"tags"`
	DocForm                string                 `json:"doc_form,omitempty"`
	ExternalKnowledgeInfo  *ExternalKnowledgeInfo `json:"external_knowledge_info,omitempty"`
	ExternalRetrievalModel *RetrievalModel        `json:"external_retrieval_model,omitempty"`
	PartialMemberList      []string               `json:"partial_member_list,omitempty"`
}

type DatasetList struct {
	Data    []Dataset `json:"data"`
	HasMore bool      `json:"has_more"`
	Limit   int       `json:"limit"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
}

type DatasetCreate struct {
	Name                   string          `json:"name"`
	Description            string          `json:"description,omitempty"`
	IndexingTechnique      string          `json:"indexing_technique,omitempty"`
	Permission             string          `json:"permission,omitempty"`
	Provider               string          `json:"provider,omitempty"`
	ExternalKnowledgeAPIID string          `json:"external_knowledge_api_id,omitempty"`
	ExternalKnowledgeID    string          `json:"external_knowledge_id,omitempty"`
	EmbeddingModel         string          `json:"embedding_model,omitempty"`
	EmbeddingModelProvider string          `json:"embedding_model_provider,omitempty"`
	RetrievalModel         *RetrievalModel `json:"retrieval_model,omitempty"`
}

type DatasetUpdate struct {
	Name                   *string         `json:"name,omitempty"`
	Description            *string         `json:"description,omitempty"`
	IndexingTechnique      string          `json:"indexing_technique,omitempty"`
	Permission             string          `json:"permission,omitempty"`
	EmbeddingModelProvider string          `json:"embedding_model_provider,omitempty"`
	EmbeddingModel         string          `json:"embedding_model,omitempty"`
	RetrievalModel         *RetrievalModel `json:"retrieval_model,omitempty"`
	PartialMemberList      []string        `json:"partial_member_list,omitempty"`
}

// DatasetListQuery fields left at their zero value are not sent.
type DatasetListQuery struct {
	Keyword    string
	TagIDs     []string
	Page       int
	Limit      int
	IncludeAll bool
}

type DatasetTag struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color,omitempty"`
	Description  string `json:"description,omitempty"`
	CreatedBy    string `json:"created_by,omitempty"`
	CreatedAt    int64  `json:"created_at,omitempty"`
	UpdatedAt    int64  `json:"updated_at,omitempty"`
	DatasetCount int    `json:"dataset_count"`
}

type DatasetTagCreate struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

type DatasetTagUpdate struct {
	Name        *string `json:"name,omitempty"`
	Color       *string `json:"color,omitempty"`
	Description *string `json:"description,omitempty"`
}

type EmbeddingModelInfo struct {
	Provider   string         `json:"provider"`
	Model      string         `json:"model"`
	ModelType  string         `json:"model_type,omitempty"`
	MaxTokens  *int           `json:"max_tokens,omitempty"`
	Dimensions *int           `json:"dimensions,omitempty"`
	Price      map[string]any `json:"price,omitempty"`
	Available  bool           `json:"available"`
}

type EmbeddingModelList struct {
	Data  []EmbeddingModelInfo `json:"data"`
	Total int                  `json:"total"`
}

// Documents.

type DataSourceInfo struct {
	UploadFileID string `json:"upload_file_id,omitempty"`
}

type Document struct {
	ID                   string          `json:"id"`
	Position             int             `json:"position"`
	DataSourceType       string          `json:"data_source_type,omitempty"`
	DataSourceInfo       *DataSourceInfo `json:"data_source_info,omitempty"`
	DatasetProcessRuleID string          `json:"dataset_process_rule_id,omitempty"`
	Name                 string          `json:"name"`
	CreatedFrom          string          `json:"created_from,omitempty"`
	CreatedBy            string          `json:"created_by,omitempty"`
	CreatedAt            int64           `json:"created_at,omitempty"`
	Tokens               int             `json:"tokens"`
	IndexingStatus       string          `json:"indexing_status,omitempty"`
	Error                string          `json:"error,omitempty"`
	Enabled              bool            `json:"enabled"`
	DisabledAt           *int64          `json:"disabled_at,omitempty"`
	DisabledBy           string          `json:"disabled_by,omitempty"`
	Archived             bool            `json:"archived"`
	DisplayStatus        string          `json:"display_status,omitempty"`
	WordCount            int             `json:"word_count"`
	HitCount             int             `json:"hit_count"`
	DocForm              string          `json:"doc_form,omitempty"`
}

type DocumentList struct {
	Data    []Document `json:"data"`
	HasMore bool       `json:"has_more"`
	Limit   int        `json:"limit"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
}

// DocumentListQuery fields left at their zero value are not sent.
type DocumentListQuery struct {
	Keyword string
	Status  string
	Page    int
	Limit   int
}

type DocumentCreateByText struct {
	Name                   string          `json:"name"`
	Text                   string          `json:"text"`
	IndexingTechnique      string          `json:"indexing_technique,omitempty"`
	DocForm                string          `json:"doc_form,omitempty"`
	DocLanguage            string          `json:"doc_language,omitempty"`
	ProcessRule            *ProcessRule    `json:"process_rule,omitempty"`
	RetrievalModel         *RetrievalModel `json:"retrieval_model,omitempty"`
	EmbeddingModel         string          `json:"embedding_model,omitempty"`
	EmbeddingModelProvider string          `json:"embedding_model_provider,omitempty"`
}

type DocumentCreateByFile struct {
	OriginalDocumentID     string          `json:"original_document_id,omitempty"`
	IndexingTechnique      string          `json:"indexing_technique,omitempty"`
	DocForm                string          `json:"doc_form,omitempty"`
	DocLanguage            string          `json:"doc_language,omitempty"`
	ProcessRule            *ProcessRule    `json:"process_rule,omitempty"`
	RetrievalModel         *RetrievalModel `json:"retrieval_model,omitempty"`
	EmbeddingModel         string          `json:"embedding_model,omitempty"`
	EmbeddingModelProvider string          `json:"embedding_model_provider,omitempty"`
}

type DocumentUpdateByText struct {
	Name        *string      `json:"name,omitempty"`
	Text        *string      `json:"text,omitempty"`
	ProcessRule *ProcessRule `json:"process_rule,omitempty"`
}

type DocumentUpdateByFile struct {
	Name        *string      `json:"name,omitempty"`
	ProcessRule *ProcessRule `json:"process_rule,omitempty"`
}

type DocumentCreateResponse struct {
	Document Document `json:"document"`
	Batch    string   `json:"batch"`
}

type DocumentStatus struct {
	ID                   string `json:"id"`
	IndexingStatus       string `json:"indexing_status"`
	ProcessingStartedAt  *int64 `json:"processing_started_at,omitempty"`
	ParsingCompletedAt   *int64 `json:"parsing_completed_at,omitempty"`
	CleaningCompletedAt  *int64 `json:"cleaning_completed_at,omitempty"`
	SplittingCompletedAt *int64 `json:"splitting_completed_at,omitempty"`
	CompletedAt          *int64 `json:"completed_at,omitempty"`
	PausedAt             *int64 `json:"paused_at,omitempty"`
	Error                string `json:"error,omitempty"`
	StoppedAt            *int64 `json:"stopped_at,omitempty"`
	CompletedSegments    int    `json:"completed_segments"`
	TotalSegments        int    `json:"total_segments"`
}

type DocumentMetadata struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type DocumentMetadataCreate struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type DocumentMetadataUpdate struct {
	Value       *string `json:"value,omitempty"`
	Description *string `json:"description,omitempty"`
}

type DocumentMetadataList struct {
	Data  []DocumentMetadata `json:"data"`
	Total int                `json:"total"`
}

// Segments.

type Segment struct {
	ID            string   `json:"id"`
	Position      int      `json:"position"`
	DocumentID    string   `json:"document_id"`
	Content       string   `json:"content"`
	Answer        string   `json:"answer,omitempty"`
	WordCount     int      `json:"word_count"`
	Tokens        int      `json:"tokens"`
	Keywords      []string `json:"keywords"`
	IndexNodeID   string   `json:"index_node_id,omitempty"`
	IndexNodeHash string   `json:"index_node_hash,omitempty"`
	HitCount      int      `json:"hit_count"`
	Enabled       bool     `json:"enabled"`
	DisabledAt    *int64   `json:"disabled_at,omitempty"`
	DisabledBy    string   `json:"disabled_by,omitempty"`
	Status        string   `json:"status,omitempty"`
	CreatedBy     string   `json:"created_by,omitempty"`
	CreatedAt     int64    `json:"created_at,omitempty"`
	IndexingAt    *int64   `json:"indexing_at,omitempty"`
	CompletedAt   *int64   `json:"completed_at,omitempty"`
	Error         string   `json:"error,omitempty"`
	StoppedAt     *int64   `json:"stopped_at,omitempty"`
}

type SegmentList struct {
	Data    []Segment `json:"data"`
	HasMore bool      `json:"has_more"`
	Limit   int       `json:"limit"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
}

type SegmentCreate struct {
	Content  string   `json:"content"`
	Answer   string   `json:"answer,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

type SegmentUpdate struct {
	Content  *string  `json:"content,omitempty"`
	Answer   *string  `json:"answer,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Enabled  *bool    `json:"enabled,omitempty"`
}

// SegmentListQuery fields left at their zero value (nil for Enabled) are not sent.
type SegmentListQuery struct {
	Keyword      string
	Status       string
	HitCountGte  *int
	HitCountLte  *int
	WordCountGte *int
	WordCountLte *int
	Enabled      *bool
	Page         int
	Limit        int
}

type SubSegment struct {
	ID              string   `json:"id"`
	ParentSegmentID string   `json:"parent_segment_id"`
	Position        int      `json:"position"`
	Content         string   `json:"content"`
	WordCount       int      `json:"word_count"`
	Tokens          int      `json:"tokens"`
	Keywords        []string `json:"keywords"`
	IndexNodeID     string   `json:"index_node_id,omitempty"`
	IndexNodeHash   string   `json:"index_node_hash,omitempty"`
	HitCount        int      `json:"hit_count"`
	Enabled         bool     `json:"enabled"`
	DisabledAt      *int64   `json:"disabled_at,omitempty"`
	DisabledBy      string   `json:"disabled_by,omitempty"`
	Status          string   `json:"status,omitempty"`
	CreatedBy       string   `json:"created_by,omitempty"`
	CreatedAt       int64    `json:"created_at,omitempty"`
	IndexingAt      *int64   `json:"indexing_at,omitempty"`
	CompletedAt     *int64   `json:"completed_at,omitempty"`
	Error           string   `json:"error,omitempty"`
	StoppedAt       *int64   `json:"stopped_at,omitempty"`
}

type SubSegmentList struct {
	Data    []SubSegment `json:"data"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
}

type SubSegmentCreate struct {
	Content  string   `json:"content"`
	Keywords []string `json:"keywords,omitempty"`
}

type SubSegmentUpdate struct {
	Content  *string  `json:"content,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Enabled  *bool    `json:"enabled,omitempty"`
}

// SubSegmentListQuery fields left at their zero value are not sent.
type SubSegmentListQuery struct {
	Keyword string
	Status  string
	Enabled *bool
	Page    int
	Limit   int
}

type SegmentStatistics struct {
	TotalSegments    int     `json:"total_segments"`
	EnabledSegments  int     `json:"enabled_segments"`
	DisabledSegments int     `json:"disabled_segments"`
	TotalWordCount   int     `json:"total_word_count"`
	TotalTokens      int     `json:"total_tokens"`
	AverageWordCount float64 `json:"average_word_count"`
	AverageTokens    float64 `json:"average_tokens"`
	TotalHitCount    int     `json:"total_hit_count"`
}

// SegmentBatchOperationResponse is reported by the upstream and returned
// unchanged. Fields beyond the tallies are kept in Extra and marshalled
// back at the top level.
type SegmentBatchOperationResponse struct {
	SuccessCount   int              `json:"success_count"`
	FailedCount    int              `json:"failed_count"`
	FailedSegments []map[string]any `json:"failed_segments"`
	Extra          map[string]any   `json:"-"`
}

func (r SegmentBatchOperationResponse) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["success_count"] = r.SuccessCount
	out["failed_count"] = r.FailedCount
	out["failed_segments"] = r.FailedSegments
	return json.Marshal(out)
}

// Search.

type SearchResult struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Score        float64        `json:"score"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	DocumentID   string         `json:"document_id"`
	DocumentName string         `json:"document_name"`
	SegmentID    string         `json:"segment_id,omitempty"`
}

type SearchResponse struct {
	Data         []SearchResult `json:"data"`
	Total        int            `json:"total"`
	Query        string         `json:"query"`
	SearchMethod string         `json:"search_method"`
}

// decode maps a parsed response onto a typed record using the json field names.
func decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errmodel.API(0, "Unexpected error: "+err.Error(), nil)
	}
	if err := dec.Decode(in); err != nil {
		return errmodel.API(0, "Unexpected response shape: "+err.Error(), in)
	}
	return nil
}
