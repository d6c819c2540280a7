package tools

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

type documentRef struct {
	DatasetID  string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID string `json:"document_id" jsonschema:"ID of the document (UUID)"`
}

type metadataRef struct {
	DatasetID  string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID string `json:"document_id" jsonschema:"ID of the document (UUID)"`
	MetadataID string `json:"metadata_id" jsonschema:"ID of the metadata entry (UUID)"`
}

type createDocumentArgs struct {
	DatasetID         string            `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	Name              string            `json:"name" jsonschema:"document name"`
	Text              string            `json:"text" jsonschema:"document content"`
	IndexingTechnique string            `json:"indexing_technique,omitempty" jsonschema:"high_quality (default) or economy"`
	DocForm           string            `json:"doc_form,omitempty" jsonschema:"text_model, hierarchical_model or qa_model"`
	DocLanguage       string            `json:"doc_language,omitempty"`
	ProcessRule       *dify.ProcessRule `json:"process_rule,omitempty" jsonschema:"cleaning and chunking rules, automatic by default"`
}

type createDocumentFromFileArgs struct {
	DatasetID         string            `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	FilePath          string            `json:"file_path,omitempty" jsonschema:"path of a local file to upload"`
	FileContent       string            `json:"file_content,omitempty" jsonschema:"base64 encoded file content, used instead of file_path"`
	Filename          string            `json:"filename,omitempty" jsonschema:"file name, required with file_content"`
	IndexingTechnique string            `json:"indexing_technique,omitempty" jsonschema:"high_quality (default) or economy"`
	DocForm           string            `json:"doc_form,omitempty"`
	DocLanguage       string            `json:"doc_language,omitempty"`
	ProcessRule       *dify.ProcessRule `json:"process_rule,omitempty"`
}

type updateDocumentArgs struct {
	DatasetID   string            `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID  string            `json:"document_id" jsonschema:"ID of the document (UUID)"`
	Name        *string           `json:"name,omitempty"`
	Text        *string           `json:"text,omitempty"`
	ProcessRule *dify.ProcessRule `json:"process_rule,omitempty"`
}

type listDocumentsArgs struct {
	DatasetID string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	Keyword   string `json:"keyword,omitempty"`
	Status    string `json:"status,omitempty" jsonschema:"filter by indexing status"`
	Page      int    `json:"page,omitempty" jsonschema:"page number, default 1"`
	Limit     int    `json:"limit,omitempty" jsonschema:"page size, default 20"`
}

type createMetadataArgs struct {
	DatasetID   string `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID  string `json:"document_id" jsonschema:"ID of the document (UUID)"`
	Key         string `json:"key"`
	Value       string `json:"value"`
	Type        string `json:"type,omitempty" jsonschema:"value type, string by default"`
	Description string `json:"description,omitempty"`
}

type updateMetadataArgs struct {
	DatasetID   string  `json:"dataset_id" jsonschema:"ID of the dataset (UUID)"`
	DocumentID  string  `json:"document_id" jsonschema:"ID of the document (UUID)"`
	MetadataID  string  `json:"metadata_id" jsonschema:"ID of the metadata entry (UUID)"`
	Value       *string `json:"value,omitempty"`
	Description *string `json:"description,omitempty"`
}

func documentTools(svc *dify.Service) []Tool {
	docs := svc.Documents
	return []Tool{
		newTool("create_document", "Create a document in a dataset from plain text.", writes,
			func(ctx context.Context, a createDocumentArgs) (Result, error) {
				rule := a.ProcessRule
				if rule == nil {
					rule = dify.AutomaticProcessRule()
				}
				out, err := docs.CreateByText(ctx, a.DatasetID, dify.DocumentCreateByText{
					Name:              a.Name,
					Text:              a.Text,
					IndexingTechnique: orDefault(a.IndexingTechnique, "high_quality"),
					DocForm:           a.DocForm,
					DocLanguage:       a.DocLanguage,
					ProcessRule:       rule,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: fmt.Sprintf("Document '%s' created", out.Document.Name)}, nil
			}),
		newTool("create_document_from_file", "Upload a file as a new document. Pass file_path, or file_content (base64) with filename.", writes,
			func(ctx context.Context, a createDocumentFromFileArgs) (Result, error) {
				file := dify.FileInput{Path: a.FilePath, Filename: a.Filename}
				if a.FileContent != "" {
					raw, err := base64.StdEncoding.DecodeString(a.FileContent)
					if err != nil {
						return Result{}, errmodel.Validation("file_content", nil, "file_content must be base64 encoded")
					}
					file.Content = raw
				}
				rule := a.ProcessRule
				if rule == nil {
					rule = dify.AutomaticProcessRule()
				}
				out, err := docs.CreateByFile(ctx, a.DatasetID, file, dify.DocumentCreateByFile{
					IndexingTechnique: orDefault(a.IndexingTechnique, "high_quality"),
					DocForm:           a.DocForm,
					DocLanguage:       a.DocLanguage,
					ProcessRule:       rule,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: fmt.Sprintf("Document '%s' uploaded", out.Document.Name)}, nil
			}),
		newTool("update_document", "Replace a document's name, text or processing rule.", idempotent,
			func(ctx context.Context, a updateDocumentArgs) (Result, error) {
				out, err := docs.UpdateByText(ctx, a.DatasetID, a.DocumentID, dify.DocumentUpdateByText{
					Name:        a.Name,
					Text:        a.Text,
					ProcessRule: a.ProcessRule,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: fmt.Sprintf("Document '%s' updated", out.Document.Name)}, nil
			}),
		newTool("list_documents", "List the documents of a dataset.", reads,
			func(ctx context.Context, a listDocumentsArgs) (Result, error) {
				out, err := docs.List(ctx, a.DatasetID, dify.DocumentListQuery{
					Keyword: a.Keyword,
					Status:  a.Status,
					Page:    orDefault(a.Page, 1),
					Limit:   orDefault(a.Limit, 20),
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: fmt.Sprintf("Found %d documents", len(out.Data))}, nil
			}),
		newTool("get_document", "Get one document's details.", reads,
			func(ctx context.Context, a documentRef) (Result, error) {
				d, err := docs.Get(ctx, a.DatasetID, a.DocumentID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: d, Message: fmt.Sprintf("Retrieved document '%s'", d.Name)}, nil
			}),
		newTool("delete_document", "Delete a document and its segments.", idempotent,
			func(ctx context.Context, a documentRef) (Result, error) {
				ok, err := docs.Delete(ctx, a.DatasetID, a.DocumentID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: map[string]any{"deleted": ok}, Message: "Document deleted"}, nil
			}),
		newTool("get_document_indexing_status", "Get the indexing progress of a document.", reads,
			func(ctx context.Context, a documentRef) (Result, error) {
				st, err := docs.IndexingStatus(ctx, a.DatasetID, a.DocumentID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: st, Message: fmt.Sprintf("Document indexing status is %s", st.IndexingStatus)}, nil
			}),
		newTool("enable_document", "Enable a document for retrieval.", idempotent,
			func(ctx context.Context, a documentRef) (Result, error) {
				return toggleDocument(ctx, docs, a, true)
			}),
		newTool("disable_document", "Exclude a document from retrieval.", idempotent,
			func(ctx context.Context, a documentRef) (Result, error) {
				return toggleDocument(ctx, docs, a, false)
			}),
		newTool("retry_document_indexing", "Retry indexing a document that failed.", writes,
			func(ctx context.Context, a documentRef) (Result, error) {
				ok, err := docs.RetryIndexing(ctx, a.DatasetID, a.DocumentID)
				return done(ok, err, "retried", "Document indexing retried")
			}),
		newTool("pause_document_indexing", "Pause indexing of a document.", idempotent,
			func(ctx context.Context, a documentRef) (Result, error) {
				ok, err := docs.PauseIndexing(ctx, a.DatasetID, a.DocumentID)
				return done(ok, err, "paused", "Document indexing paused")
			}),
		newTool("resume_document_indexing", "Resume paused indexing of a document.", idempotent,
			func(ctx context.Context, a documentRef) (Result, error) {
				ok, err := docs.ResumeIndexing(ctx, a.DatasetID, a.DocumentID)
				return done(ok, err, "resumed", "Document indexing resumed")
			}),
		newTool("list_document_metadata", "List the metadata entries of a document.", reads,
			func(ctx context.Context, a documentRef) (Result, error) {
				out, err := docs.ListMetadata(ctx, a.DatasetID, a.DocumentID)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: out, Message: fmt.Sprintf("Found %d metadata entries", len(out.Data))}, nil
			}),
		newTool("create_document_metadata", "Attach a metadata entry to a document.", writes,
			func(ctx context.Context, a createMetadataArgs) (Result, error) {
				m, err := docs.CreateMetadata(ctx, a.DatasetID, a.DocumentID, dify.DocumentMetadataCreate{
					Key:         a.Key,
					Value:       a.Value,
					Type:        orDefault(a.Type, "string"),
					Description: a.Description,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: m, Message: fmt.Sprintf("Metadata '%s' created", m.Key)}, nil
			}),
		newTool("update_document_metadata", "Change a metadata entry's value or description.", idempotent,
			func(ctx context.Context, a updateMetadataArgs) (Result, error) {
				m, err := docs.UpdateMetadata(ctx, a.DatasetID, a.DocumentID, a.MetadataID, dify.DocumentMetadataUpdate{
					Value:       a.Value,
					Description: a.Description,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Data: m, Message: fmt.Sprintf("Metadata '%s' updated", m.Key)}, nil
			}),
		newTool("delete_document_metadata", "Remove a metadata entry from a document.", idempotent,
			func(ctx context.Context, a metadataRef) (Result, error) {
				ok, err := docs.DeleteMetadata(ctx, a.DatasetID, a.DocumentID, a.MetadataID)
				return done(ok, err, "deleted", "Metadata deleted")
			}),
	}
}

func toggleDocument(ctx context.Context, docs *dify.DocumentAPI, a documentRef, enabled bool) (Result, error) {
	ok, err := docs.SetEnabled(ctx, a.DatasetID, a.DocumentID, enabled)
	if enabled {
		return done(ok, err, "enabled", "Document enabled")
	}
	return done(ok, err, "disabled", "Document disabled")
}

// done wraps a boolean upstream acknowledgement as {key: ok}.
func done(ok bool, err error, key, message string) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	return Result{Data: map[string]any{key: ok}, Message: message}, nil
}
