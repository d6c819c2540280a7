package dify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
	"github.com/wilhg/dify-rag-mcp/pkg/validate"
)

var mimeTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".html": "text/html",
	".htm":  "text/html",
}

// MimeType derives an upload content type from the file extension.
func MimeType(filename string) string {
	if ct, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// FileInput names the bytes to upload: either a path or in-memory content.
type FileInput struct {
	Path    string
	Content []byte
	// Filename defaults to the base name of Path. It is required with Content.
	Filename string
}

// DocumentAPI manages documents inside a dataset.
type DocumentAPI struct {
	c  *Client
	fs afero.Fs
}

type DocumentOption func(*DocumentAPI)

// WithFs sets the filesystem upload paths are read from.
func WithFs(fs afero.Fs) DocumentOption {
	return func(a *DocumentAPI) { a.fs = fs }
}

func NewDocumentAPI(c *Client, opts ...DocumentOption) *DocumentAPI {
	a := &DocumentAPI{c: c, fs: afero.NewOsFs()}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *DocumentAPI) List(ctx context.Context, datasetID string, q DocumentListQuery) (*DocumentList, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	params := url.Values{}
	if err := pagination(params, q.Page, q.Limit); err != nil {
		return nil, err
	}
	setString(params, "keyword", q.Keyword)
	setString(params, "status", q.Status)
	res, err := a.c.Get(ctx, datasetPath(datasetID, "documents"), params)
	if err != nil {
		return nil, err
	}
	var out DocumentList
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *DocumentAPI) CreateByText(ctx context.Context, datasetID string, in DocumentCreateByText) (*DocumentCreateResponse, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	name, err := validate.NonEmptyString(in.Name, "name", 255)
	if err != nil {
		return nil, err
	}
	in.Name = name
	if _, err := validate.NonEmptyString(in.Text, "text", 0); err != nil {
		return nil, err
	}
	if err := documentSettings(in.IndexingTechnique, in.DocForm, in.ProcessRule); err != nil {
		return nil, err
	}
	res, err := a.c.Post(ctx, datasetPath(datasetID, "document", "create_by_text"), &Request{JSON: in})
	if err != nil {
		return nil, err
	}
	return decodeCreateResponse(res)
}

// CreateByFile uploads a file as a new document. Settings travel as a JSON
// string in the multipart field "data".
func (a *DocumentAPI) CreateByFile(ctx context.Context, datasetID string, file FileInput, in DocumentCreateByFile) (*DocumentCreateResponse, error) {
	if err := checkPath(datasetID); err != nil {
		return nil, err
	}
	if err := documentSettings(in.IndexingTechnique, in.DocForm, in.ProcessRule); err != nil {
		return nil, err
	}
	part, err := a.readFile(file)
	if err != nil {
		return nil, err
	}
	req, err := multipartRequest(in, &part)
	if err != nil {
		return nil, err
	}
	res, err := a.c.Post(ctx, datasetPath(datasetID, "document", "create_by_file"), req)
	if err != nil {
		return nil, err
	}
	return decodeCreateResponse(res)
}

func (a *DocumentAPI) Get(ctx context.Context, datasetID, documentID string) (*Document, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	res, err := a.c.Get(ctx, documentPath(datasetID, documentID), nil)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *DocumentAPI) UpdateByText(ctx context.Context, datasetID, documentID string, in DocumentUpdateByText) (*DocumentCreateResponse, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	if in.Name != nil {
		name, err := validate.NonEmptyString(*in.Name, "name", 255)
		if err != nil {
			return nil, err
		}
		in.Name = &name
	}
	if in.Text != nil {
		if _, err := validate.NonEmptyString(*in.Text, "text", 0); err != nil {
			return nil, err
		}
	}
	if err := documentSettings("", "", in.ProcessRule); err != nil {
		return nil, err
	}
	res, err := a.c.Post(ctx, documentPath(datasetID, documentID, "update_by_text"), &Request{JSON: in})
	if err != nil {
		return nil, err
	}
	return decodeCreateResponse(res)
}

// UpdateByFile replaces a document's settings and, when file is non-nil, its content.
func (a *DocumentAPI) UpdateByFile(ctx context.Context, datasetID, documentID string, file *FileInput, in DocumentUpdateByFile) (*DocumentCreateResponse, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	if err := documentSettings("", "", in.ProcessRule); err != nil {
		return nil, err
	}
	var part *File
	if file != nil {
		f, err := a.readFile(*file)
		if err != nil {
			return nil, err
		}
		part = &f
	}
	req, err := multipartRequest(in, part)
	if err != nil {
		return nil, err
	}
	res, err := a.c.Post(ctx, documentPath(datasetID, documentID, "update_by_file"), req)
	if err != nil {
		return nil, err
	}
	return decodeCreateResponse(res)
}

func (a *DocumentAPI) Delete(ctx context.Context, datasetID, documentID string) (bool, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return false, err
	}
	if _, err := a.c.Delete(ctx, documentPath(datasetID, documentID), nil); err != nil {
		return false, err
	}
	return true, nil
}

func (a *DocumentAPI) IndexingStatus(ctx context.Context, datasetID, documentID string) (*DocumentStatus, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	res, err := a.c.Get(ctx, documentPath(datasetID, documentID, "status"), nil)
	if err != nil {
		return nil, err
	}
	var out DocumentStatus
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetEnabled enables or disables a document for retrieval.
func (a *DocumentAPI) SetEnabled(ctx context.Context, datasetID, documentID string, enabled bool) (bool, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return false, err
	}
	if _, err := a.c.Patch(ctx, documentPath(datasetID, documentID, "status"), map[string]any{"enabled": enabled}); err != nil {
		return false, err
	}
	return true, nil
}

func (a *DocumentAPI) RetryIndexing(ctx context.Context, datasetID, documentID string) (bool, error) {
	return a.processing(ctx, datasetID, documentID, "retry")
}

func (a *DocumentAPI) PauseIndexing(ctx context.Context, datasetID, documentID string) (bool, error) {
	return a.processing(ctx, datasetID, documentID, "pause")
}

func (a *DocumentAPI) ResumeIndexing(ctx context.Context, datasetID, documentID string) (bool, error) {
	return a.processing(ctx, datasetID, documentID, "resume")
}

func (a *DocumentAPI) processing(ctx context.Context, datasetID, documentID, action string) (bool, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return false, err
	}
	if _, err := a.c.Post(ctx, documentPath(datasetID, documentID, "processing", action), nil); err != nil {
		return false, err
	}
	return true, nil
}

func (a *DocumentAPI) ListMetadata(ctx context.Context, datasetID, documentID string) (*DocumentMetadataList, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	res, err := a.c.Get(ctx, documentPath(datasetID, documentID, "metadata"), nil)
	if err != nil {
		return nil, err
	}
	var out DocumentMetadataList
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *DocumentAPI) CreateMetadata(ctx context.Context, datasetID, documentID string, in DocumentMetadataCreate) (*DocumentMetadata, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	key, err := validate.NonEmptyString(in.Key, "key", 255)
	if err != nil {
		return nil, err
	}
	in.Key = key
	if _, err := validate.NonEmptyString(in.Type, "type", 0); err != nil {
		return nil, err
	}
	res, err := a.c.Post(ctx, documentPath(datasetID, documentID, "metadata"), &Request{JSON: in})
	if err != nil {
		return nil, err
	}
	return decodeMetadata(res)
}

func (a *DocumentAPI) UpdateMetadata(ctx context.Context, datasetID, documentID, metadataID string, in DocumentMetadataUpdate) (*DocumentMetadata, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return nil, err
	}
	if _, err := validate.MetadataID(metadataID); err != nil {
		return nil, err
	}
	res, err := a.c.Patch(ctx, documentPath(datasetID, documentID, "metadata", metadataID), in)
	if err != nil {
		return nil, err
	}
	return decodeMetadata(res)
}

func (a *DocumentAPI) DeleteMetadata(ctx context.Context, datasetID, documentID, metadataID string) (bool, error) {
	if err := checkPath(datasetID, documentID); err != nil {
		return false, err
	}
	if _, err := validate.MetadataID(metadataID); err != nil {
		return false, err
	}
	if _, err := a.c.Delete(ctx, documentPath(datasetID, documentID, "metadata", metadataID), nil); err != nil {
		return false, err
	}
	return true, nil
}

// readFile resolves a FileInput into an upload part. Exactly one of Path
// and Content must be set.
func (a *DocumentAPI) readFile(in FileInput) (File, error) {
	hasPath, hasContent := in.Path != "", len(in.Content) > 0
	switch {
	case hasPath && hasContent:
		return File{}, errmodel.Validation("file", in.Path, "Provide either file_path or file_content, not both")
	case hasPath:
		b, err := afero.ReadFile(a.fs, in.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return File{}, errmodel.Wrap(errmodel.NotFound("File not found: "+in.Path), err)
			}
			return File{}, errmodel.Wrap(errmodel.Validation("file_path", in.Path, "Cannot read file: "+err.Error()), err)
		}
		name := in.Filename
		if name == "" {
			name = filepath.Base(in.Path)
		}
		return File{Field: "file", Filename: name, ContentType: MimeType(name), Content: b}, nil
	case hasContent:
		name, err := validate.NonEmptyString(in.Filename, "filename", 255)
		if err != nil {
			return File{}, err
		}
		return File{Field: "file", Filename: name, ContentType: MimeType(name), Content: in.Content}, nil
	default:
		return File{}, errmodel.Validation("file", nil, "Either file_path or file_content must be provided")
	}
}

func multipartRequest(settings any, part *File) (*Request, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, errmodel.Validation("data", nil, "Document settings are not serializable: "+err.Error())
	}
	req := &Request{Form: map[string]string{"data": string(data)}, Multipart: true}
	if part != nil {
		req.Files = []File{*part}
	}
	return req, nil
}

func documentSettings(technique, docForm string, rule *ProcessRule) error {
	if technique != "" {
		if _, err := validate.IndexingTechnique(technique); err != nil {
			return err
		}
	}
	if docForm != "" {
		if _, err := validate.DocForm(docForm); err != nil {
			return err
		}
	}
	if rule != nil {
		if _, err := validate.ProcessMode(rule.Mode); err != nil {
			return err
		}
	}
	return nil
}

func decodeCreateResponse(res map[string]any) (*DocumentCreateResponse, error) {
	var out DocumentCreateResponse
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeMetadata(res map[string]any) (*DocumentMetadata, error) {
	var out DocumentMetadata
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
