// Package resources serves knowledge-base records as read-only MCP resources
// addressed by URI, for example dataset://{dataset_id}.
package resources

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/wilhg/dify-rag-mcp/pkg/dify"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
	"github.com/wilhg/dify-rag-mcp/pkg/validate"
)

const (
	MIMEType = "application/json"

	// listLimit is the page size used when a resource lists a collection.
	listLimit = 100
)

// Descriptor is one entry in the resource catalogue. Templates carry
// {placeholders} in URI.
type Descriptor struct {
	URI         string
	Name        string
	Description string
	Template    bool
}

// Content is a rendered resource.
type Content struct {
	URI      string
	MIMEType string
	Text     string
}

type reader func(ctx context.Context, ids []string) (any, error)

type kind struct {
	desc Descriptor
	ids  []func(string) (string, error)
	read reader
}

// Catalogue resolves resource URIs against the upstream service.
type Catalogue struct {
	kinds  map[string]kind
	order  []string
	logger hclog.Logger
}

func New(svc *dify.Service, logger hclog.Logger) *Catalogue {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	c := &Catalogue{kinds: map[string]kind{}, logger: logger.Named("resources")}
	firstPage := dify.DatasetListQuery{Page: 1, Limit: listLimit}

	c.add("datasets", Descriptor{URI: "datasets://", Name: "Datasets", Description: "First page of knowledge bases"},
		nil,
		func(ctx context.Context, _ []string) (any, error) {
			return svc.Datasets.List(ctx, firstPage)
		})
	c.add("dataset", Descriptor{URI: "dataset://{dataset_id}", Name: "Dataset", Description: "One knowledge base", Template: true},
		idChecks(validate.DatasetID),
		func(ctx context.Context, ids []string) (any, error) {
			return svc.Datasets.Get(ctx, ids[0])
		})
	c.add("documents", Descriptor{URI: "documents://{dataset_id}", Name: "Documents", Description: "First page of documents in a dataset", Template: true},
		idChecks(validate.DatasetID),
		func(ctx context.Context, ids []string) (any, error) {
			return svc.Documents.List(ctx, ids[0], dify.DocumentListQuery{Page: 1, Limit: listLimit})
		})
	c.add("document", Descriptor{URI: "document://{dataset_id}/{document_id}", Name: "Document", Description: "One document", Template: true},
		idChecks(validate.DatasetID, validate.DocumentID),
		func(ctx context.Context, ids []string) (any, error) {
			return svc.Documents.Get(ctx, ids[0], ids[1])
		})
	c.add("segments", Descriptor{URI: "segments://{dataset_id}/{document_id}", Name: "Segments", Description: "First page of segments in a document", Template: true},
		idChecks(validate.DatasetID, validate.DocumentID),
		func(ctx context.Context, ids []string) (any, error) {
			return svc.Segments.List(ctx, ids[0], ids[1], dify.SegmentListQuery{Page: 1, Limit: listLimit})
		})
	c.add("segment", Descriptor{URI: "segment://{dataset_id}/{document_id}/{segment_id}", Name: "Segment", Description: "One segment", Template: true},
		idChecks(validate.DatasetID, validate.DocumentID, validate.SegmentID),
		func(ctx context.Context, ids []string) (any, error) {
			return svc.Segments.Get(ctx, ids[0], ids[1], ids[2])
		})
	return c
}

func idChecks(fns ...func(string) (string, error)) []func(string) (string, error) { return fns }

func (c *Catalogue) add(scheme string, d Descriptor, ids []func(string) (string, error), read reader) {
	c.kinds[scheme] = kind{desc: d, ids: ids, read: read}
	c.order = append(c.order, scheme)
}

// Descriptors lists the catalogue, fixed resources and templates alike.
func (c *Catalogue) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(c.order))
	for _, s := range c.order {
		out = append(out, c.kinds[s].desc)
	}
	return out
}

// Read fetches the record behind uri and renders it as indented JSON.
// A malformed URI is a validation error; an absent record is NotFound.
func (c *Catalogue) Read(ctx context.Context, uri string) (*Content, error) {
	k, ids, err := c.parse(uri)
	if err != nil {
		return nil, err
	}
	v, err := k.read(ctx, ids)
	if err != nil {
		c.logger.Warn("resource read failed", "uri", uri, "kind", errmodel.KindOf(err), "error", err)
		return nil, err
	}
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errmodel.API(0, "Unexpected error: "+err.Error(), nil)
	}
	return &Content{URI: uri, MIMEType: MIMEType, Text: string(text)}, nil
}

func (c *Catalogue) parse(uri string) (kind, []string, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return kind{}, nil, errmodel.Validation("uri", uri, "Invalid resource URI: "+uri)
	}
	k, ok := c.kinds[scheme]
	if !ok {
		return kind{}, nil, errmodel.Validation("uri", uri, "Unknown resource scheme: "+scheme)
	}
	var parts []string
	if rest = strings.Trim(rest, "/"); rest != "" {
		parts = strings.Split(rest, "/")
	}
	if len(parts) != len(k.ids) {
		return kind{}, nil, errmodel.Validation("uri", uri, "Invalid resource URI: expected "+k.desc.URI)
	}
	for i, check := range k.ids {
		id, err := check(parts[i])
		if err != nil {
			return kind{}, nil, err
		}
		parts[i] = id
	}
	return k, parts, nil
}
