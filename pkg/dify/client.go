// Package dify is the client for the Dify knowledge-base REST API. Client owns
// the connection pool and the status-to-error mapping; DatasetAPI,
// DocumentAPI, SegmentAPI and SearchAPI shape requests for each resource.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/dify-rag-mcp/internal/version"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

const (
	DefaultBaseURL    = "https://api.dify.ai/v1"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Config controls how the client reaches the upstream service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// MaxRetries bounds retries of idempotent GETs on network errors and 502/503/504.
	MaxRetries int
	RetryDelay time.Duration
	UserAgent  string
	// Transport replaces the pooled transport. Mostly useful in tests.
	Transport http.RoundTripper
	Logger    hclog.Logger
}

// File is one part of a multipart upload.
type File struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// Request carries the optional parts of a call. A nil *Request is an empty one.
type Request struct {
	Query url.Values
	JSON  any
	Form  map[string]string
	Files []File
	// Multipart sends Form as multipart/form-data even without files.
	Multipart bool
	Headers   map[string]string
}

// Client is safe for concurrent use; all calls share one connection pool.
type Client struct {
	baseURL    string
	headers    http.Header
	http       *http.Client
	pool       *http.Transport
	maxRetries int
	retryDelay time.Duration
	logger     hclog.Logger
	tracer     trace.Tracer
}

// NewClient validates cfg and builds a client with a pooled, traced transport.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errmodel.Configuration("base_url", "Dify base URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, errmodel.Configuration("base_url", "Dify base URL must start with http:// or https://")
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errmodel.Configuration("api_key", "Dify API key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	var pool *http.Transport
	rt := cfg.Transport
	if rt == nil {
		pool = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
		rt = pool
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	headers.Set("User-Agent", cfg.UserAgent)

	return &Client{
		baseURL: base,
		headers: headers,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(rt),
		},
		pool:       pool,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.Named("dify"),
		tracer:     otel.Tracer("dify/client"),
	}, nil
}

// WithClient builds a client, hands it to fn and always closes it afterwards.
func WithClient(cfg Config, fn func(*Client) error) error {
	c, err := NewClient(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// BaseURL returns the normalized base address, always ending in "/".
func (c *Client) BaseURL() string { return c.baseURL }

// Close releases idle pooled connections. The client stays usable.
func (c *Client) Close() error {
	if c.pool != nil {
		c.pool.CloseIdleConnections()
	} else {
		c.http.CloseIdleConnections()
	}
	return nil
}

func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, endpoint, &Request{Query: query})
}

func (c *Client) Post(ctx context.Context, endpoint string, req *Request) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, endpoint, req)
}

func (c *Client) Put(ctx context.Context, endpoint string, req *Request) (map[string]any, error) {
	return c.Do(ctx, http.MethodPut, endpoint, req)
}

func (c *Client) Patch(ctx context.Context, endpoint string, body any) (map[string]any, error) {
	return c.Do(ctx, http.MethodPatch, endpoint, &Request{JSON: body})
}

// Delete issues a DELETE. body may be nil; tag unbinding needs one.
func (c *Client) Delete(ctx context.Context, endpoint string, body any) (map[string]any, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, &Request{JSON: body})
}

// Do executes one logical request and maps the outcome onto the error taxonomy.
// GETs are retried on network errors and 502/503/504 up to MaxRetries times.
func (c *Client) Do(ctx context.Context, method, endpoint string, req *Request) (map[string]any, error) {
	if req == nil {
		req = &Request{}
	}
	ctx, span := c.tracer.Start(ctx, "dify.request", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("dify.endpoint", endpoint),
	))
	defer span.End()

	target, err := c.buildURL(endpoint, req.Query)
	if err != nil {
		return nil, c.fail(span, err)
	}
	payload, contentType, err := req.encode()
	if err != nil {
		return nil, c.fail(span, err)
	}

	var out map[string]any
	attempt := 0
	op := func() error {
		attempt++
		res, err := c.once(ctx, method, target, payload, contentType, req.Headers)
		if err == nil {
			out = res
			return nil
		}
		if method == http.MethodGet && retryable(err) && attempt <= c.maxRetries {
			c.logger.Warn("retrying request", "method", method, "endpoint", endpoint, "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		span.SetAttributes(attribute.Int("dify.attempts", attempt))
		return nil, c.fail(span, transportError(err))
	}
	span.SetAttributes(attribute.Int("dify.attempts", attempt))
	return out, nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryDelay
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxRetries)), ctx)
}

func (c *Client) once(ctx context.Context, method, target string, payload []byte, contentType string, headers map[string]string) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	hreq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errmodel.Wrap(errmodel.API(0, "Unexpected error: "+err.Error(), nil), err)
	}
	for k, vs := range c.headers {
		hreq.Header[k] = append([]string(nil), vs...)
	}
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		hreq.Header.Set(k, v)
	}

	start := time.Now()
	res, err := c.http.Do(hreq)
	if err != nil {
		c.logger.Error("request failed", "method", method, "url", target, "error", err)
		return nil, transportError(err)
	}
	defer func() { _ = res.Body.Close() }()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, transportError(err)
	}
	c.logger.Debug("response", "method", method, "url", target, "status", res.StatusCode, "duration", time.Since(start))
	return mapResponse(res.StatusCode, res.Header, raw)
}

func (c *Client) buildURL(endpoint string, query url.Values) (string, error) {
	u, err := url.Parse(c.baseURL + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", errmodel.Validation("endpoint", endpoint, "Invalid endpoint: "+err.Error())
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// encode serializes the body. Files switch the request to multipart, form
// fields alone to urlencoded, otherwise JSON is used when set.
func (r *Request) encode() ([]byte, string, error) {
	switch {
	case len(r.Files) > 0 || r.Multipart:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, k := range sortedKeys(r.Form) {
			if err := w.WriteField(k, r.Form[k]); err != nil {
				return nil, "", errmodel.API(0, "Unexpected error: "+err.Error(), nil)
			}
		}
		for _, f := range r.Files {
			h := make(textproto.MIMEHeader)
			field := f.Field
			if field == "" {
				field = "file"
			}
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Filename))
			ct := f.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			h.Set("Content-Type", ct)
			part, err := w.CreatePart(h)
			if err != nil {
				return nil, "", errmodel.API(0, "Unexpected error: "+err.Error(), nil)
			}
			if _, err := part.Write(f.Content); err != nil {
				return nil, "", errmodel.API(0, "Unexpected error: "+err.Error(), nil)
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", errmodel.API(0, "Unexpected error: "+err.Error(), nil)
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	case len(r.Form) > 0:
		v := url.Values{}
		for k, s := range r.Form {
			v.Set(k, s)
		}
		return []byte(v.Encode()), "application/x-www-form-urlencoded", nil
	case r.JSON != nil:
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, "", errmodel.Validation("json_body", nil, "Request body is not serializable: "+err.Error())
		}
		return b, "application/json", nil
	default:
		return nil, "", nil
	}
}

// mapResponse turns a status and raw body into a parsed mapping or a taxonomy error.
func mapResponse(status int, header http.Header, raw []byte) (map[string]any, error) {
	switch {
	case status == http.StatusOK:
		if len(bytes.TrimSpace(raw)) == 0 {
			return map[string]any{}, nil
		}
		return decodeBody(status, raw)
	case status == http.StatusCreated:
		return decodeBody(status, raw)
	case status == http.StatusNoContent:
		return map[string]any{"success": true}, nil
	case status == http.StatusBadRequest:
		body, err := decodeErrorBody(status, raw)
		if err != nil {
			return nil, err
		}
		return nil, errmodel.API(status, "Bad request: "+upstreamMessage(body, "Invalid request"), body)
	case status == http.StatusUnauthorized:
		return nil, errmodel.Authentication("Invalid API key or authentication failed")
	case status == http.StatusForbidden:
		return nil, errmodel.Authentication("Access forbidden")
	case status == http.StatusNotFound:
		return nil, errmodel.NotFound("Resource not found")
	case status == http.StatusTooManyRequests:
		return nil, errmodel.RateLimit("Rate limit exceeded", header.Get("Retry-After"))
	case status >= 500:
		body, err := decodeErrorBody(status, raw)
		if err != nil {
			return nil, err
		}
		return nil, errmodel.API(status, "Server error: "+upstreamMessage(body, "Internal server error"), body)
	default:
		body, err := decodeErrorBody(status, raw)
		if err != nil {
			return nil, err
		}
		return nil, errmodel.API(status, fmt.Sprintf("Unexpected status code %d: %s", status, upstreamMessage(body, "Unknown error")), body)
	}
}

func decodeBody(status int, raw []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errmodel.API(status, fmt.Sprintf("Invalid JSON response from server (status: %d)", status), nil)
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	// Some endpoints answer with a bare array.
	return map[string]any{"data": v}, nil
}

// decodeErrorBody treats an empty error body as an empty mapping.
func decodeErrorBody(status int, raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	return decodeBody(status, raw)
}

func upstreamMessage(body map[string]any, def string) string {
	if s, ok := body["message"].(string); ok && s != "" {
		return s
	}
	return def
}

// transportError classifies a failure from the HTTP stack.
func transportError(err error) error {
	var ce *errmodel.Error
	if errors.As(err, &ce) {
		return ce
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return errmodel.Timeout("Request timeout: "+err.Error(), err)
	}
	if errors.Is(err, context.Canceled) {
		return errmodel.Wrap(errmodel.API(0, "Unexpected error: "+err.Error(), nil), err)
	}
	var ue *url.Error
	var oe *net.OpError
	if errors.As(err, &oe) || errors.As(err, &ue) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errmodel.Network("Network error: "+err.Error(), err)
	}
	return errmodel.Wrap(errmodel.API(0, "Unexpected error: "+err.Error(), nil), err)
}

// retryable reports whether a failed GET may be attempted again.
func retryable(err error) bool {
	var ce *errmodel.Error
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Kind {
	case errmodel.KindNetwork:
		return true
	case errmodel.KindAPI:
		return ce.Status == http.StatusBadGateway || ce.Status == http.StatusServiceUnavailable || ce.Status == http.StatusGatewayTimeout
	default:
		return false
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
