// Package difytest provides a recording stand-in for the Dify REST API.
package difytest

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// Prefix is the path prefix the fake serves under, like the real /v1 base.
const Prefix = "/v1/"

// Response is one canned answer.
type Response struct {
	Status int
	// Body is marshaled as JSON unless Raw is set.
	Body   any
	Raw    string
	Header map[string]string
	// Delay holds the response back, for timeout tests.
	Delay time.Duration
}

// File is one uploaded multipart file.
type File struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// Request is what the fake saw.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Header  http.Header
	RawBody []byte
	// Body is the decoded JSON body, nil for other encodings.
	Body  map[string]any
	Form  map[string]string
	Files []File
}

// Server answers routed requests in order and records everything it receives.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string][]Response
	requests []Request
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{routes: map[string][]Response{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the address to hand to the client.
func (s *Server) BaseURL() string { return s.Server.URL + strings.TrimSuffix(Prefix, "/") }

// Handle answers every METHOD path request with status and a JSON body.
func (s *Server) Handle(method, path string, status int, body any) {
	s.HandleSequence(method, path, Response{Status: status, Body: body})
}

// HandleSequence answers successive requests with responses in order; the
// last response repeats once the sequence is exhausted.
func (s *Server) HandleSequence(method, path string, responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[key(method, path)] = append([]Response(nil), responses...)
}

// Requests returns a copy of everything received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns the number of requests received.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Last returns the most recent request. It panics if there is none.
func (s *Server) Last() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	rec := record(r)

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	k := key(r.Method, rec.Path)
	queue, ok := s.routes[k]
	var res Response
	if ok && len(queue) > 0 {
		res = queue[0]
		if len(queue) > 1 {
			s.routes[k] = queue[1:]
		}
	}
	s.mu.Unlock()

	if !ok {
		res = Response{Status: http.StatusNotFound, Body: map[string]any{"code": "not_found", "message": "no route for " + k}}
	}
	if res.Delay > 0 {
		select {
		case <-time.After(res.Delay):
		case <-r.Context().Done():
			return
		}
	}
	for h, v := range res.Header {
		w.Header().Set(h, v)
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	var payload []byte
	switch {
	case res.Raw != "":
		payload = []byte(res.Raw)
	case res.Body != nil:
		payload, _ = json.Marshal(res.Body)
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if status != http.StatusNoContent {
		_, _ = w.Write(payload)
	}
}

func record(r *http.Request) Request {
	rec := Request{
		Method: r.Method,
		Path:   strings.TrimPrefix(r.URL.Path, Prefix),
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			rec.Form = map[string]string{}
			for k, vs := range r.MultipartForm.Value {
				if len(vs) > 0 {
					rec.Form[k] = vs[0]
				}
			}
			for field, fhs := range r.MultipartForm.File {
				for _, fh := range fhs {
					f, err := fh.Open()
					if err != nil {
						continue
					}
					b, _ := io.ReadAll(f)
					_ = f.Close()
					rec.Files = append(rec.Files, File{
						Field:       field,
						Filename:    fh.Filename,
						ContentType: fh.Header.Get("Content-Type"),
						Content:     b,
					})
				}
			}
		}
		return rec
	}
	rec.RawBody, _ = io.ReadAll(r.Body)
	if len(rec.RawBody) > 0 && mediaType == "application/json" {
		var m map[string]any
		if json.Unmarshal(rec.RawBody, &m) == nil {
			rec.Body = m
		}
	}
	return rec
}

func key(method, path string) string {
	return strings.ToUpper(method) + " " + strings.TrimPrefix(path, "/")
}
