// Package http serves a ustar archive over HTTP range requests.
//
// A Source probes the remote object once for its size and validators and
// then satisfies each ReadAt with a single ranged GET. Subsequent requests
// are conditional on the probed ETag and Last-Modified values, so a change
// to the remote object fails reads instead of mixing content.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
)

var (
	// ErrRangeUnsupported is returned when the server ignores Range headers.
	ErrRangeUnsupported = errors.New("http: range requests not supported")

	// ErrChanged is returned when a conditional read fails because the
	// remote object changed after the source was opened.
	ErrChanged = errors.New("http: remote content changed")
)

// Source implements random access reads via HTTP range requests.
// It satisfies ustar.ByteSource.
type Source struct {
	ctx     context.Context
	url     string
	client  *nethttp.Client
	headers nethttp.Header
	size    int64
	valid   validators
}

// validators identify one version of the remote object.
type validators struct {
	etag         string
	lastModified string
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeader sets a header on every request, for example Authorization.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// NewSource creates a Source for url and probes the remote for its size.
//
// ctx bounds the probe and every later ReadAt; cancel it to abort
// outstanding reads.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Source{ctx: ctx, url: url}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if err := s.probe(); err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return s, nil
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// SourceID identifies the remote object by URL and its strongest validator.
func (s *Source) SourceID() string {
	switch {
	case s.valid.etag != "":
		return fmt.Sprintf("http:%s:%s", s.url, s.valid.etag)
	case s.valid.lastModified != "":
		return fmt.Sprintf("http:%s:%d:%s", s.url, s.size, s.valid.lastModified)
	default:
		return fmt.Sprintf("http:%s:%d", s.url, s.size)
	}
}

// ReadAt fetches len(p) bytes at off with one ranged GET. A read that runs
// past the end returns the available bytes and io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	want := int(min(int64(len(p)), s.size-off))
	resp, err := s.fetch(off, off+int64(want)-1)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	n, err := io.ReadFull(resp.Body, p[:want])
	switch {
	case err != nil:
		return n, err
	case want < len(p):
		return n, io.EOF
	default:
		return n, nil
	}
}

// probe learns the object's size and validators. HEAD is advisory; the
// one-byte range GET is authoritative and proves range support.
func (s *Source) probe() error {
	headSize := int64(-1)
	if resp, err := s.do(nethttp.MethodHead, ""); err == nil {
		if resp.StatusCode == nethttp.StatusOK {
			headSize = resp.ContentLength
			s.valid = validatorsOf(resp)
		}
		drain(resp)
	}

	// The validators are not known yet, so the probe is unconditional.
	known := s.valid
	s.valid = validators{}
	resp, err := s.fetch(0, 0)
	if err != nil {
		return err
	}
	defer drain(resp)

	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	if headSize > 0 && headSize != size {
		return fmt.Errorf("content size mismatch: head=%d range=%d", headSize, size)
	}
	s.size = size
	s.valid = validatorsOf(resp)
	if s.valid.etag == "" {
		s.valid.etag = known.etag
	}
	if s.valid.lastModified == "" {
		s.valid.lastModified = known.lastModified
	}
	return nil
}

// fetch issues a conditional GET for bytes first..last and maps the status
// to an error unless the server answered with partial content.
func (s *Source) fetch(first, last int64) (*nethttp.Response, error) {
	resp, err := s.do(nethttp.MethodGet, rangeHeader(first, last))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == nethttp.StatusPartialContent {
		return resp, nil
	}
	drain(resp)
	switch resp.StatusCode {
	case nethttp.StatusOK:
		return nil, ErrRangeUnsupported
	case nethttp.StatusPreconditionFailed:
		return nil, ErrChanged
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("GET %s: %s", rangeHeader(first, last), resp.Status)
	}
}

func rangeHeader(first, last int64) string {
	return fmt.Sprintf("bytes=%d-%d", first, last)
}

func (s *Source) do(method, byteRange string) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(s.ctx, method, s.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	// Ranges address the stored bytes, never a re-encoded body.
	req.Header.Set("Accept-Encoding", "identity")
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
		if s.valid.etag != "" {
			req.Header.Set("If-Match", s.valid.etag)
		}
		if s.valid.lastModified != "" {
			req.Header.Set("If-Unmodified-Since", s.valid.lastModified)
		}
	}
	return s.client.Do(req)
}

func validatorsOf(resp *nethttp.Response) validators {
	return validators{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
}

// drain discards the rest of the body so the connection can be reused.
func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// parseContentRange returns the complete length from "bytes a-b/size".
func parseContentRange(value string) (int64, error) {
	var first, last, size int64
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "bytes %d-%d/%d", &first, &last, &size); err != nil {
		return 0, fmt.Errorf("invalid Content-Range %q: %w", value, err)
	}
	if first < 0 || last < first || size <= last {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
