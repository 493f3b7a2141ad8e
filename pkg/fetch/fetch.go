package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/binary-install/protocdl/pkg/httpclient"
	"github.com/pkg/errors"
)

// ErrNetwork is matched by every failure to retrieve a complete resource.
var ErrNetwork = errors.New("network error")

// DefaultMaxBytes caps a download whose size the server does not announce
const DefaultMaxBytes = 256 << 20

// Fetcher retrieves the full content of a URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f(ctx, url)
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// ProgressFunc is a callback for download progress. total is -1 when unknown.
type ProgressFunc func(downloaded, total int64)

// Error describes a failed fetch. It matches ErrNetwork.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: unexpected status code: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNetwork) hold
func (e *Error) Is(target error) bool {
	return target == ErrNetwork
}

// HTTPFetcher downloads over HTTP(S) into memory.
type HTTPFetcher struct {
	Client *http.Client
	// MaxBytes limits the body size; zero means DefaultMaxBytes
	MaxBytes int64
	// Retries is the number of extra attempts after a transport error or 5xx
	// response. Zero disables retrying.
	Retries int
	// RetryDelay is multiplied by the attempt number between attempts
	RetryDelay time.Duration
	Progress   ProgressFunc
	Log        log.Interface
}

// NewHTTPFetcher returns a fetcher using the GitHub-aware client
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		Client:     httpclient.NewGitHubClient(timeout),
		MaxBytes:   DefaultMaxBytes,
		RetryDelay: time.Second,
	}
}

// Fetch downloads url. A body that ends before its announced Content-Length,
// or exceeds it, is an error; partial content is never returned.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	logger := f.logger().WithField("url", url)

	var lastErr error
	for attempt := 0; attempt <= f.Retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * f.RetryDelay
			logger.WithError(lastErr).Warnf("retrying in %s (attempt %d of %d)", delay, attempt+1, f.Retries+1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &Error{URL: url, Err: ctx.Err()}
			}
		}

		data, retry, err := f.fetchOnce(ctx, url)
		if err == nil {
			logger.WithField("bytes", len(data)).Debug("fetched")
			return data, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := httpclient.NewRequest(ctx, url)
	if err != nil {
		return nil, false, &Error{URL: url, Err: errors.Wrap(err, "failed to create request")}
	}

	client := f.Client
	if client == nil {
		client = httpclient.NewGitHubClient(0)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, true, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, resp.StatusCode >= 500, &Error{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := f.readBody(resp.Body, resp.ContentLength)
	if err != nil {
		return nil, true, &Error{URL: url, Err: err}
	}
	return data, false, nil
}

func (f *HTTPFetcher) readBody(body io.Reader, contentLength int64) ([]byte, error) {
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	r := body
	if f.Progress != nil {
		r = &progressReader{Reader: body, Total: contentLength, Report: f.Progress}
	}

	if contentLength >= 0 {
		if contentLength > limit {
			return nil, fmt.Errorf("content length %d exceeds limit of %d bytes", contentLength, limit)
		}
		data := make([]byte, contentLength)
		n, err := io.ReadFull(r, data)
		if err != nil {
			return nil, errors.Wrapf(err, "short read: got %d of %d bytes", n, contentLength)
		}
		var extra [1]byte
		if m, _ := r.Read(extra[:]); m > 0 {
			return nil, fmt.Errorf("body is longer than announced content length %d", contentLength)
		}
		if contentLength == 0 {
			return nil, fmt.Errorf("no content downloaded")
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.Wrapf(err, "failed after reading %d bytes", len(data))
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("body exceeds limit of %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no content downloaded")
	}
	return data, nil
}

func (f *HTTPFetcher) logger() log.Interface {
	if f.Log != nil {
		return f.Log
	}
	return log.Log
}

// progressReader wraps an io.Reader to report progress
type progressReader struct {
	Reader  io.Reader
	Total   int64
	Current int64
	Report  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.Current += int64(n)
		pr.Report(pr.Current, pr.Total)
	}
	return n, err
}
