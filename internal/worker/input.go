package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Fetcher downloads IOC list exports over HTTP
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
}

// NewFetcher creates a fetcher; bodies larger than maxBytes are rejected
func NewFetcher(timeout time.Duration, userAgent string, maxBytes int64) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// Fetch retrieves the list at rawURL
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/csv,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	// one extra byte tells a full read from a truncated one
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("list at %s exceeds %d bytes", rawURL, f.maxBytes)
	}

	return body, nil
}

const fetchAttempts = 3

var fetchSleepFunc = time.Sleep

// FetchWithRetry retries Fetch on network errors, 429 and 5xx with a
// linear backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		body, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt < fetchAttempts {
			fetchSleepFunc(time.Duration(attempt) * time.Second)
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", fetchAttempts, lastErr)
}

func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "fetch: "):
		return true
	case strings.HasPrefix(msg, "unexpected status: 429"):
		return true
	case strings.HasPrefix(msg, "unexpected status: 5"):
		return true
	default:
		return false
	}
}

// OpenInput opens a list from "-" (stdin), an http(s) URL or a file path
func OpenInput(ctx context.Context, location string, f *Fetcher) (io.ReadCloser, error) {
	switch {
	case location == "-":
		return io.NopCloser(os.Stdin), nil

	case strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://"):
		if f == nil {
			f = NewFetcher(30*time.Second, "iocscore", 64<<20)
		}
		body, err := f.FetchWithRetry(ctx, location)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(body)), nil

	default:
		file, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		return file, nil
	}
}
