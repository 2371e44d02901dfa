package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultTimeout     = 5 * time.Minute
)

var ErrUnexpectedStatus = errors.New("unexpected status code")

type Fetcher struct {
	client      *retryablehttp.Client
	store       *store.Store
	token       string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	log         *logrus.Logger
}

type Option func(f *Fetcher)

func WithToken(token string) Option {
	return func(f *Fetcher) {
		f.token = token
	}
}

func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay before the second attempt and the upper bound
// for the exponential growth after that.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = base
		if maxDelay >= base {
			f.maxDelay = maxDelay
		}
		if f.maxDelay < f.baseDelay {
			f.maxDelay = f.baseDelay
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.client.HTTPClient.Timeout = timeout
		}
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(f *Fetcher) {
		f.log = log
	}
}

func New(s *store.Store, opts ...Option) *Fetcher {
	client := retryablehttp.NewClient()
	client.Logger = nil
	// attempts are counted by Fetch, a single attempt covers request and body
	client.RetryMax = 0
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient.Timeout = DefaultTimeout

	f := &Fetcher{
		client:      client,
		store:       s,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Backoff returns the wait before the attempt following attempt (1-based):
// base * 2^(attempt-1), capped at the max delay. Retry-After headers on 429
// and 503 responses are honoured up to the max delay.
func (f *Fetcher) Backoff(attempt int, resp *http.Response) time.Duration {
	d := f.client.Backoff(f.baseDelay, f.maxDelay, attempt-1, resp)
	if d > f.maxDelay {
		d = f.maxDelay
	}
	return d
}

// Fetch downloads url into dest (relative to the store root). The parent
// directory of dest must exist. Each attempt rewrites dest from scratch and a
// failed attempt never leaves a partial file behind.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		n, resp, err := f.fetchOnce(ctx, url, dest)
		if err == nil {
			return n, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if attempt == f.maxAttempts {
			break
		}
		wait := f.Backoff(attempt, resp)
		f.log.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
			"wait":    wait,
		}).Warnf("download failed, retrying: %v", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	return 0, fmt.Errorf("failed to download %s after %d attempt(s): %w", url, f.maxAttempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, dest string) (int64, *http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/octet-stream")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return 0, resp, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, resp, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	n, err := f.store.WriteAtomic(dest, resp.Body)
	if err != nil {
		return 0, resp, err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		_ = f.store.Remove(dest)
		return 0, resp, fmt.Errorf("unexpected content length: %d (should be %d)", n, resp.ContentLength)
	}
	return n, resp, nil
}
