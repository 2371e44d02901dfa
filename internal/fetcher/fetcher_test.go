package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var testFile = []byte("test-file")

func getTestServer(t *testing.T, failingRequests int32, failStatus int) (*httptest.Server, *atomic.Int32) {
	var cnt atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := cnt.Add(1)
		if n <= failingRequests {
			w.WriteHeader(failStatus)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, err := w.Write(testFile)
		require.NoError(t, err)
	}))
	return ts, &cnt
}

func newTestFetcher(t *testing.T, opts ...Option) (*Fetcher, *store.Store) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/mirror/repo/v1.0.0", 0o755))
	s := store.NewWithFs(fs, "/mirror")
	log := logrus.New()
	log.Out = io.Discard
	defaults := []Option{WithToken("test-token"), WithBackoff(time.Millisecond, 5*time.Millisecond), WithLogger(log)}
	return New(s, append(defaults, opts...)...), s
}

func TestFetch(t *testing.T) {
	ts, cnt := getTestServer(t, 0, http.StatusInternalServerError)
	defer ts.Close()
	f, s := newTestFetcher(t)

	n, err := f.Fetch(context.Background(), ts.URL, "repo/v1.0.0/tool")
	require.NoError(t, err)
	require.Equal(t, int64(len(testFile)), n)
	require.Equal(t, int32(1), cnt.Load())

	content, err := s.ReadFile("repo/v1.0.0/tool")
	require.NoError(t, err)
	require.Equal(t, testFile, content)
}

func TestFetchRetry(t *testing.T) {
	ts, cnt := getTestServer(t, 2, http.StatusBadGateway)
	defer ts.Close()
	f, s := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), ts.URL, "repo/v1.0.0/tool")
	require.NoError(t, err)
	require.Equal(t, int32(3), cnt.Load())

	exists, err := s.Exists("repo/v1.0.0/tool")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestFetchExhausted(t *testing.T) {
	ts, cnt := getTestServer(t, 10, http.StatusNotFound)
	defer ts.Close()
	f, s := newTestFetcher(t, WithMaxAttempts(3))

	_, err := f.Fetch(context.Background(), ts.URL, "repo/v1.0.0/tool")
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	require.ErrorContains(t, err, "after 3 attempt(s)")
	require.Equal(t, int32(3), cnt.Load())

	exists, err := s.Exists("repo/v1.0.0/tool")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFetchUnauthorized(t *testing.T) {
	ts, _ := getTestServer(t, 0, http.StatusInternalServerError)
	defer ts.Close()
	f, _ := newTestFetcher(t, WithToken(""), WithMaxAttempts(1))

	_, err := f.Fetch(context.Background(), ts.URL, "repo/v1.0.0/tool")
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	require.ErrorContains(t, err, "401")
}

func TestFetchShortBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write(testFile)
	}))
	defer ts.Close()
	f, s := newTestFetcher(t, WithMaxAttempts(2))

	_, err := f.Fetch(context.Background(), ts.URL, "repo/v1.0.0/tool")
	require.Error(t, err)

	exists, err := s.Exists("repo/v1.0.0/tool")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFetchCanceled(t *testing.T) {
	ts, _ := getTestServer(t, 10, http.StatusInternalServerError)
	defer ts.Close()
	f, _ := newTestFetcher(t, WithBackoff(time.Hour, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, ts.URL, "repo/v1.0.0/tool")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoff(t *testing.T) {
	f, _ := newTestFetcher(t, WithBackoff(time.Second, time.Minute))
	require.Equal(t, time.Second, f.Backoff(1, nil))
	require.Equal(t, 2*time.Second, f.Backoff(2, nil))
	require.Equal(t, 4*time.Second, f.Backoff(3, nil))
	require.Equal(t, time.Minute, f.Backoff(10, nil))
}

func TestBackoffRetryAfterIsCapped(t *testing.T) {
	f, _ := newTestFetcher(t, WithBackoff(time.Second, time.Minute))
	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		resp := &http.Response{StatusCode: status, Header: http.Header{}}
		resp.Header.Set("Retry-After", "3600")
		require.Equal(t, time.Minute, f.Backoff(1, resp))

		resp.Header.Set("Retry-After", "5")
		require.Equal(t, 5*time.Second, f.Backoff(1, resp))
	}
}

func TestBackoffBaseAboveDefaultMax(t *testing.T) {
	_, s := newTestFetcher(t)
	f := New(s, WithBackoff(time.Minute, 0))
	require.Equal(t, time.Minute, f.Backoff(1, nil))
	require.Equal(t, time.Minute, f.Backoff(3, nil))
}
