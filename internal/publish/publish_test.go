package publish

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	mu        sync.Mutex
	existing  map[string]bool
	uploads   map[string]string
	checksums map[string]string
	failPut   string
}

func (b *fakeBucket) handler(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/test/")
	switch r.Method {
	case http.MethodHead:
		if b.existing[key] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		if key == b.failPut {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		data, _ := io.ReadAll(r.Body)
		b.uploads[key] = string(data)
		b.checksums[key] = r.Header.Get("X-Amz-Meta-Checksum")
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func createS3Client(t *testing.T, b *fakeBucket) (*s3.Client, func()) {
	ts := httptest.NewServer(http.HandlerFunc(b.handler))
	s3Cfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
		awsConfig.WithRegion("auto"),
		awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               ts.URL,
				HostnameImmutable: true,
			}, nil
		})),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)
	return s3.NewFromConfig(s3Cfg), ts.Close
}

func newTestPublisher(t *testing.T, b *fakeBucket) (*Publisher, func()) {
	fs := afero.NewMemMapFs()
	for name, content := range map[string]string{
		"packages.json":              `{"repositories":[]}`,
		"tool/v1.0.0/tool":           "binary",
		"tool/v1.0.0/tool.sha256":    "abc123",
		"tool/v1.0.0/.tool.tmp-1234": "partial",
		"tool/v0.9.0/tool":           "old binary",
		".mirror/repositories.json":  "{}",
		".git/HEAD":                  "ref",
		"notes.txt":                  "ignored",
	} {
		require.NoError(t, afero.WriteFile(fs, "/mirror/"+name, []byte(content), 0o644))
	}
	client, closeFn := createS3Client(t, b)
	log := logrus.New()
	log.Out = io.Discard
	return New(client, "test", "", store.NewWithFs(fs, "/mirror"), logrus.NewEntry(log)), closeFn
}

func TestPublish(t *testing.T) {
	b := &fakeBucket{
		existing:  map[string]bool{"tool/v0.9.0/tool": true, "packages.json": true},
		uploads:   map[string]string{},
		checksums: map[string]string{},
	}
	p, closeFn := newTestPublisher(t, b)
	defer closeFn()

	report, err := p.Publish(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Uploaded: 3, Skipped: 1}, report)
	require.Equal(t, map[string]string{
		"packages.json":           `{"repositories":[]}`,
		"tool/v1.0.0/tool":        "binary",
		"tool/v1.0.0/tool.sha256": "abc123",
	}, b.uploads)
	require.Equal(t, "abc123", b.checksums["tool/v1.0.0/tool"])
}

func TestPublishIsolatesFailures(t *testing.T) {
	b := &fakeBucket{
		existing:  map[string]bool{},
		uploads:   map[string]string{},
		checksums: map[string]string{},
		failPut:   "tool/v1.0.0/tool",
	}
	p, closeFn := newTestPublisher(t, b)
	defer closeFn()

	report, err := p.Publish(context.Background())
	require.ErrorContains(t, err, "tool/v1.0.0/tool")
	require.Equal(t, 3, report.Uploaded)
	require.Contains(t, b.uploads, "tool/v0.9.0/tool")
	require.Contains(t, b.uploads, "packages.json")
}

func TestPublishable(t *testing.T) {
	require.True(t, publishable("packages.json"))
	require.True(t, publishable("tool/v1.0.0/tool.md5"))
	require.False(t, publishable("index.html"))
	require.False(t, publishable(".mirror/repositories.json"))
	require.False(t, publishable("tool/v1.0.0/.tool.tmp-1"))
}

func TestKeyPrefix(t *testing.T) {
	p := New(nil, "bucket", "/mirror/", nil, nil)
	require.Equal(t, "mirror/tool/v1.0.0/tool", p.key("tool/v1.0.0/tool"))
}
