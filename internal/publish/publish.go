// Package publish uploads the mirror tree to an S3 compatible bucket.
package publish

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/go-semantic-release/asset-mirror/internal/hasher"
	"github.com/go-semantic-release/asset-mirror/internal/layout"
	"github.com/go-semantic-release/asset-mirror/internal/metrics"
	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats"
)

type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Report struct {
	Uploaded int `json:"uploaded"`
	Skipped  int `json:"skipped"`
}

type Publisher struct {
	client S3API
	bucket string
	prefix string
	store  *store.Store
	log    *logrus.Entry
}

func New(client S3API, bucket, prefix string, s *store.Store, log *logrus.Entry) *Publisher {
	return &Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		store:  s,
		log:    log,
	}
}

func (p *Publisher) key(rel string) string {
	if p.prefix == "" {
		return rel
	}
	return path.Join(p.prefix, rel)
}

// Publish uploads every file of the tree that is missing in the bucket. The
// manifest is always uploaded. Failures of single files do not stop the
// upload of the others and are returned together.
func (p *Publisher) Publish(ctx context.Context) (Report, error) {
	files := make([]string, 0)
	err := p.store.Walk(func(rel string, _ os.FileInfo) error {
		if !publishable(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("failed to list mirror files: %w", err)
	}

	var (
		report Report
		errs   []error
	)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		uploaded, err := p.publishFile(ctx, rel)
		if err != nil {
			p.log.WithField("key", p.key(rel)).Errorf("failed to publish: %v", err)
			errs = append(errs, fmt.Errorf("%s: %w", rel, err))
			continue
		}
		if !uploaded {
			report.Skipped++
			continue
		}
		report.Uploaded++
		stats.Record(ctx, metrics.CounterPublished.M(1))
	}
	p.log.Infof("published %d files to %s (%d already present)", report.Uploaded, p.bucket, report.Skipped)
	return report, errors.Join(errs...)
}

func publishable(rel string) bool {
	parts := strings.Split(rel, "/")
	if len(parts) == 1 {
		return rel == layout.ManifestFileName
	}
	if layout.IsReservedDir(parts[0]) {
		return false
	}
	return !strings.HasPrefix(parts[len(parts)-1], ".")
}

func (p *Publisher) exists(ctx context.Context, key string) (bool, error) {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}
	return false, fmt.Errorf("could not check if object exists: %w", err)
}

func (p *Publisher) publishFile(ctx context.Context, rel string) (bool, error) {
	key := p.key(rel)
	if rel != layout.ManifestFileName {
		found, err := p.exists(ctx, key)
		if err != nil {
			return false, err
		}
		if found {
			return false, nil
		}
	}

	f, err := p.store.Open(rel)
	if err != nil {
		return false, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return false, err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		ContentType:   aws.String(contentType(rel)),
	}
	if rel == layout.ManifestFileName {
		input.CacheControl = aws.String("no-cache")
	}
	if checksum := p.checksum(rel); checksum != "" {
		input.Metadata = map[string]string{"checksum": checksum}
	}
	if _, err := p.client.PutObject(ctx, input); err != nil {
		return false, fmt.Errorf("could not upload object: %w", err)
	}
	p.log.WithField("key", key).Debug("uploaded object")
	return true, nil
}

// checksum returns the sha256 digest written next to an asset, if any.
func (p *Publisher) checksum(rel string) string {
	if hasher.IsArtifact(rel) {
		return ""
	}
	data, err := p.store.ReadFile(rel + "." + hasher.SHA256.Extension)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func contentType(rel string) string {
	if hasher.IsArtifact(rel) {
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
