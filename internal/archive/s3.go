package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const ndjsonContentType = "application/x-ndjson"

// objectPutter is the subset of *s3.Client the destination needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures an S3Destination.
type S3Options struct {
	Bucket   string
	Key      string // object overwritten by every export
	Region   string
	Endpoint string // non-empty enables path-style addressing (MinIO and similar)

	// Snapshots additionally keeps a timestamped copy of each export next
	// to Key, under "<dir>/snapshots/".
	Snapshots bool
}

// S3Destination writes JSONL exports to an S3-compatible bucket.
type S3Destination struct {
	client objectPutter
	opts   S3Options
	now    func() time.Time
}

// NewS3Destination loads the default AWS configuration and creates a client
// for the configured bucket.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	return newS3Destination(s3.NewFromConfig(cfg, s3opts...), opts), nil
}

func newS3Destination(client objectPutter, opts S3Options) *S3Destination {
	return &S3Destination{client: client, opts: opts, now: time.Now}
}

// Write uploads data as the configured key, plus a snapshot when enabled.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	if err := d.put(ctx, d.opts.Key, data); err != nil {
		return err
	}
	if d.opts.Snapshots {
		if err := d.put(ctx, d.snapshotKey(), data); err != nil {
			return err
		}
	}
	return nil
}

func (d *S3Destination) snapshotKey() string {
	base := strings.TrimSuffix(path.Base(d.opts.Key), path.Ext(d.opts.Key))
	stamp := d.now().UTC().Format("20060102T150405Z")
	return path.Join(path.Dir(d.opts.Key), "snapshots", base+"-"+stamp+".jsonl")
}

func (d *S3Destination) put(ctx context.Context, key string, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ndjsonContentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return nil
}
