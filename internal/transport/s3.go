package transport

import (
	"context"
	"fmt"
	"strings"

	"cmipsync/internal/core/types"
	"cmipsync/internal/transfer"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Object is one listed object.
type S3Object struct {
	Key  string
	Size types.Bytes
	ETag string
}

// S3Transfer lists and downloads objects from one bucket.
type S3Transfer struct {
	bucket   string
	s3Client s3iface.S3API
}

// NewS3Session builds a session for the configured region. Public mirrors
// are read with anonymous credentials so no AWS account is needed.
func NewS3Session(cfg types.CatalogConfig) (*session.Session, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if types.Bool(cfg.Public, true) {
		awsCfg = awsCfg.WithCredentials(credentials.AnonymousCredentials)
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsCfg,
		Profile:           cfg.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return sess, nil
}

// NewS3Transfer creates a new S3 transfer instance
func NewS3Transfer(client s3iface.S3API, bucket string) *S3Transfer {
	return &S3Transfer{
		bucket:   bucket,
		s3Client: client,
	}
}

// ListPrefixes returns the common prefixes directly below prefix.
func (t *S3Transfer) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	var prefixes []string
	err := t.s3Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(t.bucket),
		Prefix:    aws.String(withSlash(prefix)),
		Delimiter: aws.String("/"),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, p := range page.CommonPrefixes {
			prefixes = append(prefixes, strings.TrimSuffix(aws.StringValue(p.Prefix), "/"))
		}
		return !lastPage
	})
	if err != nil {
		return nil, err
	}
	return prefixes, nil
}

// ListObjects returns every object below prefix.
func (t *S3Transfer) ListObjects(ctx context.Context, prefix string) ([]S3Object, error) {
	var objects []S3Object

	err := t.s3Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(t.bucket),
		Prefix: aws.String(withSlash(prefix)),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			o := S3Object{Key: aws.StringValue(obj.Key)}
			if obj.Size != nil {
				o.Size = types.Bytes(*obj.Size)
			}
			// S3 ETags for single-part uploads are MD5 sums enclosed in quotes
			o.ETag = strings.Trim(aws.StringValue(obj.ETag), "\"")
			objects = append(objects, o)
		}
		return !lastPage
	})

	if err != nil {
		return nil, err
	}

	return objects, nil
}

// DownloadObject streams one object to destPath.
func (t *S3Transfer) DownloadObject(ctx context.Context, key, destPath string, opts transfer.FileOptions) (int64, error) {
	out, err := t.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, err
	}
	defer out.Body.Close()

	return transfer.ToFile(ctx, out.Body, destPath, opts)
}

func withSlash(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}
