package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Lister lists a public bucket under a date-partitioned prefix.
type S3Lister struct {
	client         s3.ListObjectsV2APIClient
	bucket         string
	prefixTemplate string
	extension      string
	logger         *slog.Logger
}

// NewS3Lister creates a lister that reads bucket anonymously.
func NewS3Lister(ctx context.Context, bucket, region, prefixTemplate, extension string) (*S3Lister, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3ListerWithClient(s3.NewFromConfig(awsCfg), bucket, prefixTemplate, extension), nil
}

// NewS3ListerWithClient wraps an existing listing client.
func NewS3ListerWithClient(client s3.ListObjectsV2APIClient, bucket, prefixTemplate, extension string) *S3Lister {
	return &S3Lister{
		client:         client,
		bucket:         bucket,
		prefixTemplate: prefixTemplate,
		extension:      strings.ToLower(extension),
		logger:         slog.Default(),
	}
}

// WithLogger sets a custom logger for the lister.
func (l *S3Lister) WithLogger(logger *slog.Logger) *S3Lister {
	if logger != nil {
		l.logger = logger
	}
	return l
}

func (l *S3Lister) List(ctx context.Context, day time.Time) ([]string, error) {
	prefix := ExpandPrefix(l.prefixTemplate, day)

	var urls []string
	paginator := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", l.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(strings.ToLower(key), l.extension) {
				continue
			}
			urls = append(urls, fmt.Sprintf("https://%s.s3.amazonaws.com/%s", l.bucket, key))
		}
	}
	sort.Strings(urls)

	l.logger.DebugContext(ctx, "source prefix listed",
		slog.String("bucket", l.bucket),
		slog.String("prefix", prefix),
		slog.Int("matches", len(urls)),
	)
	return urls, nil
}
