package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Config configures an S3-backed store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	// PublicBaseURL overrides https://<bucket>.s3.amazonaws.com in hrefs.
	PublicBaseURL string
}

// S3 is a Store over an S3 bucket.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	baseURL  string
	logger   *slog.Logger
}

// NewS3 creates a store using the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3WithClient(client, cfg), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client *s3.Client, cfg S3Config) *S3 {
	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.Bucket)
	}
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		baseURL:  baseURL,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger for the store.
func (s *S3) WithLogger(logger *slog.Logger) *S3 {
	s.logger = logger
	return s
}

func (s *S3) Probe(ctx context.Context, key string) (Presence, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return Exists, nil
	}
	if isNotFound(err) {
		return NotFound, nil
	}
	s.logger.ErrorContext(ctx, "existence probe failed",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
	return ProbeFailed, classify(fmt.Errorf("head s3://%s/%s: %w", s.bucket, key, err))
}

func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, ErrNotFound)
		}
		return nil, classify(fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return classify(fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err))
	}
	s.logger.DebugContext(ctx, "object written",
		slog.String("key", key),
		slog.Int("bytes", len(data)),
	)
	return nil
}

func (s *S3) UploadFile(ctx context.Context, path, key, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return classify(fmt.Errorf("upload %s to s3://%s/%s: %w", path, s.bucket, key, err))
	}
	return nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err))
		}
		for _, obj := range page.Contents {
			o := Object{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				o.LastModified = *obj.LastModified
			}
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(fmt.Errorf("delete s3://%s/%s: %w", s.bucket, key, err))
	}
	return nil
}

func (s *S3) URL(key string) string {
	return s.baseURL + "/" + key
}

func (s *S3) Bucket() string {
	return s.bucket
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	// HeadObject has no body, so some endpoints surface only the status code.
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// classify marks credential failures with ErrMissingCredentials. The SDK
// reports them from the signing middleware as plain wrapped errors.
func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "failed to retrieve credentials") ||
		strings.Contains(msg, "no valid providers in chain") ||
		strings.Contains(msg, "NoCredentialProviders") {
		return fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}
	return err
}
