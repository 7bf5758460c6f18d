package objstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dylanlee/wncat/internal/retry"
)

// UploadFileWithRetry uploads path to key, retrying transient failures under
// policy. Missing credentials abort immediately. On success it returns the
// public URL of key.
func UploadFileWithRetry(ctx context.Context, s Store, policy *retry.Policy, path, key, contentType string) (string, error) {
	op := fmt.Sprintf("upload %s to s3://%s/%s", path, s.Bucket(), key)
	err := policy.Do(ctx, op, func(ctx context.Context) error {
		err := s.UploadFile(ctx, path, key, contentType)
		if errors.Is(err, ErrMissingCredentials) {
			return retry.NonRetryable(err)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return s.URL(key), nil
}

// PutWithRetry writes data to key under policy.
func PutWithRetry(ctx context.Context, s Store, policy *retry.Policy, key string, data []byte, contentType string) error {
	op := fmt.Sprintf("put s3://%s/%s", s.Bucket(), key)
	return policy.Do(ctx, op, func(ctx context.Context) error {
		err := s.Put(ctx, key, data, contentType)
		if errors.Is(err, ErrMissingCredentials) {
			return retry.NonRetryable(err)
		}
		return err
	})
}
