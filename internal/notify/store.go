package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ignite/stayadmin/internal/domain"
)

// TemplateStore loads notification templates by reference. Implementations
// return ErrTemplateNotFound for unknown refs.
type TemplateStore interface {
	GetTemplate(ctx context.Context, ref string) (*domain.NotificationTemplate, error)
}

// S3API is the subset of the S3 client used by S3TemplateStore.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3TemplateStore reads templates stored as JSON objects at
// <prefix>/<ref>.json, for deployments that publish templates from a
// design tool instead of the admin UI.
type S3TemplateStore struct {
	client S3API
	bucket string
	prefix string
}

// NewS3TemplateStore creates a template store over an S3 bucket.
func NewS3TemplateStore(client S3API, bucket, prefix string) *S3TemplateStore {
	return &S3TemplateStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3TemplateStore) key(ref string) string {
	return path.Join(s.prefix, ref+".json")
}

func (s *S3TemplateStore) GetTemplate(ctx context.Context, ref string) (*domain.NotificationTemplate, error) {
	if ref == "" || strings.Contains(ref, "..") {
		return nil, ErrTemplateNotFound
	}
	key := s.key(ref)

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("S3 GetObject %s/%s: %w", s.bucket, key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", key, err)
	}

	var tpl domain.NotificationTemplate
	if err := json.Unmarshal(body, &tpl); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", key, err)
	}
	if tpl.Ref == "" {
		tpl.Ref = ref
	}
	if resp.LastModified != nil && tpl.UpdatedAt.IsZero() {
		tpl.UpdatedAt = *resp.LastModified
	}
	return &tpl, nil
}
