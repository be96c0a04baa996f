package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/neurobridge-studygen/internal/platform/envutil"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

// maxTextObjectBytes bounds a single extracted-text object.
const maxTextObjectBytes = 64 << 20

// TextBucket reads already-extracted plain text that upstream extractors wrote to GCS.
type TextBucket interface {
	ReadText(ctx context.Context, key string) (string, error)
	Close() error
}

type textBucket struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

// NewTextBucketFromEnv returns (nil, nil) when GCS_TEXT_BUCKET is unset.
// STORAGE_EMULATOR_HOST switches to an unauthenticated emulator client.
func NewTextBucketFromEnv(ctx context.Context, log *logger.Logger) (TextBucket, error) {
	if log == nil {
		return nil, fmt.Errorf("gcp: logger required")
	}
	bucket := envutil.String("GCS_TEXT_BUCKET", "")
	if bucket == "" {
		return nil, nil
	}

	var opts []option.ClientOption
	if emu := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")); emu != "" {
		opts = append(opts, option.WithoutAuthentication())
	} else {
		if credPath := envutil.String("GOOGLE_APPLICATION_CREDENTIALS", ""); credPath != "" {
			opts = append(opts, option.WithCredentialsFile(credPath))
		}
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcp: create storage client: %w", err)
	}
	log.Info("GCS text bucket initialized", "bucket", bucket)
	return &textBucket{log: log.With("client", "TextBucket"), client: client, bucket: bucket}, nil
}

func (b *textBucket) ReadText(ctx context.Context, key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("gcp: empty object key")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("gcp: open %s/%s: %w", b.bucket, key, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(io.LimitReader(r, maxTextObjectBytes+1))
	if err != nil {
		return "", fmt.Errorf("gcp: read %s/%s: %w", b.bucket, key, err)
	}
	if len(raw) > maxTextObjectBytes {
		return "", fmt.Errorf("gcp: object %s/%s exceeds %d bytes", b.bucket, key, maxTextObjectBytes)
	}
	b.log.Debug("read text object", "key", key, "bytes", len(raw))
	return string(raw), nil
}

func (b *textBucket) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
