// Package blobstore uploads tree photos to object storage. Azure Blob, S3 and
// the local filesystem are supported; the provider is chosen from config.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"canopy/internal/config"
)

// ErrNotConfigured is returned when no provider is set up.
var ErrNotConfigured = errors.New("blob storage not configured")

// Store uploads an object and returns its public URL.
type Store interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	Provider() string
}

// New builds the store selected by cfg. It returns (nil, nil) when no provider
// is configured; callers treat a nil Store as "uploads disabled".
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.ResolvedBlobProvider() {
	case "":
		return nil, nil
	case "azure":
		return NewAzure(cfg.AzureConnectionString, cfg.AzureContainerName)
	case "s3":
		return NewS3(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
	case "local":
		return NewLocal(cfg.LocalBlobDir, cfg.LocalBlobBaseURL)
	default:
		return nil, fmt.Errorf("unsupported blob provider %q", cfg.BlobProvider)
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectName builds the stored name for an uploaded file:
// plant-<unix millis>-<sanitized original name>.
func ObjectName(original string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	base = unsafeNameChars.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-.")
	if base == "" {
		base = "image"
	}
	return fmt.Sprintf("plant-%d-%s", now.UnixMilli(), base)
}
