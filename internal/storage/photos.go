// Package storage handles photo uploads for voyage entries. Clients never
// stream image bytes through the API; they receive a presigned S3 PUT URL
// and upload directly, then attach the resulting object URL to the entry.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"voyage/internal/types"
)

// allowedContentTypes maps accepted image MIME types to their canonical
// object key extension.
var allowedContentTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Presigner abstracts the S3 presign operations for testability.
// Production code uses *s3.PresignClient.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ObjectDeleter abstracts object deletion. Production code uses *s3.Client.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// PhotoStoreConfig holds the configuration for a PhotoStore.
type PhotoStoreConfig struct {
	Bucket       string
	Region       string
	UploadURLTTL time.Duration
	MaxBytes     int64
}

// UploadTicket is what the client receives: a short-lived presigned PUT URL
// and the public URL the object will have once uploaded.
type UploadTicket struct {
	UploadURL string    `json:"upload_url"`
	PhotoURL  string    `json:"photo_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PhotoStore issues presigned upload URLs and deletes voyage photos.
type PhotoStore struct {
	presigner Presigner
	deleter   ObjectDeleter
	cfg       PhotoStoreConfig
	clock     types.Clock
	logger    *slog.Logger
}

// NewPhotoStore creates a PhotoStore. If clock is nil, RealClock is used.
func NewPhotoStore(
	presigner Presigner,
	deleter ObjectDeleter,
	cfg PhotoStoreConfig,
	clock types.Clock,
	logger *slog.Logger,
) *PhotoStore {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PhotoStore{
		presigner: presigner,
		deleter:   deleter,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
	}
}

// IssueUploadURL creates a presigned PUT URL for a new photo on a voyage.
// The caller must have already passed the per-entry image quota check; this
// method only validates the upload itself (content type, size).
func (s *PhotoStore) IssueUploadURL(ctx context.Context, accountID, voyageID, contentType string, sizeBytes int64) (*UploadTicket, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"unsupported image content type",
			nil,
			map[string]any{"content_type": contentType},
		)
	}

	if sizeBytes <= 0 || sizeBytes > s.cfg.MaxBytes {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			fmt.Sprintf("image size must be between 1 and %d bytes", s.cfg.MaxBytes),
			nil,
			map[string]any{"size_bytes": sizeBytes},
		)
	}

	key := path.Join("photos", accountID, voyageID, uuid.NewString()+"."+ext)

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(sizeBytes),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.cfg.UploadURLTTL
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStorage, "failed to presign photo upload", err)
	}

	return &UploadTicket{
		UploadURL: req.URL,
		PhotoURL:  s.PublicURL(key),
		ExpiresAt: s.clock.Now().Add(s.cfg.UploadURLTTL),
	}, nil
}

// DeletePhoto removes a photo object given its public URL. Unknown URLs are
// rejected rather than silently ignored; a URL outside our bucket indicates
// a caller bug.
func (s *PhotoStore) DeletePhoto(ctx context.Context, photoURL string) error {
	key, ok := s.keyFromURL(photoURL)
	if !ok {
		return types.NewAppError(types.ErrCodeValidationMissingField, "photo URL does not belong to this bucket", nil)
	}

	_, err := s.deleter.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStorage, "failed to delete photo", err)
	}

	s.logger.InfoContext(ctx, "photo deleted", "key", key)
	return nil
}

// PublicURL returns the canonical object URL for a key.
func (s *PhotoStore) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// keyFromURL reverses PublicURL. Returns false if the URL is not in this
// store's bucket.
func (s *PhotoStore) keyFromURL(photoURL string) (string, bool) {
	prefix := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.cfg.Bucket, s.cfg.Region)
	if !strings.HasPrefix(photoURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(photoURL, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}
