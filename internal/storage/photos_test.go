package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyage/internal/types"
)

type fakePresigner struct {
	inputs []*s3.PutObjectInput
	url    string
	err    error
}

func (f *fakePresigner) PresignPutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: f.url, Method: "PUT"}, nil
}

type fakeDeleter struct {
	keys []string
	err  error
}

func (f *fakeDeleter) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.keys = append(f.keys, *params.Key)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.DeleteObjectOutput{}, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var storageTestNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(presigner Presigner, deleter ObjectDeleter) *PhotoStore {
	return NewPhotoStore(presigner, deleter, PhotoStoreConfig{
		Bucket:       "voyage-photos",
		Region:       "eu-west-1",
		UploadURLTTL: 15 * time.Minute,
		MaxBytes:     10 << 20,
	}, fixedClock{now: storageTestNow}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIssueUploadURL_Success(t *testing.T) {
	presigner := &fakePresigner{url: "https://signed.example/put"}
	store := newTestStore(presigner, &fakeDeleter{})

	ticket, err := store.IssueUploadURL(context.Background(), "acct_1", "voy_1", "image/jpeg", 1024)
	require.NoError(t, err)

	assert.Equal(t, "https://signed.example/put", ticket.UploadURL)
	assert.Equal(t, storageTestNow.Add(15*time.Minute), ticket.ExpiresAt)
	assert.True(t, strings.HasPrefix(ticket.PhotoURL, "https://voyage-photos.s3.eu-west-1.amazonaws.com/photos/acct_1/voy_1/"))
	assert.True(t, strings.HasSuffix(ticket.PhotoURL, ".jpg"))

	require.Len(t, presigner.inputs, 1)
	input := presigner.inputs[0]
	assert.Equal(t, "voyage-photos", *input.Bucket)
	assert.Equal(t, "image/jpeg", *input.ContentType)
	assert.Equal(t, int64(1024), *input.ContentLength)
}

func TestIssueUploadURL_RejectsUnsupportedContentType(t *testing.T) {
	presigner := &fakePresigner{url: "https://signed.example/put"}
	store := newTestStore(presigner, &fakeDeleter{})

	_, err := store.IssueUploadURL(context.Background(), "acct_1", "voy_1", "application/pdf", 1024)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
	assert.Empty(t, presigner.inputs)
}

func TestIssueUploadURL_RejectsOversizedUpload(t *testing.T) {
	store := newTestStore(&fakePresigner{}, &fakeDeleter{})

	_, err := store.IssueUploadURL(context.Background(), "acct_1", "voy_1", "image/png", (10<<20)+1)
	require.Error(t, err)

	_, err = store.IssueUploadURL(context.Background(), "acct_1", "voy_1", "image/png", 0)
	require.Error(t, err)
}

func TestIssueUploadURL_PresignFailure(t *testing.T) {
	presigner := &fakePresigner{err: errors.New("credentials expired")}
	store := newTestStore(presigner, &fakeDeleter{})

	_, err := store.IssueUploadURL(context.Background(), "acct_1", "voy_1", "image/webp", 512)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamStorage, appErr.Code)
}

func TestDeletePhoto_Success(t *testing.T) {
	deleter := &fakeDeleter{}
	store := newTestStore(&fakePresigner{}, deleter)

	url := "https://voyage-photos.s3.eu-west-1.amazonaws.com/photos/acct_1/voy_1/abc.jpg"
	require.NoError(t, store.DeletePhoto(context.Background(), url))

	require.Len(t, deleter.keys, 1)
	assert.Equal(t, "photos/acct_1/voy_1/abc.jpg", deleter.keys[0])
}

func TestDeletePhoto_RejectsForeignURL(t *testing.T) {
	deleter := &fakeDeleter{}
	store := newTestStore(&fakePresigner{}, deleter)

	err := store.DeletePhoto(context.Background(), "https://evil.example/photos/x.jpg")
	require.Error(t, err)
	assert.Empty(t, deleter.keys)
}

func TestDeletePhoto_DeleteFailure(t *testing.T) {
	deleter := &fakeDeleter{err: errors.New("access denied")}
	store := newTestStore(&fakePresigner{}, deleter)

	err := store.DeletePhoto(context.Background(), store.PublicURL("photos/a/b/c.png"))
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamStorage, appErr.Code)
}
