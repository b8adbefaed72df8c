package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"adstudio/internal/domain"
)

// MinPresignTTL keeps presigned inputs alive longer than any generation run.
const MinPresignTTL = 5 * time.Minute

type objectStore interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// MinioOptions configures a MinioLocator.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	TTL       time.Duration
}

// MinioLocator uploads inline inputs to an S3-compatible bucket and hands
// the engine presigned GET URLs.
type MinioLocator struct {
	client objectStore
	bucket string
	ttl    time.Duration
}

// NewMinioLocator creates a locator backed by a MinIO client.
func NewMinioLocator(opts MinioOptions) (*MinioLocator, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("storage: minio endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}
	return newMinioLocator(client, opts.Bucket, opts.TTL), nil
}

func newMinioLocator(client objectStore, bucket string, ttl time.Duration) *MinioLocator {
	if ttl < MinPresignTTL {
		ttl = MinPresignTTL
	}
	return &MinioLocator{client: client, bucket: bucket, ttl: ttl}
}

func (l *MinioLocator) Locate(ctx context.Context, job *domain.Job) (ImageRefs, error) {
	character, err := l.ref(ctx, job, domain.ImageSlotCharacter)
	if err != nil {
		return ImageRefs{}, err
	}
	product, err := l.ref(ctx, job, domain.ImageSlotProduct)
	if err != nil {
		return ImageRefs{}, err
	}
	return ImageRefs{Character: character, Product: product}, nil
}

func (l *MinioLocator) ref(ctx context.Context, job *domain.Job, slot domain.ImageSlot) (string, error) {
	stored := job.Image(slot)
	if IsRemote(stored) {
		return stored, nil
	}
	img, err := ParseDataURI(stored)
	if err != nil {
		return "", fmt.Errorf("%s image: %w", slot, err)
	}
	key := ObjectKey(job.ID, slot, img.MIME)
	if _, err := l.client.PutObject(ctx, l.bucket, key, bytes.NewReader(img.Data), int64(len(img.Data)), minio.PutObjectOptions{
		ContentType: img.MIME,
	}); err != nil {
		return "", fmt.Errorf("upload %s image: %w", slot, err)
	}
	signed, err := l.client.PresignedGetObject(ctx, l.bucket, key, l.ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s image: %w", slot, err)
	}
	return signed.String(), nil
}

// ObjectKey is the bucket key an input image is uploaded under.
func ObjectKey(jobID string, slot domain.ImageSlot, mime string) string {
	return "jobs/" + jobID + "/" + string(slot) + extensionFor(mime)
}
