package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"adstudio/internal/domain"
)

func TestParseDataURI(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		wantMIME string
		wantData string
		wantErr  error
	}{
		{name: "jpeg data uri", in: "data:image/jpeg;base64,aGVsbG8=", wantMIME: "image/jpeg", wantData: "hello"},
		{name: "bare base64 defaults to png", in: "aGVsbG8=", wantMIME: "image/png", wantData: "hello"},
		{name: "unpadded", in: "data:image/webp;base64,aGVsbG8", wantMIME: "image/webp", wantData: "hello"},
		{name: "wrapped lines", in: "aGVs\nbG8=", wantMIME: "image/png", wantData: "hello"},
		{name: "empty", in: "  ", wantErr: ErrEmptyImage},
		{name: "garbage", in: "!!!not base64!!!", wantErr: ErrInvalidData},
		{name: "bad header", in: "data:image/png,aGVsbG8=", wantErr: ErrInvalidData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img, err := ParseDataURI(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if img.MIME != tc.wantMIME || string(img.Data) != tc.wantData {
				t.Fatalf("got %s %q, want %s %q", img.MIME, img.Data, tc.wantMIME, tc.wantData)
			}
		})
	}
}

func TestEncodeDataURIRoundTrip(t *testing.T) {
	uri := EncodeDataURI("image/gif", []byte("GIF89a"))
	img, err := ParseDataURI(uri)
	if err != nil {
		t.Fatalf("ParseDataURI error: %v", err)
	}
	if img.MIME != "image/gif" || string(img.Data) != "GIF89a" {
		t.Fatalf("unexpected image: %+v", img)
	}
}

func testJob() *domain.Job {
	return &domain.Job{
		ID:             "7d4f6c1e-8f61-4b7e-9e0c-2d1f7a3b9c10",
		CharacterImage: "data:image/jpeg;base64,aGVsbG8=",
		ProductImage:   "HTTPS://cdn.example.com/mug.png",
	}
}

func TestPublicLocator(t *testing.T) {
	l, err := NewPublicLocator("https://api.example.com/")
	if err != nil {
		t.Fatalf("NewPublicLocator error: %v", err)
	}
	refs, err := l.Locate(context.Background(), testJob())
	if err != nil {
		t.Fatalf("Locate error: %v", err)
	}
	want := "https://api.example.com/v1/jobs/7d4f6c1e-8f61-4b7e-9e0c-2d1f7a3b9c10/images/character"
	if refs.Character != want {
		t.Fatalf("character = %s, want %s", refs.Character, want)
	}
	if refs.Product != "HTTPS://cdn.example.com/mug.png" {
		t.Fatalf("remote product ref was rewritten: %s", refs.Product)
	}
}

func TestNewPublicLocatorRejectsRelative(t *testing.T) {
	if _, err := NewPublicLocator("/just/a/path"); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}

type fakeObjectStore struct {
	puts    map[string][]byte
	types   map[string]string
	expires time.Duration
	putErr  error
}

func (f *fakeObjectStore) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return minio.UploadInfo{}, err
	}
	f.puts[bucket+"/"+object] = buf.Bytes()
	f.types[bucket+"/"+object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func (f *fakeObjectStore) PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	f.expires = expires
	return url.Parse("https://minio.example.com/" + bucket + "/" + object + "?X-Amz-Signature=abc")
}

func TestMinioLocatorUploadsInlineImages(t *testing.T) {
	store := &fakeObjectStore{puts: map[string][]byte{}, types: map[string]string{}}
	l := newMinioLocator(store, "job-inputs", time.Minute)

	refs, err := l.Locate(context.Background(), testJob())
	if err != nil {
		t.Fatalf("Locate error: %v", err)
	}
	key := "job-inputs/jobs/7d4f6c1e-8f61-4b7e-9e0c-2d1f7a3b9c10/character.jpg"
	if string(store.puts[key]) != "hello" || store.types[key] != "image/jpeg" {
		t.Fatalf("unexpected upload: %v %v", store.puts, store.types)
	}
	if !strings.HasPrefix(refs.Character, "https://minio.example.com/job-inputs/jobs/") {
		t.Fatalf("character ref = %s", refs.Character)
	}
	if refs.Product != "HTTPS://cdn.example.com/mug.png" {
		t.Fatalf("product ref = %s", refs.Product)
	}
	if store.expires != MinPresignTTL {
		t.Fatalf("presign ttl = %s, want %s", store.expires, MinPresignTTL)
	}
}

func TestMinioLocatorUploadFailure(t *testing.T) {
	store := &fakeObjectStore{puts: map[string][]byte{}, types: map[string]string{}, putErr: errors.New("bucket gone")}
	l := newMinioLocator(store, "job-inputs", time.Hour)
	if _, err := l.Locate(context.Background(), testJob()); err == nil {
		t.Fatalf("expected upload failure")
	}
}
