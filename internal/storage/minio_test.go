package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

type fakeAPI struct {
	put        map[string][]byte
	putOpts    minio.PutObjectOptions
	putErr     error
	presignTTL time.Duration
	exists     bool
	made       []string
}

func (f *fakeAPI) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, _ := io.ReadAll(r)
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	if f.put == nil {
		f.put = make(map[string][]byte)
	}
	f.put[bucket+"/"+object] = data
	f.putOpts = opts
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func (f *fakeAPI) GetObject(context.Context, string, string, minio.GetObjectOptions) (*minio.Object, error) {
	return nil, errors.New("not reachable in tests")
}

func (f *fakeAPI) PresignedGetObject(_ context.Context, bucket, object string, expires time.Duration, _ url.Values) (*url.URL, error) {
	f.presignTTL = expires
	return url.Parse("https://s3.example.com/" + bucket + "/" + object + "?X-Amz-Signature=abc")
}

func (f *fakeAPI) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeAPI) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestUploadPresignsByDefault(t *testing.T) {
	api := &fakeAPI{}
	s := newS3Store(api, Config{}, quiet())

	u, err := s.Upload(context.Background(), "box-office", "tickets/ORD-1/TKT.pdf", []byte("%PDF"), "application/pdf")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(u, "https://s3.example.com/box-office/tickets/ORD-1/TKT.pdf?") {
		t.Fatalf("url = %q", u)
	}
	if api.putOpts.ContentType != "application/pdf" {
		t.Fatalf("content type = %q", api.putOpts.ContentType)
	}
	if api.presignTTL != maxPresign {
		t.Fatalf("presign ttl = %v", api.presignTTL)
	}
}

func TestUploadWithPublicBase(t *testing.T) {
	api := &fakeAPI{}
	s := newS3Store(api, Config{PublicBaseURL: "https://cdn.studio.example/"}, quiet())
	u, err := s.Upload(context.Background(), "box-office", "tickets/a.pdf", []byte("x"), "application/pdf")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if u != "https://cdn.studio.example/box-office/tickets/a.pdf" {
		t.Fatalf("url = %q", u)
	}
}

func TestUploadError(t *testing.T) {
	s := newS3Store(&fakeAPI{putErr: errors.New("denied")}, Config{}, quiet())
	if _, err := s.Upload(context.Background(), "b", "p", []byte("x"), "text/plain"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEnsureBucket(t *testing.T) {
	api := &fakeAPI{}
	s := newS3Store(api, Config{}, quiet())
	if err := s.EnsureBucket(context.Background(), "box-office"); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	if len(api.made) != 1 {
		t.Fatalf("made = %v", api.made)
	}
	api.exists = true
	if err := s.EnsureBucket(context.Background(), "box-office"); err != nil || len(api.made) != 1 {
		t.Fatalf("existing bucket recreated: %v %v", err, api.made)
	}
}
