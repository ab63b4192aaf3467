package s3

import (
	"context"
	"errors"
	"testing"

	"github.com/nlquery/nlquery/internal/config"
	"github.com/nlquery/nlquery/internal/storage"
)

func TestWriteUsesPrefixedKey(t *testing.T) {
	fake := newFakeBucket()
	store, err := newStore("bucket-a", "/nlquery/prod/", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	if err := store.Write(context.Background(), "/schema_tabular.json", []byte("{}"), "application/json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, ok := fake.objects["bucket-a/nlquery/prod/schema_tabular.json"]; !ok {
		t.Fatalf("objects = %v", fake.objects)
	}
	if fake.contentType != "application/json" {
		t.Fatalf("content type = %q", fake.contentType)
	}

	got, err := store.Read(context.Background(), "schema_tabular.json")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "{}" {
		t.Fatalf("Read() = %q", got)
	}
}

func TestReadMissingRecord(t *testing.T) {
	store, err := newStore("bucket-a", "", newFakeBucket())
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if _, err := store.Read(context.Background(), "schema_relational.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Read() error = %v, want ErrNotFound", err)
	}
}

func TestReadWrapsBackendErrors(t *testing.T) {
	fake := newFakeBucket()
	fake.getErr = errors.New("connection reset")
	store, err := newStore("bucket-a", "p", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	_, err = store.Read(context.Background(), "schema_relational.json")
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Read() error = %v", err)
	}
	if err.Error() != "read s3://bucket-a/p/schema_relational.json: connection reset" {
		t.Fatalf("Read() error = %q", err)
	}
}

func TestWriteRejectsPathTraversal(t *testing.T) {
	fake := newFakeBucket()
	store, err := newStore("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if err := store.Write(context.Background(), "../secrets.txt", []byte("x"), ""); err == nil {
		t.Fatal("expected path traversal validation error")
	}
	if len(fake.objects) != 0 {
		t.Fatalf("objects = %v", fake.objects)
	}
}

func TestNewStoreRequiresBucket(t *testing.T) {
	if _, err := newStore(" ", "", newFakeBucket()); err == nil {
		t.Fatal("newStore() expected error for blank bucket")
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := newFakeBucket()
	store, err := newStore("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.madeRegion != "us-east-1" {
		t.Fatalf("MakeBucket region = %q", fake.madeRegion)
	}

	fake.madeRegion = ""
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() second error = %v", err)
	}
	if fake.madeRegion != "" {
		t.Fatal("MakeBucket called for an existing bucket")
	}
}

func TestConfigFromCopiesObjectStoreSettings(t *testing.T) {
	cfg := ConfigFrom(config.ObjectStoreConfig{Endpoint: "minio:9000", Bucket: "b", Prefix: "p", UseSSL: true})
	if cfg.Endpoint != "minio:9000" || cfg.Bucket != "b" || cfg.Prefix != "p" || !cfg.UseSSL {
		t.Fatalf("ConfigFrom() = %#v", cfg)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw    string
		useSSL bool
		host   string
		secure bool
	}{
		{"https://minio.example.com", false, "minio.example.com", true},
		{"http://minio:9000", false, "minio:9000", false},
		{"minio:9000", true, "minio:9000", true},
	}
	for _, tt := range tests {
		host, secure, err := parseEndpoint(tt.raw, tt.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tt.raw, err)
		}
		if host != tt.host || secure != tt.secure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tt.raw, host, secure)
		}
	}
	if _, _, err := parseEndpoint("ftp://minio", false); err == nil {
		t.Fatal("parseEndpoint() expected error for ftp scheme")
	}
}

type fakeBucket struct {
	objects     map[string][]byte
	buckets     map[string]bool
	contentType string
	madeRegion  string
	getErr      error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, buckets: map[string]bool{}}
}

func (f *fakeBucket) PutObject(_ context.Context, bucket, key string, body []byte, contentType string) error {
	f.objects[bucket+"/"+key] = append([]byte(nil), body...)
	f.contentType = contentType
	return nil
}

func (f *fakeBucket) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return body, nil
}

func (f *fakeBucket) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeBucket) MakeBucket(_ context.Context, bucket, region string) error {
	f.buckets[bucket] = true
	f.madeRegion = region
	return nil
}
