package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nlquery/nlquery/internal/storage"
)

func TestGetUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "nlquery/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	reader, err := store.Get(context.Background(), "/classicmodels/customers.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = reader.Close()
	if fake.lastBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastBucket)
	}
	if fake.lastKey != "nlquery/prod/classicmodels/customers.parquet" {
		t.Fatalf("key = %q", fake.lastKey)
	}
}

func TestGetRejectsPathTraversal(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	for _, key := range []string{"../secrets.txt", "..", ""} {
		if _, err := store.Get(context.Background(), key); err == nil {
			t.Fatalf("Get(%q) expected validation error", key)
		}
	}
}

func TestStatMapsNotFound(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{statErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Stat(context.Background(), "missing.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v, want ErrObjectNotFound", err)
	}
}

func TestListReturnsKeysRelativeToPrefix(t *testing.T) {
	fake := &fakeClient{listed: []storage.ObjectInfo{
		{Key: "nlquery/orders/part-0.parquet", Size: 10},
		{Key: "nlquery/orders/part-1.parquet", Size: 12},
	}}
	store, err := NewWithClient("bucket-a", "nlquery", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	objects, err := store.List(context.Background(), "orders/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastPrefix != "nlquery/orders/" {
		t.Fatalf("prefix = %q", fake.lastPrefix)
	}
	if len(objects) != 2 || objects[0].Key != "orders/part-0.parquet" || objects[1].Key != "orders/part-1.parquet" {
		t.Fatalf("List() = %+v", objects)
	}
}

func TestListWithoutPrefixCoversStoreRoot(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "nlquery", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.List(context.Background(), ""); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastPrefix != "nlquery/" {
		t.Fatalf("prefix = %q", fake.lastPrefix)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
	endpoint, secure, err = parseEndpoint("localhost:9000", false)
	if err != nil || endpoint != "localhost:9000" || secure {
		t.Fatalf("parseEndpoint(host:port) = %q/%v/%v", endpoint, secure, err)
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	if _, err := New(Config{Bucket: "b"}); err == nil {
		t.Fatal("expected missing endpoint error")
	}
	if _, err := New(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

type fakeClient struct {
	lastBucket string
	lastKey    string
	lastPrefix string
	statErr    error
	listed     []storage.ObjectInfo
}

func (f *fakeClient) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.lastBucket = bucket
	f.lastKey = key
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	if f.statErr != nil {
		return storage.ObjectInfo{}, f.statErr
	}
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) List(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.lastPrefix = prefix
	return append([]storage.ObjectInfo(nil), f.listed...), nil
}
