package artifacts

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStore_DefaultIsFile(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewStore(context.Background(), Config{Path: filepath.Join(tmpDir, "exports")})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	fs, ok := store.(*FileStore)
	if !ok {
		t.Fatalf("Expected *FileStore, got %T", store)
	}
	if fs.baseDir != filepath.Join(tmpDir, "exports") {
		t.Errorf("unexpected baseDir %s", fs.baseDir)
	}
}

func TestNewStore_MissingBucket(t *testing.T) {
	for _, typ := range []StoreType{StoreTypeS3, StoreTypeGCS} {
		_, err := NewStore(context.Background(), Config{Type: typ})
		if err == nil {
			t.Fatalf("%s: expected error for missing bucket", typ)
		}
		if !strings.Contains(err.Error(), "EXPORT_BUCKET is required") {
			t.Errorf("%s: unexpected error: %v", typ, err)
		}
	}
}

func TestNewStore_UnsupportedType(t *testing.T) {
	_, err := NewStore(context.Background(), Config{Type: "azure"})
	if err == nil {
		t.Fatal("Expected error for unsupported storage type")
	}
	if !strings.Contains(err.Error(), "unsupported artifact storage type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewStore_S3WithEndpoint(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	store, err := NewStore(context.Background(), Config{
		Type:     StoreTypeS3,
		Bucket:   "ledger-exports",
		Endpoint: "http://localhost:4566",
		Prefix:   "prod/",
	})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	s3s, ok := store.(*S3Store)
	if !ok {
		t.Fatalf("Expected *S3Store, got %T", store)
	}
	if s3s.bucket != "ledger-exports" || s3s.prefix != "prod/" {
		t.Errorf("unexpected S3 config: %+v", s3s)
	}
	if _, err := s3s.Store(context.Background(), "../escape", nil); err == nil {
		t.Error("expected key validation before any network call")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "exports"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()
	data := []byte(`{"format_version":"1.0.0"}`)

	loc, err := store.Store(ctx, "ledger-abc.json", data)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if !strings.HasPrefix(loc, "file://") || !strings.HasSuffix(loc, "ledger-abc.json") {
		t.Errorf("unexpected location %q", loc)
	}

	retrieved, err := store.Get(ctx, "ledger-abc.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(retrieved) != string(data) {
		t.Errorf("Expected %q, got %q", data, retrieved)
	}

	// Overwrite is allowed; the key is content-derived by callers.
	if _, err := store.Store(ctx, "ledger-abc.json", data); err != nil {
		t.Fatalf("second Store failed: %v", err)
	}
}

func TestFileStore_ExistsAndDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()

	exists, err := store.Exists(ctx, "a.json")
	if err != nil || exists {
		t.Fatalf("expected missing artifact, got exists=%v err=%v", exists, err)
	}
	if _, err := store.Store(ctx, "a.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	exists, err = store.Exists(ctx, "a.json")
	if err != nil || !exists {
		t.Fatalf("expected artifact, got exists=%v err=%v", exists, err)
	}
	if err := store.Delete(ctx, "a.json"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "a.json"); err != nil {
		t.Fatalf("deleting a missing key should succeed: %v", err)
	}
	_, err = store.Get(ctx, "a.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestValidateKey(t *testing.T) {
	valid := []string{"ledger-0a1b.json", "export_2025.json", "a"}
	invalid := []string{"", "../x", "a/b", ".hidden", "a b", strings.Repeat("x", 300)}

	for _, k := range valid {
		if err := ValidateKey(k); err != nil {
			t.Errorf("%q should be valid: %v", k, err)
		}
	}
	for _, k := range invalid {
		if err := ValidateKey(k); err == nil {
			t.Errorf("%q should be invalid", k)
		}
	}
}
