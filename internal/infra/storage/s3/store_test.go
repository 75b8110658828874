package s3

import (
	"context"
	"strings"
	"testing"

	"modelcore/pkg/model"
)

var docSchema = model.MustSchema("doc",
	model.Field{Name: "id", Identity: true},
	model.Field{Name: "body", Default: ""},
)

func TestSaveFetchRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()

	m, err := model.New(docSchema, map[string]model.Value{"body": "object"}, model.WithStorage(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	id, _ := m.ID()
	if id != "mock-id-1" {
		t.Fatalf("expected generated identity mock-id-1, got %v", id)
	}

	loaded, err := model.New(docSchema, map[string]model.Value{"id": id}, model.WithStorage(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := loaded.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := loaded.Get("body"); got != "object" {
		t.Fatalf("expected fetched body, got %v", got)
	}

	if err := loaded.Remove(ctx); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	gone, err := model.New(docSchema, map[string]model.Value{"id": id}, model.WithStorage(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := gone.Fetch(ctx); !model.IsNotFound(err) {
		t.Fatalf("expected not-found after remove, got %v", err)
	}
}

func TestUpdateOverwritesObject(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()

	m, err := model.New(docSchema, map[string]model.Value{"body": "v1"}, model.WithStorage(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Set("body", "v2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	id, _ := m.ID()
	loaded, err := model.New(docSchema, map[string]model.Value{"id": id}, model.WithStorage(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := loaded.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := loaded.Get("body"); got != "v2" {
		t.Fatalf("expected overwritten body, got %v", got)
	}
}

func TestObjectKeyLayout(t *testing.T) {
	s := &Store{prefix: "tenants/acme"}
	m, err := model.New(docSchema, map[string]model.Value{"id": "d-1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := s.key(m, "d-1"); got != "tenants/acme/doc/d-1.json" {
		t.Fatalf("unexpected key %s", got)
	}
	bare := &Store{}
	if got := bare.key(m, "d-1"); got != "doc/d-1.json" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil || !strings.Contains(err.Error(), "bucket required") {
		t.Fatalf("expected bucket error, got %v", err)
	}
}

func TestOpenFromEnv(t *testing.T) {
	t.Setenv("MODELCORE_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("expected error without bucket")
	}

	t.Setenv("MODELCORE_S3_BUCKET", "models")
	t.Setenv("MODELCORE_S3_PREFIX", "pfx")
	t.Setenv("MODELCORE_S3_REGION", "eu-north-1")
	t.Setenv("MODELCORE_S3_ENDPOINT", "http://127.0.0.1:9000")
	t.Setenv("MODELCORE_S3_PATH_STYLE", "true")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")

	store, err := OpenFromEnv(context.Background())
	if err != nil {
		t.Fatalf("OpenFromEnv: %v", err)
	}
	if store.bucket != "models" || store.prefix != "pfx" {
		t.Fatalf("unexpected store config: bucket=%s prefix=%s", store.bucket, store.prefix)
	}
}
