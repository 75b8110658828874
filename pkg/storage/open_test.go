package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"modelcore/internal/infra/storage/memory"
	"modelcore/internal/infra/storage/postgres"
	s3store "modelcore/internal/infra/storage/s3"
	"modelcore/internal/infra/storage/sqlite"
)

func TestOpenDefaultsToMemory(t *testing.T) {
	t.Setenv("MODELCORE_STORAGE_DRIVER", "")
	s, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
}

func TestOpenSQLite(t *testing.T) {
	t.Setenv("MODELCORE_STORAGE_DRIVER", string(DriverSQLite))
	t.Setenv("MODELCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "state.db"))
	s, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store, ok := s.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", s)
	}
	_ = store.Close()
}

func TestOpenPostgresPropagatesFailure(t *testing.T) {
	t.Setenv("MODELCORE_STORAGE_DRIVER", string(DriverPostgres))
	t.Setenv("MODELCORE_POSTGRES_DSN", "postgres://example/db")
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("refused")
	})
	defer restore()

	if _, err := Open(context.Background()); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected postgres open failure, got %v", err)
	}
}

func TestOpenS3RequiresBucket(t *testing.T) {
	t.Setenv("MODELCORE_STORAGE_DRIVER", string(DriverS3))
	t.Setenv("MODELCORE_S3_BUCKET", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected bucket error")
	}

	t.Setenv("MODELCORE_S3_BUCKET", "models")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	s, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(*s3store.Store); !ok {
		t.Fatalf("expected s3 store, got %T", s)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Setenv("MODELCORE_STORAGE_DRIVER", "tape")
	if _, err := Open(context.Background()); err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}
