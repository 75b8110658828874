// Package storage selects a concrete persistence backend for models using
// environment variables.
package storage

import (
	"context"
	"fmt"
	"os"

	"modelcore/internal/infra/storage/memory"
	"modelcore/internal/infra/storage/postgres"
	s3store "modelcore/internal/infra/storage/s3"
	"modelcore/internal/infra/storage/sqlite"
	"modelcore/pkg/model"
)

// Driver identifies a concrete storage implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
	DriverS3       Driver = "s3"       // S3-compatible object storage
)

// Open selects a backend using environment variables. Defaults to memory
// when unset.
//
//	MODELCORE_STORAGE_DRIVER: memory|sqlite|postgres|s3 (default memory)
//	MODELCORE_SQLITE_PATH: path to sqlite file (default ./modelcore.db)
//	MODELCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	MODELCORE_S3_*: bucket configuration when driver=s3
func Open(ctx context.Context) (model.Storage, error) {
	driver := os.Getenv("MODELCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(DriverMemory)
	}
	switch Driver(driver) {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(os.Getenv("MODELCORE_SQLITE_PATH"))
	case DriverPostgres:
		return postgres.NewStore(os.Getenv("MODELCORE_POSTGRES_DSN"))
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
