package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"modelcore/pkg/model"
)

var entrySchema = model.MustSchema("entry",
	model.Field{Name: "id", Identity: true},
	model.Field{Name: "body", Default: ""},
)

func TestNewStoreAppliesDDLAndHydratesSnapshot(t *testing.T) {
	db, conn := newStubDB()
	seed := map[string]map[string]model.Value{
		"entry": {"e-1": map[string]model.Value{"id": "e-1", "body": "seeded"}},
	}
	payload, err := json.Marshal(seed["entry"])
	if err != nil {
		t.Fatalf("seed payload: %v", err)
	}
	conn.state["entry"] = payload

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var sawDDL bool
	for _, stmt := range conn.execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
			break
		}
	}
	if !sawDDL {
		t.Fatalf("expected state DDL, got execs: %v", conn.execs)
	}

	m, err := model.New(entrySchema, map[string]model.Value{"id": "e-1"}, model.WithStorage(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := m.Get("body"); got != "seeded" {
		t.Fatalf("expected hydrated body, got %v", got)
	}
}

func TestMutationsSnapshotToPostgres(t *testing.T) {
	ctx := context.Background()
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("postgres://ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	m, err := model.New(entrySchema, map[string]model.Value{"body": "v1"}, model.WithStorage(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	payload, ok := conn.state["entry"]
	if !ok {
		t.Fatalf("expected persisted entry bucket, got %v", conn.state)
	}
	var docs map[string]map[string]model.Value
	if err := json.Unmarshal(payload, &docs); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one document, got %v", docs)
	}
	for _, doc := range docs {
		if doc["body"] != "v1" {
			t.Fatalf("unexpected document %v", doc)
		}
	}

	if err := m.Remove(ctx); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	docs = nil
	if err := json.Unmarshal(conn.state["entry"], &docs); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty bucket after remove, got %v", docs)
	}
}

func TestNewStoreOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("refused")
	})
	defer restore()

	if _, err := NewStore(""); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open failure, got %v", err)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := newStubDB()
	conn.failPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	if _, err := NewStore(""); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

func TestNewStoreDDLFailure(t *testing.T) {
	db, conn := newStubDB()
	conn.failExec = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	if _, err := NewStore(""); err == nil || !strings.Contains(err.Error(), "ensure state table") {
		t.Fatalf("expected DDL failure, got %v", err)
	}
}

// stubConn is an in-memory database/sql driver recording the statements the
// store issues and holding one payload per bucket.
type stubConn struct {
	execs    []string
	state    map[string][]byte
	failPing bool
	failExec bool
}

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{state: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *stubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stubTx{}, nil
}

func (c *stubConn) Ping(context.Context) error {
	if c.failPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.execs = append(c.execs, query)
	if c.failExec {
		return nil, fmt.Errorf("exec fail")
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO STATE") {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected bucket and payload args, got %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket must be a string, got %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("payload must be bytes, got %T", args[1].Value)
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		c.state[bucket] = cp
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToUpper(query), "FROM STATE") {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	rows := make([][]driver.Value, 0, len(c.state))
	for bucket, payload := range c.state {
		rows = append(rows, []driver.Value{bucket, payload})
	}
	return &stubRows{cols: []string{"bucket", "payload"}, rows: rows}, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}
