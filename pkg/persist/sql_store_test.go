package persist

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

type recordedExec struct {
	query string
	args  []driver.NamedValue
}

type recordedQuery struct {
	query string
	args  []driver.NamedValue
}

type fakeSQLRecorder struct {
	mu sync.Mutex

	execs   []recordedExec
	queries []recordedQuery

	// Queue of query responses returned by QueryContext, in order.
	queryResponses []fakeRowsResult
}

type fakeRowsResult struct {
	columns []string
	rows    [][]driver.Value
}

func (r *fakeSQLRecorder) recordExec(query string, args []driver.NamedValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs = append(r.execs, recordedExec{query: normalizeQuery(query), args: append([]driver.NamedValue(nil), args...)})
}

func (r *fakeSQLRecorder) recordQuery(query string, args []driver.NamedValue) fakeRowsResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, recordedQuery{query: normalizeQuery(query), args: append([]driver.NamedValue(nil), args...)})
	if len(r.queryResponses) == 0 {
		return fakeRowsResult{columns: []string{"data"}, rows: nil}
	}
	resp := r.queryResponses[0]
	r.queryResponses = r.queryResponses[1:]
	return resp
}

type fakeSQLDriver struct{}

var (
	fakeSQLRegisterOnce sync.Once
	fakeSQLMu           sync.Mutex
	fakeSQLRecorders    = map[string]*fakeSQLRecorder{}
)

func (d fakeSQLDriver) Open(name string) (driver.Conn, error) {
	fakeSQLMu.Lock()
	rec := fakeSQLRecorders[name]
	fakeSQLMu.Unlock()
	if rec == nil {
		return nil, fmt.Errorf("unknown fake db name: %s", name)
	}
	return &fakeSQLConn{rec: rec}, nil
}

type fakeSQLConn struct {
	rec *fakeSQLRecorder
}

func (c *fakeSQLConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeSQLStmt{rec: c.rec, query: query}, nil
}
func (c *fakeSQLConn) Close() error              { return nil }
func (c *fakeSQLConn) Begin() (driver.Tx, error) { return fakeSQLTx{}, nil }

func (c *fakeSQLConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.rec.recordExec(query, args)
	return driver.RowsAffected(1), nil
}

func (c *fakeSQLConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	resp := c.rec.recordQuery(query, args)
	return &fakeSQLRows{
		columns: resp.columns,
		rows:    resp.rows,
	}, nil
}

type fakeSQLTx struct{}

func (fakeSQLTx) Commit() error   { return nil }
func (fakeSQLTx) Rollback() error { return nil }

type fakeSQLStmt struct {
	rec   *fakeSQLRecorder
	query string
}

func (s *fakeSQLStmt) Close() error  { return nil }
func (s *fakeSQLStmt) NumInput() int { return -1 }
func (s *fakeSQLStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.rec.recordExec(s.query, namedFromValues(args))
	return driver.RowsAffected(1), nil
}
func (s *fakeSQLStmt) Query(args []driver.Value) (driver.Rows, error) {
	resp := s.rec.recordQuery(s.query, namedFromValues(args))
	return &fakeSQLRows{columns: resp.columns, rows: resp.rows}, nil
}

func namedFromValues(values []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, 0, len(values))
	for i, v := range values {
		out = append(out, driver.NamedValue{Ordinal: i + 1, Value: v})
	}
	return out
}

type fakeSQLRows struct {
	columns []string
	rows    [][]driver.Value
	idx     int
}

func (r *fakeSQLRows) Columns() []string { return r.columns }
func (r *fakeSQLRows) Close() error      { return nil }
func (r *fakeSQLRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func openFakeDB(t *testing.T) (*sql.DB, *fakeSQLRecorder) {
	t.Helper()

	// Register driver once per test binary.
	fakeSQLRegisterOnce.Do(func() {
		sql.Register("optimist_fake_sql", fakeSQLDriver{})
	})

	rec := &fakeSQLRecorder{}
	name := t.Name()

	fakeSQLMu.Lock()
	fakeSQLRecorders[name] = rec
	fakeSQLMu.Unlock()

	t.Cleanup(func() {
		fakeSQLMu.Lock()
		delete(fakeSQLRecorders, name)
		fakeSQLMu.Unlock()
	})

	db, err := sql.Open("optimist_fake_sql", name)
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db, rec
}

func TestSQLStore_Placeholders(t *testing.T) {
	db, _ := openFakeDB(t)

	store := NewSQLStore(db, WithSQLDialect(DialectPostgreSQL))
	if got := store.placeholder(3); got != "$3" {
		t.Fatalf("placeholder() got %q want %q", got, "$3")
	}

	storeMy := NewSQLStore(db, WithSQLDialect(DialectMySQL))
	if got := storeMy.placeholder(3); got != "?" {
		t.Fatalf("placeholder() got %q want %q", got, "?")
	}
}

func TestSQLStore_SaveLoad_PostgresQueries(t *testing.T) {
	db, rec := openFakeDB(t)
	store := NewSQLStore(db, WithSQLDialect(DialectPostgreSQL))
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()

	if err := store.Save(ctx, testSnapshot("one")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	rec.mu.Lock()
	if len(rec.execs) != 1 {
		rec.mu.Unlock()
		t.Fatalf("execs got %d want 1", len(rec.execs))
	}
	saveQuery := rec.execs[0].query
	saveArgs := rec.execs[0].args
	rec.mu.Unlock()

	if !strings.Contains(saveQuery, "INSERT INTO optimist_snapshots") || !strings.Contains(saveQuery, "ON CONFLICT (name) DO UPDATE") {
		t.Fatalf("unexpected Save query: %q", saveQuery)
	}
	if len(saveArgs) != 2 || saveArgs[0].Value != "default" {
		t.Fatalf("unexpected Save args: %+v", saveArgs)
	}

	encoded, err := Encode(testSnapshot("one"))
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	rec.mu.Lock()
	rec.queryResponses = append(rec.queryResponses, fakeRowsResult{
		columns: []string{"data"},
		rows:    [][]driver.Value{{encoded}},
	})
	rec.mu.Unlock()

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if string(loaded.Entries["idea:title"]) != `"one"` {
		t.Fatalf("Load() entry got %s want %q", loaded.Entries["idea:title"], `"one"`)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.queries) != 1 {
		t.Fatalf("queries got %d want 1", len(rec.queries))
	}
	if !strings.Contains(rec.queries[0].query, "WHERE name = $1") {
		t.Fatalf("unexpected Load query: %q", rec.queries[0].query)
	}
}

func TestSQLStore_DialectUpserts(t *testing.T) {
	tests := []struct {
		name    string
		dialect SQLDialect
		want    string
	}{
		{name: "mysql", dialect: DialectMySQL, want: "ON DUPLICATE KEY UPDATE"},
		{name: "sqlite", dialect: DialectSQLite, want: "INSERT OR REPLACE INTO optimist_snapshots"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, rec := openFakeDB(t)
			store := NewSQLStore(db, WithSQLDialect(tc.dialect))
			t.Cleanup(func() { _ = store.Close() })

			if err := store.Save(context.Background(), testSnapshot("x")); err != nil {
				t.Fatalf("Save() error: %v", err)
			}

			rec.mu.Lock()
			defer rec.mu.Unlock()
			if len(rec.execs) != 1 {
				t.Fatalf("execs got %d want 1", len(rec.execs))
			}
			if !strings.Contains(rec.execs[0].query, tc.want) {
				t.Fatalf("Save query %q missing %q", rec.execs[0].query, tc.want)
			}
		})
	}
}

func TestSQLStore_StoreNameKeysRow(t *testing.T) {
	db, rec := openFakeDB(t)
	store := NewSQLStore(db, WithSQLDialect(DialectSQLite), WithSQLStoreName("launcher"))
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Save(context.Background(), testSnapshot("x")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.execs) != 1 || len(rec.execs[0].args) != 2 {
		t.Fatalf("unexpected execs: %+v", rec.execs)
	}
	if rec.execs[0].args[0].Value != "launcher" {
		t.Fatalf("store name arg got %v want %q", rec.execs[0].args[0].Value, "launcher")
	}
}

func TestSQLStore_Load_NoRowsReturnsErrNoSnapshot(t *testing.T) {
	db, _ := openFakeDB(t)
	store := NewSQLStore(db, WithSQLDialect(DialectSQLite))
	t.Cleanup(func() { _ = store.Close() })

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Load() error = %v, want ErrNoSnapshot", err)
	}
}

func TestSQLStore_CreateTable(t *testing.T) {
	db, rec := openFakeDB(t)
	store := NewSQLStore(db, WithSQLDialect(DialectMySQL))
	t.Cleanup(func() { _ = store.Close() })

	if err := store.CreateTable(context.Background()); err != nil {
		t.Fatalf("CreateTable() error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.execs) != 1 {
		t.Fatalf("execs got %d want 1", len(rec.execs))
	}
	if !strings.Contains(rec.execs[0].query, "CREATE TABLE IF NOT EXISTS optimist_snapshots") {
		t.Fatalf("CreateTable query got %q", rec.execs[0].query)
	}
}

func TestSQLStore_Close_MakesOperationsFail(t *testing.T) {
	db, _ := openFakeDB(t)
	store := NewSQLStore(db, WithSQLDialect(DialectPostgreSQL))

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() second call error: %v", err)
	}

	ctx := context.Background()
	if err := store.Save(ctx, testSnapshot("x")); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Save() after close error = %v, want ErrStoreClosed", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Load() after close error = %v, want ErrStoreClosed", err)
	}
}
