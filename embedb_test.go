package embedb

import (
	"sync"
	"testing"

	"github.com/embedb/embedb/internal/querycache"
	"github.com/embedb/embedb/internal/storage"
)

func TestQueryCreateInsertSelect(t *testing.T) {
	conn, err := Open(storage.MemoryPath, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Query("CREATE TABLE t (id INT PRIMARY KEY, v VARCHAR)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := conn.Query("INSERT INTO t (id, v) VALUES (1, 'hello')"); err != nil {
		t.Fatalf("INSERT: %v", err)
	}

	res, err := conn.Query("SELECT * FROM t")
	if err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
}

func TestQueryUsesCacheOnRepeatedText(t *testing.T) {
	// A private cache keeps texts published by other tests out of the count.
	conn, err := Open(storage.MemoryPath, Options{QueryCache: querycache.New()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Query("CREATE TABLE t (id INT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}

	before := conn.cache.Len()
	if _, err := conn.Query("SELECT * FROM t"); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	afterFirst := conn.cache.Len()
	if afterFirst != before+1 {
		t.Fatalf("cache size after first query = %d, want %d", afterFirst, before+1)
	}
	// Re-running the identical text, even with different whitespace, must
	// hit the cache rather than publish a second entry.
	if _, err := conn.Query("SELECT  *  FROM  t"); err != nil {
		t.Fatalf("SELECT (whitespace variant): %v", err)
	}
	if conn.cache.Len() != afterFirst {
		t.Fatalf("cache size after repeat query = %d, want %d (normalization should dedupe)", conn.cache.Len(), afterFirst)
	}
}

func TestQueryTransactionControl(t *testing.T) {
	conn, err := Open(storage.MemoryPath, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Query("START TRANSACTION"); err != nil {
		t.Fatalf("START TRANSACTION: %v", err)
	}
	if conn.State() != storage.Active {
		t.Fatalf("State = %v, want Active", conn.State())
	}
	if _, err := conn.Query("COMMIT"); err != nil {
		t.Fatalf("COMMIT: %v", err)
	}
	if conn.State() != storage.NotActive {
		t.Fatalf("State = %v, want NotActive", conn.State())
	}
}

func TestPrepareAndQuery(t *testing.T) {
	conn, err := Open(storage.MemoryPath, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Query("CREATE TABLE t (id INT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := conn.Query("INSERT INTO t (id) VALUES (1)"); err != nil {
		t.Fatalf("INSERT: %v", err)
	}

	stmt, err := conn.Prepare("SELECT * FROM t")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	res, err := stmt.Query()
	if err != nil {
		t.Fatalf("PreparedStatement.Query: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
}

func TestPreparedStatementRejectsParams(t *testing.T) {
	conn, err := Open(storage.MemoryPath, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Query("CREATE TABLE t (id INT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	stmt, err := conn.Prepare("SELECT * FROM t")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := stmt.Query(storage.NumValue(storage.TypeInteger, 1)); err == nil {
		t.Fatal("expected error passing params to a statement with no placeholders")
	}
}

func TestRegisterFunctionRejectsDuplicate(t *testing.T) {
	conn, err := Open(storage.MemoryPath, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	fn := func(args []storage.Value) (storage.Value, error) { return args[0], nil }
	if err := conn.RegisterFunction("identity", fn); err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}
	if err := conn.RegisterFunction("IDENTITY", fn); err == nil {
		t.Fatal("expected error registering a duplicate function (case-insensitive)")
	}
	got, ok := conn.Function("Identity")
	if !ok || got == nil {
		t.Fatal("Function lookup failed for a registered name")
	}
}

func TestOpenUsesInjectedQueryCache(t *testing.T) {
	cache := querycache.New()
	conn, err := Open(storage.MemoryPath, Options{QueryCache: cache})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if conn.cache != cache {
		t.Fatal("Conn did not use the injected QueryCache")
	}
	if _, err := conn.Query("CREATE TABLE t (id INT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := conn.Query("SELECT * FROM t"); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if cache.Len() == 0 {
		t.Fatal("query was not published to the injected cache")
	}
}

// countingLocker records how many times it was locked, proving a caller's
// Mutex reaches Storage rather than a private default being used instead.
type countingLocker struct {
	mu     sync.Mutex
	locked int
}

func (c *countingLocker) Lock() {
	c.mu.Lock()
	c.locked++
}

func (c *countingLocker) Unlock() { c.mu.Unlock() }

func TestOpenUsesInjectedMutex(t *testing.T) {
	lock := &countingLocker{}
	conn, err := Open(storage.MemoryPath, Options{Mutex: lock})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Query("START TRANSACTION"); err != nil {
		t.Fatalf("START TRANSACTION: %v", err)
	}
	if _, err := conn.Query("COMMIT"); err != nil {
		t.Fatalf("COMMIT: %v", err)
	}
	if lock.locked == 0 {
		t.Fatal("injected Mutex was never locked")
	}
}

type stubVTable struct{ name string }

func (s stubVTable) Name() string { return s.name }

func TestRegisterVirtualTableRejectsDuplicate(t *testing.T) {
	conn, err := Open(storage.MemoryPath, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if err := conn.RegisterVirtualTable(stubVTable{name: "fts"}); err != nil {
		t.Fatalf("RegisterVirtualTable: %v", err)
	}
	if err := conn.RegisterVirtualTable(stubVTable{name: "FTS"}); err == nil {
		t.Fatal("expected error registering a duplicate virtual table module")
	}
}
