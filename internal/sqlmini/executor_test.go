package sqlmini

import (
	"testing"

	"github.com/embedb/embedb/internal/storage"
)

func openMemory(t *testing.T) *storage.Storage {
	t.Helper()
	st, err := storage.Open(storage.MemoryPath, storage.Options{})
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func run(t *testing.T, st *storage.Storage, sql string) *Result {
	t.Helper()
	stmt, err := Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	res, err := Execute(st, stmt)
	if err != nil {
		t.Fatalf("Execute(%q): %v", sql, err)
	}
	return res
}

func TestExecuteCreateInsertSelect(t *testing.T) {
	st := openMemory(t)
	run(t, st, "CREATE TABLE users (id INT PRIMARY KEY, name VARCHAR)")
	run(t, st, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	run(t, st, "INSERT INTO users (id, name) VALUES (2, 'bob')")

	res := run(t, st, "SELECT * FROM users")
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(res.Rows))
	}

	res = run(t, st, "SELECT name FROM users WHERE id = 2")
	if len(res.Rows) != 1 || string(res.Rows[0][0].Str) != "bob" {
		t.Fatalf("got %+v", res.Rows)
	}

	res = run(t, st, "SELECT COUNT(*) FROM users")
	if len(res.Rows) != 1 || res.Rows[0][0].Num != 2 {
		t.Fatalf("count = %+v, want 2", res.Rows)
	}
}

func TestExecuteUpdate(t *testing.T) {
	st := openMemory(t)
	run(t, st, "CREATE TABLE t (id INT PRIMARY KEY, v INT)")
	run(t, st, "INSERT INTO t (id, v) VALUES (1, 10)")

	res := run(t, st, "UPDATE t SET v = 20 WHERE id = 1")
	if res.Affected != 1 {
		t.Fatalf("Affected = %d, want 1", res.Affected)
	}

	sel := run(t, st, "SELECT v FROM t WHERE id = 1")
	if len(sel.Rows) != 1 || sel.Rows[0][0].Num != 20 {
		t.Fatalf("got %+v", sel.Rows)
	}
}

func TestExecuteDelete(t *testing.T) {
	st := openMemory(t)
	run(t, st, "CREATE TABLE t (id INT PRIMARY KEY, v INT)")
	run(t, st, "INSERT INTO t (id, v) VALUES (1, 10)")
	run(t, st, "INSERT INTO t (id, v) VALUES (2, 20)")

	res := run(t, st, "DELETE FROM t WHERE id = 1")
	if res.Affected != 1 {
		t.Fatalf("Affected = %d, want 1", res.Affected)
	}

	sel := run(t, st, "SELECT * FROM t")
	if len(sel.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(sel.Rows))
	}
}

func TestExecuteDropTable(t *testing.T) {
	st := openMemory(t)
	run(t, st, "CREATE TABLE t (id INT)")
	run(t, st, "DROP TABLE t")
	if len(st.ListTables()) != 0 {
		t.Fatalf("ListTables = %v, want empty after drop", st.ListTables())
	}
}

func TestExecuteInsertUndefinedTable(t *testing.T) {
	st := openMemory(t)
	stmt, err := Parse("INSERT INTO ghost (id) VALUES (1)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Execute(st, stmt); err == nil {
		t.Fatal("expected error inserting into a table that does not exist")
	}
}

func TestExecuteRejectsNonExecutableStatement(t *testing.T) {
	st := openMemory(t)
	if _, err := Execute(st, &BeginStmt{}); err == nil {
		t.Fatal("expected error executing a transaction-control statement directly")
	}
}
