// Package embedb is the host-facing API of the embeddable SQL engine: an
// Open/Conn surface over the storage coordinator and the sqlmini front end,
// plus the process-wide prepared-statement cache.
package embedb

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/embedb/embedb/internal/dberr"
	"github.com/embedb/embedb/internal/querycache"
	"github.com/embedb/embedb/internal/sqlmini"
	"github.com/embedb/embedb/internal/storage"
	"github.com/pkg/errors"
)

// Options configures a connection; the path passed to Open decides
// whether the database is in memory. A zero value uses the default page
// size, a discard logger, a private mutex, and the process-wide query
// cache.
type Options struct {
	PageSize int
	Logger   *slog.Logger
	// QueryCache, if set, replaces the process-wide prepared-statement
	// cache with one owned by the caller, letting a host share a cache
	// across connections it controls or isolate one connection's cache
	// from every other (spec §6, Shared resources).
	QueryCache *querycache.Cache
	// Mutex is held by the connection's Begin, Commit and Rollback; other
	// statements do not take it. It defaults to a private *sync.Mutex;
	// see storage.Options.Mutex.
	Mutex sync.Locker
}

// Conn is a single connection to a database: its own transaction state
// (spec §4.4) over a Storage coordinator that may be shared by other
// connections to the same path, plus a reference to its query cache (the
// process-wide one unless Options.QueryCache was set).
type Conn struct {
	st    *storage.Storage
	cache *querycache.Cache

	mu        sync.Mutex
	functions map[string]Function
	vtables   map[string]VirtualTableModule
}

// Function is a scalar function registered via RegisterFunction.
type Function func(args []storage.Value) (storage.Value, error)

// VirtualTableModule is a virtual-table implementation registered via
// RegisterVirtualTable (SPEC_FULL §12, Supplemented features).
type VirtualTableModule interface {
	Name() string
}

var processCache = querycache.New()

// Open returns a Conn over path, which may be storage.MemoryPath for an
// in-memory database.
func Open(path string, opts Options) (*Conn, error) {
	st, err := storage.Open(path, storage.Options{
		PageSize: opts.PageSize,
		Logger:   opts.Logger,
		Mutex:    opts.Mutex,
	})
	if err != nil {
		return nil, err
	}
	cache := opts.QueryCache
	if cache == nil {
		cache = processCache
	}
	return &Conn{
		st:        st,
		cache:     cache,
		functions: map[string]Function{},
		vtables:   map[string]VirtualTableModule{},
	}, nil
}

// Close releases the connection's backing resources.
func (c *Conn) Close() error { return c.st.Close() }

// Result is the tabular output of a statement.
type Result = sqlmini.Result

// Query parses and executes a single SQL statement, including transaction
// control (START TRANSACTION/COMMIT/ROLLBACK), against this connection.
func (c *Conn) Query(sql string) (*Result, error) {
	key := querycache.KeyOf(normalize(sql))
	cached, hit := c.cache.Get(key)
	var stmt sqlmini.Stmt
	if hit {
		stmt = cached.(sqlmini.Stmt)
	} else {
		parsed, err := sqlmini.Parse(sql)
		if err != nil {
			return nil, err
		}
		stmt = c.cache.Publish(key, parsed).(sqlmini.Stmt)
	}
	return c.execStmt(stmt)
}

func (c *Conn) execStmt(stmt sqlmini.Stmt) (*Result, error) {
	switch stmt.(type) {
	case *sqlmini.BeginStmt:
		return &Result{}, c.st.Begin()
	case *sqlmini.CommitStmt:
		return &Result{}, c.st.Commit()
	case *sqlmini.RollbackStmt:
		return &Result{}, c.st.Rollback()
	default:
		return sqlmini.Execute(c.st, stmt)
	}
}

// Prepare parses sql once, publishing it to the connection's query cache,
// and returns a PreparedStatement that re-executes it without re-parsing.
func (c *Conn) Prepare(sql string) (*PreparedStatement, error) {
	key := querycache.KeyOf(normalize(sql))
	cached, hit := c.cache.Get(key)
	var stmt sqlmini.Stmt
	if hit {
		stmt = cached.(sqlmini.Stmt)
	} else {
		parsed, err := sqlmini.Parse(sql)
		if err != nil {
			return nil, err
		}
		stmt = c.cache.Publish(key, parsed).(sqlmini.Stmt)
	}
	return &PreparedStatement{conn: c, stmt: stmt}, nil
}

// PreparedStatement is a parsed statement bound to the Conn that prepared
// it, reusable across repeated executions (spec §5, Shared resources).
type PreparedStatement struct {
	conn *Conn
	stmt sqlmini.Stmt
}

// Query re-executes the prepared statement. Params is reserved for
// positional-parameter binding; sqlmini's grammar carries no placeholder
// syntax, so a non-empty params is rejected rather than silently ignored.
func (p *PreparedStatement) Query(params ...storage.Value) (*Result, error) {
	if len(params) != 0 {
		return nil, dberr.New(dberr.CodeSyntaxOrArgument, "embedb: prepared statement takes no parameters")
	}
	return p.conn.execStmt(p.stmt)
}

// RegisterFunction adds a scalar function callable from expressions
// evaluated by a query planner layered on top of this engine (SPEC_FULL
// §12). sqlmini's predicate grammar does not itself call functions; this
// registry exists so a host embedding a fuller expression evaluator has
// somewhere to look them up by name.
func (c *Conn) RegisterFunction(name string, fn Function) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	name = strings.ToUpper(name)
	if _, exists := c.functions[name]; exists {
		return errors.Errorf("embedb: function %q already registered", name)
	}
	c.functions[name] = fn
	return nil
}

// Function looks up a previously registered scalar function.
func (c *Conn) Function(name string) (Function, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok := c.functions[strings.ToUpper(name)]
	return fn, ok
}

// RegisterVirtualTable adds a virtual-table module by name.
func (c *Conn) RegisterVirtualTable(mod VirtualTableModule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := strings.ToUpper(mod.Name())
	if _, exists := c.vtables[name]; exists {
		return errors.Errorf("embedb: virtual table module %q already registered", name)
	}
	c.vtables[name] = mod
	return nil
}

// State returns the connection's current transaction state.
func (c *Conn) State() storage.State { return c.st.State() }

func normalize(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
