package storage

import (
	"log/slog"
	"os"
	"sync"

	"github.com/embedb/embedb/internal/btree"
	"github.com/embedb/embedb/internal/dberr"
	"github.com/embedb/embedb/internal/page"
	"github.com/embedb/embedb/internal/pager"
	"github.com/pkg/errors"
)

// State is the per-connection transaction state (spec §4.4).
type State int

const (
	NotActive State = iota
	Active
	Aborted
)

func (s State) String() string {
	switch s {
	case NotActive:
		return "not_active"
	case Active:
		return "active"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MemoryPath selects an in-memory database, skipping both the file lock
// and the path-keyed process mutex (spec §4.4).
const MemoryPath = ":memory:"

// Options configures a Storage connection (SPEC_FULL §10.3).
type Options struct {
	// PageSize applies only when the path passed to Open is MemoryPath.
	PageSize int
	Logger   *slog.Logger
	// Mutex is held by Begin, Commit and Rollback; other operations do
	// not take it. It defaults to a private *sync.Mutex.
	Mutex sync.Locker
}

// Storage is the coordinator: it owns a b-tree-backed pager, the schema
// catalog, the active transaction's state and dirty-page set, and the
// locks required for single-writer exclusion.
type Storage struct {
	path   string
	pgr    pager.Pager
	file   *os.File
	lock   *fileLock
	procMu *sync.Mutex // nil for :memory:
	connMu sync.Locker
	logger *slog.Logger

	catalog *Catalog

	state State
	tid   uint32
	dirty map[uint32]struct{}
}

// Open returns a Storage over path, which may be MemoryPath for an
// in-memory database or a filesystem path for a persistent one.
func Open(path string, opts Options) (*Storage, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	connMu := opts.Mutex
	if connMu == nil {
		connMu = &sync.Mutex{}
	}

	s := &Storage{
		path:    path,
		connMu:  connMu,
		logger:  logger,
		catalog: NewCatalog(),
		dirty:   map[uint32]struct{}{},
	}

	if path == MemoryPath {
		pageSize := opts.PageSize
		if pageSize == 0 {
			pageSize = page.DefaultSize
		}
		s.pgr = pager.NewMemoryPager(pageSize, logger)
	} else {
		fp, err := pager.OpenFile(path, logger)
		if err != nil {
			return nil, err
		}
		s.pgr = fp
		s.procMu = mutexForPath(path)
		f, err := os.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, "storage: open lock handle")
		}
		s.file = f
		s.lock = newFileLock(f)
	}

	if err := s.loadCatalog(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the backing file, if any.
func (s *Storage) Close() error {
	if s.file != nil {
		s.file.Close()
	}
	return s.pgr.Close()
}

func (s *Storage) btree() *btree.Btree { return btree.New(s.pgr, s.logger) }

// writeBtree returns a b-tree backed by a dirtyPager recording every
// page it touches into s.dirty, used for every mutation inside the
// active transaction.
func (s *Storage) writeBtree() *btree.Btree {
	return btree.New(newDirtyPager(s.pgr, s.dirty), s.logger)
}

func (s *Storage) loadCatalog() error {
	snapshot := s.pgr.PeekNextTxID()
	it := s.btree().NewRangeIterator(catalogPrefix, catalogPrefixEnd)
	for {
		obj, ok := it.Next()
		if !ok {
			break
		}
		row := Row{Tid: obj.Tid, Xid: obj.Xid}
		if !row.Visible(snapshot) {
			continue
		}
		t, err := decodeTable(obj.Value)
		if err != nil {
			return errors.Wrap(err, "storage: decode catalog record")
		}
		t.CatalogTid = obj.Tid
		s.catalog.Put(t)
	}
	return it.Err()
}

// State returns the connection's current transaction state.
func (s *Storage) State() State { return s.state }

// Begin transitions not_active -> active, claiming a transaction id and
// acquiring its transaction id from the header counter under the write
// lock, held only momentarily (spec §4.4's state table; §9 Global
// state: counters "must be incremented under the exclusive lock"). The
// lock is NOT held for the transaction's duration — per spec §8
// scenario 6, two writers may both be active with uncommitted work; the
// lock only serializes the individual mutating operations (and
// Commit/Rollback's cleanup pass) against each other.
func (s *Storage) Begin() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	switch s.state {
	case Active:
		return dberr.New(dberr.CodeActiveTransaction, "START TRANSACTION while a transaction is already active")
	case Aborted:
		return dberr.New(dberr.CodeInFailedTransaction, "statement issued while the transaction is aborted")
	}

	var tid uint32
	err := s.withWriteLock(func() error {
		var err error
		tid, err = s.pgr.NextTxID()
		return err
	})
	if err != nil {
		return errors.Wrap(err, "storage: allocate transaction id")
	}
	s.tid = tid
	s.state = Active
	s.logger.Debug("transaction began", "tid", tid)
	return nil
}

// Commit applies dirty-page cleanup (permanently removing objects
// expired by this transaction) and returns to not_active.
func (s *Storage) Commit() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	switch s.state {
	case NotActive:
		return dberr.New(dberr.CodeInvalidTermination, "COMMIT with no active transaction")
	case Aborted:
		return dberr.New(dberr.CodeInFailedTransaction, "COMMIT is not permitted; only ROLLBACK is, in an aborted transaction")
	}

	err := s.withWriteLock(func() error { return s.cleanupDirtyPages(true) })
	s.finishTransaction()
	if err != nil {
		return errors.Wrap(err, "storage: commit cleanup")
	}
	s.logger.Debug("transaction committed")
	return nil
}

// Rollback undoes every write made by the active transaction and
// returns to not_active; permitted from either active or aborted.
func (s *Storage) Rollback() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.state == NotActive {
		return dberr.New(dberr.CodeInvalidTermination, "ROLLBACK with no active transaction")
	}

	err := s.withWriteLock(func() error { return s.cleanupDirtyPages(false) })
	s.finishTransaction()
	if err != nil {
		return errors.Wrap(err, "storage: rollback cleanup")
	}
	// Rebuild the catalog mirror so that schema changes and row-id
	// counter bumps made by the undone transaction go with it.
	s.catalog = NewCatalog()
	if err := s.loadCatalog(); err != nil {
		return errors.Wrap(err, "storage: reload catalog after rollback")
	}
	s.logger.Debug("transaction rolled back")
	return nil
}

// finishTransaction resets transaction state regardless of
// commit/rollback outcome.
func (s *Storage) finishTransaction() {
	s.state = NotActive
	s.tid = 0
	s.dirty = map[uint32]struct{}{}
}

// cleanupDirtyPages visits every page touched by the active transaction.
// On commit, every object this transaction expired (Xid == tid) is
// permanently dropped. On rollback, every object this transaction
// created (Tid == tid) is dropped and every object it expired has its
// Xid cleared, per spec §4.4's Dirty-page tracking.
func (s *Storage) cleanupDirtyPages(isCommit bool) error {
	for pageNo := range s.dirty {
		p, err := s.pgr.FetchPage(pageNo)
		if err != nil {
			return err
		}
		var kept []page.Object
		for _, o := range p.Objects() {
			if isCommit {
				if o.Xid == s.tid {
					continue // permanently drop objects this tx expired
				}
				kept = append(kept, o)
			} else {
				switch {
				case o.Tid == s.tid:
					continue // undo this tx's creation
				case o.Xid == s.tid:
					o.Xid = 0 // undo this tx's deletion
					kept = append(kept, o)
				default:
					kept = append(kept, o)
				}
			}
		}
		rebuilt := page.Rebuild(p.Kind(), p.Size(), kept)
		if err := s.pgr.StorePage(pageNo, rebuilt); err != nil {
			return err
		}
	}
	return nil
}

// withWriteLock brackets a single mutating operation with the exclusive
// process-level file lock plus the in-process path mutex (spec §4.4,
// Single-writer exclusion). :memory: databases have neither and fn runs
// unguarded.
func (s *Storage) withWriteLock(fn func() error) error {
	if s.procMu != nil {
		s.procMu.Lock()
		defer s.procMu.Unlock()
	}
	if s.lock != nil {
		if err := s.lock.lockExclusive(); err != nil {
			return err
		}
		defer s.lock.unlock()
	}
	return fn()
}

// withReadLock brackets a read-only operation with the shared file
// lock, letting readers proceed concurrently with each other but not
// with a writer holding the exclusive lock.
func (s *Storage) withReadLock(fn func() error) error {
	if s.lock != nil {
		if err := s.lock.lockShared(); err != nil {
			return err
		}
		defer s.lock.unlock()
	}
	return fn()
}

// Autocommit wraps a single non-transactional operation in an implicit
// begin/do/commit-or-rollback cycle (SPEC_FULL §12). If a transaction is
// already active, fn runs directly under it instead — an autocommit
// statement issued mid-transaction participates in that transaction.
func (s *Storage) Autocommit(fn func(tid uint32) error) error {
	if s.state == Active {
		return fn(s.tid)
	}
	if err := s.Begin(); err != nil {
		return err
	}
	if err := fn(s.tid); err != nil {
		s.Rollback()
		s.state = NotActive // autocommit failures leave the engine quiescent, not aborted
		return err
	}
	return s.Commit()
}

// Snapshot returns the transaction id under which the caller should
// evaluate visibility: its own tid if active, or the next unused id
// (peeked, non-destructively) for an autocommit read (spec §4.4).
func (s *Storage) Snapshot() uint32 {
	if s.state == Active {
		return s.tid
	}
	return s.pgr.PeekNextTxID()
}

func (s *Storage) requireActive() error {
	switch s.state {
	case NotActive:
		return dberr.New(dberr.CodeInvalidTermination, "statement requires an active transaction")
	case Aborted:
		return dberr.New(dberr.CodeInFailedTransaction, "statement issued while the transaction is aborted")
	}
	return nil
}

// abortOnError marks the connection aborted after any non-state error
// raised while a transaction is active (spec §7, Propagation).
func (s *Storage) abortOnError(err error) error {
	if err != nil && s.state == Active {
		s.state = Aborted
	}
	return err
}
