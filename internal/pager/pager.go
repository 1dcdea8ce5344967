// Package pager abstracts page-addressed I/O over either a backing file
// or an in-memory array, plus the small header of tree metadata that
// precedes the pages.
package pager

import "github.com/embedb/embedb/internal/page"

// Pager is the interface the b-tree uses to read and write pages and to
// track the tree's root page number and transaction/table id counters.
// Implementations must return page copies from FetchPage so that b-tree
// traversal is decoupled from however pages are actually stored (spec
// §9, Ownership of pages).
type Pager interface {
	FetchPage(n uint32) (*page.Page, error)
	StorePage(n uint32, p *page.Page) error
	// AppendPage adds p as a new last page and returns its page number.
	AppendPage(p *page.Page) (uint32, error)
	TruncateAll() error
	TruncateLastPage() error
	TotalPages() uint32
	PageSize() int

	RootPage() uint32
	SetRootPage(n uint32) error

	// NextTxID allocates and increments the transaction id counter.
	// Callers must hold the coordinator's exclusive lock.
	NextTxID() (uint32, error)
	// PeekNextTxID returns the next transaction id without incrementing
	// the counter, for autocommit readers (spec §4.4 visibility rule).
	PeekNextTxID() uint32
	// NextTableID allocates and increments the table id counter.
	NextTableID() (uint32, error)

	Close() error
}
