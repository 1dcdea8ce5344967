package pager

import (
	"log/slog"

	"github.com/embedb/embedb/internal/page"
)

// MemoryPager keeps a dense, ordered collection of pages indexed by
// 0-based page number entirely in memory. Operations are O(1) and never
// fail — there is no I/O to go wrong. Used for ":memory:" databases,
// where the page size is also the only caller-configurable knob (spec
// §4.1).
type MemoryPager struct {
	pageSize int
	header   Header
	pages    []*page.Page
	logger   *slog.Logger
}

// NewMemoryPager creates an empty in-memory pager with the given page
// size and a freshly initialized header. logger is accepted for
// consistency with FilePager but unused: MemoryPager has no I/O to log
// failures for (SPEC_FULL §10.1).
func NewMemoryPager(pageSize int, logger *slog.Logger) *MemoryPager {
	return &MemoryPager{
		pageSize: pageSize,
		header:   DefaultHeader(uint16(pageSize)),
		pages:    []*page.Page{page.NewLeaf(pageSize)},
		logger:   orDefaultLogger(logger),
	}
}

func (m *MemoryPager) FetchPage(n uint32) (*page.Page, error) {
	return m.pages[n].Clone(), nil
}

func (m *MemoryPager) StorePage(n uint32, p *page.Page) error {
	m.pages[n] = p
	return nil
}

func (m *MemoryPager) AppendPage(p *page.Page) (uint32, error) {
	m.pages = append(m.pages, p)
	return uint32(len(m.pages) - 1), nil
}

func (m *MemoryPager) TruncateAll() error {
	m.pages = m.pages[:0]
	return nil
}

func (m *MemoryPager) TruncateLastPage() error {
	m.pages = m.pages[:len(m.pages)-1]
	return nil
}

func (m *MemoryPager) TotalPages() uint32 { return uint32(len(m.pages)) }

func (m *MemoryPager) PageSize() int { return m.pageSize }

func (m *MemoryPager) RootPage() uint32 { return m.header.RootPage }

func (m *MemoryPager) SetRootPage(n uint32) error {
	m.header.RootPage = n
	return nil
}

func (m *MemoryPager) NextTxID() (uint32, error) {
	id := m.header.NextTxID
	m.header.NextTxID++
	return id, nil
}

func (m *MemoryPager) PeekNextTxID() uint32 { return m.header.NextTxID }

func (m *MemoryPager) NextTableID() (uint32, error) {
	id := m.header.NextTableID
	m.header.NextTableID++
	return id, nil
}

func (m *MemoryPager) Close() error { return nil }
