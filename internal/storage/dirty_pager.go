package storage

import (
	"github.com/embedb/embedb/internal/page"
	"github.com/embedb/embedb/internal/pager"
)

// dirtyPager wraps a pager.Pager, recording every page number written
// through it into a shared set. The coordinator constructs one of these
// per write operation of the active transaction so that commit/rollback
// cleanup (spec §4.4, Dirty-page tracking) knows exactly which pages to
// revisit, without the b-tree needing any awareness of transactions.
type dirtyPager struct {
	pager.Pager
	dirty map[uint32]struct{}
}

func newDirtyPager(p pager.Pager, dirty map[uint32]struct{}) *dirtyPager {
	return &dirtyPager{Pager: p, dirty: dirty}
}

func (d *dirtyPager) StorePage(n uint32, p *page.Page) error {
	d.dirty[n] = struct{}{}
	return d.Pager.StorePage(n, p)
}

func (d *dirtyPager) AppendPage(p *page.Page) (uint32, error) {
	n, err := d.Pager.AppendPage(p)
	if err != nil {
		return 0, err
	}
	d.dirty[n] = struct{}{}
	return n, nil
}
