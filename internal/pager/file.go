package pager

import (
	"log/slog"
	"os"

	"github.com/embedb/embedb/internal/page"
	"github.com/pkg/errors"
)

// FilePager is the on-disk Pager: a fixed Header at offset 0 followed by
// page_size-sized pages numbered 0 upward (spec §6, File format).
type FilePager struct {
	f          *os.File
	header     Header
	totalPages uint32
	logger     *slog.Logger
}

// OpenFile opens (creating if necessary) the database file at path and
// returns a FilePager positioned over it. An existing file must carry a
// recognized signature and page size; see Header. I/O failures are logged
// at Error via logger, which may be nil (SPEC_FULL §10.1).
func OpenFile(path string, logger *slog.Logger) (*FilePager, error) {
	logger = orDefaultLogger(logger)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		logger.Error("open database file failed", "path", path, "error", err)
		return nil, errors.Wrap(err, "pager: open database file")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		logger.Error("stat database file failed", "path", path, "error", err)
		return nil, errors.Wrap(err, "pager: stat database file")
	}

	fp := &FilePager{f: f, logger: logger}
	if info.Size() == 0 {
		fp.header = DefaultHeader(uint16(page.DefaultSize))
		if err := fp.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		root := page.NewLeaf(page.DefaultSize)
		if _, err := fp.AppendPage(root); err != nil {
			f.Close()
			return nil, err
		}
		return fp, nil
	}

	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		logger.Error("read header failed", "path", path, "error", err)
		return nil, errors.Wrap(err, "pager: read header")
	}
	h, err := decodeHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	if int(h.PageSize) != page.DefaultSize {
		f.Close()
		return nil, errors.Errorf("pager: unsupported page size %d", h.PageSize)
	}
	fp.header = h
	fp.totalPages = uint32((info.Size() - int64(HeaderSize)) / int64(h.PageSize))
	return fp, nil
}

func (fp *FilePager) writeHeader() error {
	if _, err := fp.f.WriteAt(fp.header.encode(), 0); err != nil {
		fp.logger.Error("write header failed", "error", err)
		return errors.Wrap(err, "pager: write header")
	}
	return nil
}

func (fp *FilePager) offset(n uint32) int64 {
	return int64(HeaderSize) + int64(n)*int64(fp.header.PageSize)
}

func (fp *FilePager) FetchPage(n uint32) (*page.Page, error) {
	buf := make([]byte, fp.header.PageSize)
	if _, err := fp.f.ReadAt(buf, fp.offset(n)); err != nil {
		fp.logger.Error("read page failed", "page", n, "error", err)
		return nil, errors.Wrapf(err, "pager: read page %d", n)
	}
	p, err := page.Deserialize(buf)
	if err != nil {
		fp.logger.Error("decode page failed", "page", n, "error", err)
		return nil, errors.Wrapf(err, "pager: decode page %d", n)
	}
	return p, nil
}

// StorePage writes p at page number n with a single buffered write, per
// spec §4.1/§7: there is no fsync contract here. A crash mid-write may
// leave the page partially updated.
func (fp *FilePager) StorePage(n uint32, p *page.Page) error {
	buf, err := p.Serialize()
	if err != nil {
		fp.logger.Error("encode page failed", "page", n, "error", err)
		return errors.Wrapf(err, "pager: encode page %d", n)
	}
	if _, err := fp.f.WriteAt(buf, fp.offset(n)); err != nil {
		fp.logger.Error("write page failed", "page", n, "error", err)
		return errors.Wrapf(err, "pager: write page %d", n)
	}
	return nil
}

func (fp *FilePager) AppendPage(p *page.Page) (uint32, error) {
	n := fp.totalPages
	if err := fp.StorePage(n, p); err != nil {
		return 0, err
	}
	fp.totalPages++
	return n, nil
}

// TruncateAll discards every page, leaving only the header.
func (fp *FilePager) TruncateAll() error {
	if err := fp.f.Truncate(int64(HeaderSize)); err != nil {
		fp.logger.Error("truncate all pages failed", "error", err)
		return errors.Wrap(err, "pager: truncate all pages")
	}
	fp.totalPages = 0
	return nil
}

// TruncateLastPage drops the highest-numbered page, used by the b-tree
// after swapping a freed page with the last one (spec §4.3, Remove).
func (fp *FilePager) TruncateLastPage() error {
	if fp.totalPages == 0 {
		return errors.New("pager: truncate last page on an empty file")
	}
	fp.totalPages--
	size := int64(HeaderSize) + int64(fp.totalPages)*int64(fp.header.PageSize)
	if err := fp.f.Truncate(size); err != nil {
		fp.logger.Error("truncate last page failed", "error", err)
		return errors.Wrap(err, "pager: truncate last page")
	}
	return nil
}

func (fp *FilePager) TotalPages() uint32 { return fp.totalPages }

func (fp *FilePager) PageSize() int { return int(fp.header.PageSize) }

func (fp *FilePager) RootPage() uint32 { return fp.header.RootPage }

func (fp *FilePager) SetRootPage(n uint32) error {
	fp.header.RootPage = n
	return fp.writeHeader()
}

func (fp *FilePager) NextTxID() (uint32, error) {
	id := fp.header.NextTxID
	fp.header.NextTxID++
	if err := fp.writeHeader(); err != nil {
		fp.header.NextTxID--
		return 0, err
	}
	return id, nil
}

func (fp *FilePager) PeekNextTxID() uint32 { return fp.header.NextTxID }

func (fp *FilePager) NextTableID() (uint32, error) {
	id := fp.header.NextTableID
	fp.header.NextTableID++
	if err := fp.writeHeader(); err != nil {
		fp.header.NextTableID--
		return 0, err
	}
	return id, nil
}

func (fp *FilePager) Close() error {
	return fp.f.Close()
}
