package storage

import (
	sortedmap "github.com/tobshub/go-sortedmap"
)

// catalogLess orders the in-memory table map by name, giving
// deterministic iteration for schema introspection (SPEC_FULL §11,
// grounded on tobsdb's sorted row map).
func catalogLess(a, b *Table) bool { return a.Name < b.Name }

// Catalog is the per-connection in-memory mirror of the schema records
// persisted in the b-tree's reserved catalog region (spec §4.4). It is
// rebuilt from the b-tree on connection open and after every rollback, and
// kept in sync by CreateTable/DropTable.
type Catalog struct {
	tables *sortedmap.SortedMap[string, *Table]
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{tables: sortedmap.New[string, *Table](0, catalogLess)}
}

// Put registers t under its (already uppercased) name, overwriting any
// existing entry.
func (c *Catalog) Put(t *Table) {
	c.tables.Delete(t.Name)
	c.tables.Insert(t.Name, t)
}

// Get looks up a table by name.
func (c *Catalog) Get(name string) (*Table, bool) {
	return c.tables.Get(name)
}

// Remove deletes a table by name, reporting whether it was present.
func (c *Catalog) Remove(name string) bool {
	return c.tables.Delete(name)
}

// List returns every table in name order.
func (c *Catalog) List() []*Table {
	out := make([]*Table, 0, c.tables.Len())
	iterCh, err := c.tables.IterCh()
	if err != nil {
		return out
	}
	defer iterCh.Close()
	for rec := range iterCh.Records() {
		out = append(out, rec.Val)
	}
	return out
}

// Len returns the number of registered tables.
func (c *Catalog) Len() int { return c.tables.Len() }
