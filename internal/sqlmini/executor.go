package sqlmini

import (
	"strings"

	"github.com/embedb/embedb/internal/dberr"
	"github.com/embedb/embedb/internal/storage"
)

// Result is the tabular output of a statement: column names plus rows
// of storage.Value, or an Affected count for statements with no rows.
type Result struct {
	Columns  []string
	Rows     [][]storage.Value
	Affected int
}

var typeNames = map[string]storage.Type{
	"BOOLEAN":          storage.TypeBoolean,
	"BOOL":             storage.TypeBoolean,
	"SMALLINT":         storage.TypeSmallInt,
	"INT":              storage.TypeInteger,
	"INTEGER":          storage.TypeInteger,
	"BIGINT":           storage.TypeBigInt,
	"REAL":             storage.TypeReal,
	"DOUBLE":           storage.TypeDouble,
	"FLOAT":            storage.TypeFloat,
	"CHAR":             storage.TypeCharacter,
	"CHARACTER":        storage.TypeCharacter,
	"VARCHAR":          storage.TypeVarchar,
}

func resolveType(name string) (storage.Type, error) {
	t, ok := typeNames[strings.ToUpper(name)]
	if !ok {
		return 0, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: unknown type %q", name)
	}
	return t, nil
}

func literalToValue(t storage.Type, lit Literal) storage.Value {
	if lit.IsNull {
		return storage.NullValue(t)
	}
	if lit.IsStr {
		return storage.StrValue(t, []byte(lit.Str))
	}
	return storage.NumValue(t, lit.Num)
}

// Execute runs a single parsed statement against st, under tid when the
// statement is a mutation participating in an active or implicit
// transaction. Transaction-control statements are handled by the
// caller (Conn), not here.
func Execute(st *storage.Storage, stmt Stmt) (*Result, error) {
	switch s := stmt.(type) {
	case *CreateTableStmt:
		return execCreateTable(st, s)
	case *DropTableStmt:
		return execDropTable(st, s)
	case *InsertStmt:
		return execInsert(st, s)
	case *SelectStmt:
		return execSelect(st, s)
	case *UpdateStmt:
		return execUpdate(st, s)
	case *DeleteStmt:
		return execDelete(st, s)
	default:
		return nil, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: statement type %T is not executable directly; use Conn for transaction control", stmt)
	}
}

func execCreateTable(st *storage.Storage, s *CreateTableStmt) (*Result, error) {
	var cols []storage.Column
	pk := ""
	for _, c := range s.Columns {
		t, err := resolveType(c.Type)
		if err != nil {
			return nil, err
		}
		cols = append(cols, storage.Column{Name: strings.ToUpper(c.Name), Type: t, Nullable: !c.NotNull})
		if c.PrimaryKey {
			pk = strings.ToUpper(c.Name)
		}
	}
	var res *Result
	err := st.Autocommit(func(tid uint32) error {
		res = &Result{}
		return st.CreateTable(s.Table, cols, pk, tid)
	})
	return res, err
}

func execDropTable(st *storage.Storage, s *DropTableStmt) (*Result, error) {
	var res *Result
	err := st.Autocommit(func(tid uint32) error {
		res = &Result{}
		return st.DropTable(s.Table, tid)
	})
	return res, err
}

func execInsert(st *storage.Storage, s *InsertStmt) (*Result, error) {
	var res *Result
	err := st.Autocommit(func(tid uint32) error {
		t, err := lookupTableForInsert(st, s.Table)
		if err != nil {
			return err
		}
		values := make(map[string]storage.Value, len(s.Columns))
		for i, cname := range s.Columns {
			cname = strings.ToUpper(cname)
			idx := t.ColumnIndex(cname)
			if idx < 0 {
				return dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: column %q not found in table %q", cname, t.Name)
			}
			values[cname] = literalToValue(t.Columns[idx].Type, s.Values[i])
		}
		_, err = st.WriteRow(s.Table, values, tid)
		res = &Result{Affected: 1}
		return err
	})
	return res, err
}

func lookupTableForInsert(st *storage.Storage, name string) (*storage.Table, error) {
	name = strings.ToUpper(name)
	for _, t := range st.ListTables() {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, dberr.New(dberr.CodeUndefinedTable, "table %q does not exist", name)
}

func execSelect(st *storage.Storage, s *SelectStmt) (*Result, error) {
	var res *Result
	err := st.Autocommit(func(tid uint32) error {
		snapshot := st.Snapshot()
		rows, err := st.ScanTable(s.Table, snapshot)
		if err != nil {
			return err
		}
		rows = filterRows(rows, s.Where)

		if s.CountStar {
			res = &Result{Columns: []string{"COUNT"}, Rows: [][]storage.Value{{storage.NumValue(storage.TypeBigInt, float64(len(rows)))}}}
			return nil
		}

		t, err := lookupTableForInsert(st, s.Table)
		if err != nil {
			return err
		}
		cols := s.Columns
		if s.Star || len(cols) == 0 {
			cols = make([]string, len(t.Columns))
			for i, c := range t.Columns {
				cols[i] = c.Name
			}
		}
		out := make([][]storage.Value, 0, len(rows))
		for _, r := range rows {
			rec := make([]storage.Value, len(cols))
			for i, c := range cols {
				rec[i] = r.Values[strings.ToUpper(c)]
			}
			out = append(out, rec)
		}
		res = &Result{Columns: cols, Rows: out}
		return nil
	})
	return res, err
}

func execUpdate(st *storage.Storage, s *UpdateStmt) (*Result, error) {
	var res *Result
	err := st.Autocommit(func(tid uint32) error {
		snapshot := st.Snapshot()
		rows, err := st.ScanTable(s.Table, snapshot)
		if err != nil {
			return err
		}
		rows = filterRows(rows, s.Where)
		t, err := lookupTableForInsert(st, s.Table)
		if err != nil {
			return err
		}
		affected := 0
		for _, r := range rows {
			newValues := cloneValues(r.Values)
			for i, cname := range s.Columns {
				cname = strings.ToUpper(cname)
				idx := t.ColumnIndex(cname)
				if idx < 0 {
					return dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: column %q not found in table %q", cname, t.Name)
				}
				newValues[cname] = literalToValue(t.Columns[idx].Type, s.Values[i])
			}
			if _, err := st.UpdateRow(s.Table, r, newValues, tid); err != nil {
				return err
			}
			affected++
		}
		res = &Result{Affected: affected}
		return nil
	})
	return res, err
}

func execDelete(st *storage.Storage, s *DeleteStmt) (*Result, error) {
	var res *Result
	err := st.Autocommit(func(tid uint32) error {
		snapshot := st.Snapshot()
		rows, err := st.ScanTable(s.Table, snapshot)
		if err != nil {
			return err
		}
		rows = filterRows(rows, s.Where)
		affected := 0
		for _, r := range rows {
			if err := st.DeleteRow(s.Table, r, tid); err != nil {
				return err
			}
			affected++
		}
		res = &Result{Affected: affected}
		return nil
	})
	return res, err
}

func cloneValues(in map[string]storage.Value) map[string]storage.Value {
	out := make(map[string]storage.Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func filterRows(rows []storage.Row, pred *Predicate) []storage.Row {
	if pred == nil {
		return rows
	}
	col := strings.ToUpper(pred.Column)
	out := rows[:0]
	for _, r := range rows {
		v, ok := r.Values[col]
		if !ok || v.IsNull || pred.Value.IsNull {
			continue
		}
		var cmp int
		if pred.Value.IsStr {
			cmp = strings.Compare(string(v.Str), pred.Value.Str)
		} else if v.Num < pred.Value.Num {
			cmp = -1
		} else if v.Num > pred.Value.Num {
			cmp = 1
		}
		if matchesOp(cmp, pred.Op) {
			out = append(out, r)
		}
	}
	return out
}

func matchesOp(cmp int, op string) bool {
	switch op {
	case "=":
		return cmp == 0
	case "!=", "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}
