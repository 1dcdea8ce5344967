package sqlmini

import (
	"strconv"
	"strings"

	"github.com/embedb/embedb/internal/dberr"
)

type parser struct {
	toks []token
	pos  int
}

// Parse lexes and parses a single SQL statement.
func Parse(sql string) (Stmt, error) {
	toks, err := tokenize(sql)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.atEOF() {
		return nil, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: empty statement")
	}
	kw := strings.ToUpper(p.cur().text)
	switch kw {
	case "CREATE":
		return p.parseCreateTable()
	case "DROP":
		return p.parseDropTable()
	case "INSERT":
		return p.parseInsert()
	case "SELECT":
		return p.parseSelect()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	case "START":
		return p.parseStart()
	case "COMMIT":
		return &CommitStmt{}, nil
	case "ROLLBACK":
		return &RollbackStmt{}, nil
	default:
		return nil, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: unrecognized statement keyword %q", kw)
	}
}

func (p *parser) cur() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) atEOF() bool { return p.pos >= len(p.toks) }

func (p *parser) advance() token {
	t := p.cur()
	p.pos++
	return t
}

func (p *parser) expectPunct(text string) error {
	t := p.advance()
	if t.kind != tokPunct || t.text != text {
		return dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: expected %q, got %q", text, t.text)
	}
	return nil
}

func (p *parser) expectKeyword(kw string) error {
	t := p.advance()
	if t.kind != tokIdent || !strings.EqualFold(t.text, kw) {
		return dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: expected %q, got %q", kw, t.text)
	}
	return nil
}

func (p *parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (p *parser) expectIdent() (string, error) {
	t := p.advance()
	if t.kind != tokIdent {
		return "", dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: expected identifier, got %q", t.text)
	}
	return t.text, nil
}

func (p *parser) parseCreateTable() (Stmt, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var cols []ColumnDef
	for {
		cname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		ctype, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		col := ColumnDef{Name: cname, Type: strings.ToUpper(ctype), NotNull: false}
		for p.isKeyword("NOT") || p.isKeyword("PRIMARY") {
			if p.isKeyword("NOT") {
				p.advance()
				if err := p.expectKeyword("NULL"); err != nil {
					return nil, err
				}
				col.NotNull = true
			} else {
				p.advance()
				if err := p.expectKeyword("KEY"); err != nil {
					return nil, err
				}
				col.PrimaryKey = true
			}
		}
		cols = append(cols, col)
		if p.cur().kind == tokPunct && p.cur().text == "," {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &CreateTableStmt{Table: name, Columns: cols}, nil
}

func (p *parser) parseDropTable() (Stmt, error) {
	if err := p.expectKeyword("DROP"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &DropTableStmt{Table: name}, nil
}

func (p *parser) parseInsert() (Stmt, error) {
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var cols []string
	for {
		c, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		if p.cur().text == "," {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var vals []Literal
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		if p.cur().text == "," {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if len(cols) != len(vals) {
		return nil, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: %d columns but %d values", len(cols), len(vals))
	}
	return &InsertStmt{Table: table, Columns: cols, Values: vals}, nil
}

func (p *parser) parseLiteral() (Literal, error) {
	t := p.advance()
	switch t.kind {
	case tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Literal{}, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: bad numeric literal %q", t.text)
		}
		return Literal{Num: n}, nil
	case tokString:
		return Literal{Str: t.text, IsStr: true}, nil
	case tokIdent:
		if strings.EqualFold(t.text, "NULL") {
			return Literal{IsNull: true}, nil
		}
	}
	return Literal{}, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: expected literal, got %q", t.text)
}

func (p *parser) parseSelect() (Stmt, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	stmt := &SelectStmt{}
	if p.cur().kind == tokPunct && p.cur().text == "*" {
		p.advance()
		stmt.Star = true
	} else if p.isKeyword("COUNT") {
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		if err := p.expectPunct("*"); err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		stmt.CountStar = true
	} else {
		for {
			c, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, c)
			if p.cur().text == "," {
				p.advance()
				continue
			}
			break
		}
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt.Table = table
	if p.isKeyword("WHERE") {
		p.advance()
		pred, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		stmt.Where = pred
	}
	return stmt, nil
}

func (p *parser) parsePredicate() (*Predicate, error) {
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	opTok := p.advance()
	if opTok.kind != tokPunct {
		return nil, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: expected comparison operator, got %q", opTok.text)
	}
	op := opTok.text
	switch op {
	case "=", "!=", "<>", "<", "<=", ">", ">=":
	default:
		return nil, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: unsupported operator %q", op)
	}
	val, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &Predicate{Column: col, Op: op, Value: val}, nil
}

func (p *parser) parseUpdate() (Stmt, error) {
	if err := p.expectKeyword("UPDATE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	var cols []string
	var vals []Literal
	for {
		c, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		vals = append(vals, v)
		if p.cur().text == "," {
			p.advance()
			continue
		}
		break
	}
	stmt := &UpdateStmt{Table: table, Columns: cols, Values: vals}
	if p.isKeyword("WHERE") {
		p.advance()
		pred, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		stmt.Where = pred
	}
	return stmt, nil
}

func (p *parser) parseDelete() (Stmt, error) {
	if err := p.expectKeyword("DELETE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStmt{Table: table}
	if p.isKeyword("WHERE") {
		p.advance()
		pred, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		stmt.Where = pred
	}
	return stmt, nil
}

func (p *parser) parseStart() (Stmt, error) {
	if err := p.expectKeyword("START"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TRANSACTION"); err != nil {
		return nil, err
	}
	return &BeginStmt{}, nil
}
