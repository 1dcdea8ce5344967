// Package sqlmini is a minimal stand-in for the SQL parser, expression
// evaluator, and query planner spec.md §1 treats as external
// collaborators. It exists only to drive the storage core end to end
// (CREATE/DROP TABLE, INSERT, SELECT, UPDATE, DELETE, START
// TRANSACTION/COMMIT/ROLLBACK) and is explicitly not a target for
// SQL-language completeness (SPEC_FULL §12).
package sqlmini

import (
	"strings"
	"unicode"

	"github.com/embedb/embedb/internal/dberr"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// lexer splits SQL text into idents/keywords, numbers, quoted strings,
// and punctuation. Identifiers and keywords are matched case-insensitively
// by the parser, not folded here, so error messages quote the source text.
type lexer struct {
	src []rune
	pos int
}

func newLexer(sql string) *lexer { return &lexer{src: []rune(sql)} }

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}, nil
	}
	c := l.src[l.pos]

	switch {
	case c == '\'':
		return l.lexString()
	case unicode.IsDigit(c):
		return l.lexNumber(), nil
	case unicode.IsLetter(c) || c == '_':
		return l.lexIdent(), nil
	case strings.ContainsRune("(),;*.=<>!+-/", c):
		return l.lexPunct(), nil
	default:
		return token{}, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: unexpected character %q", c)
	}
}

func (l *lexer) lexString() (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.src) {
		if l.src[l.pos] == '\'' {
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '\'' {
				b.WriteRune('\'')
				l.pos += 2
				continue
			}
			l.pos++
			return token{kind: tokString, text: b.String()}, nil
		}
		b.WriteRune(l.src[l.pos])
		l.pos++
	}
	return token{}, dberr.New(dberr.CodeSyntaxOrArgument, "sqlmini: unterminated string literal starting at offset %d", start)
}

func (l *lexer) lexNumber() token {
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	return token{kind: tokNumber, text: string(l.src[start:l.pos])}
}

func (l *lexer) lexIdent() token {
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
	return token{kind: tokIdent, text: string(l.src[start:l.pos])}
}

func (l *lexer) lexPunct() token {
	// Two-character operators first.
	if l.pos+1 < len(l.src) {
		two := string(l.src[l.pos : l.pos+2])
		switch two {
		case "<=", ">=", "!=", "<>":
			l.pos += 2
			return token{kind: tokPunct, text: two}
		}
	}
	c := l.src[l.pos]
	l.pos++
	return token{kind: tokPunct, text: string(c)}
}

// tokenize runs the lexer to completion.
func tokenize(sql string) ([]token, error) {
	l := newLexer(sql)
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		if t.kind == tokEOF {
			return toks, nil
		}
		toks = append(toks, t)
	}
}
