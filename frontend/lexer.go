// Package frontend turns DSL source text into an ast.CodeBlock: a
// byte-cursor lexer grounded on the same token/skip-function shape
// the teacher's parser uses, feeding a recursive-descent parser (spec
// §1's "frontend is outside the MIR core" note — this package exists
// so the repository is runnable end to end, not because the
// specification requires it).
package frontend

import "github.com/dcbaker/meson/ast"

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokKeyword
	tokString
	tokNumber
	tokPunct
	tokNewline
)

type token struct {
	kind     tokKind
	value    string
	numValue int64
	line     int
	col      int
}

var keywords = map[string]bool{
	"if": true, "elif": true, "else": true, "endif": true,
	"foreach": true, "endforeach": true, "break": true, "continue": true,
	"and": true, "or": true, "not": true, "in": true,
	"true": true, "false": true,
}

type lexer struct {
	file string
	b    []byte
	pos  int
	line int
	col  int
}

func newLexer(file string, b []byte) *lexer {
	return &lexer{file: file, b: b, line: 1, col: 1}
}

func (l *lexer) loc() ast.Location {
	return ast.NewLoc(l.file, l.line, l.col, l.line, l.col)
}

func (l *lexer) advance() byte {
	c := l.b[l.pos]
	l.pos++

	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}

	return c
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.b) {
		return 0
	}

	return l.b[l.pos]
}

func (l *lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.b) {
		return 0
	}

	return l.b[l.pos+off]
}

// skipSpaces skips horizontal whitespace and '#' comments, but not
// newlines — statement boundaries in this DSL are newline-significant.
func (l *lexer) skipSpaces() {
	for l.pos < len(l.b) {
		switch l.b[l.pos] {
		case ' ', '\t', '\r':
			l.advance()
		case '#':
			for l.pos < len(l.b) && l.b[l.pos] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func skipIdent(b []byte, i int) int {
	for i < len(b) && (b[i] == '_' ||
		b[i] >= 'A' && b[i] <= 'Z' ||
		b[i] >= 'a' && b[i] <= 'z' ||
		b[i] >= '0' && b[i] <= '9') {
		i++
	}

	return i
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// next returns the next token, advancing the cursor past it.
func (l *lexer) next() (token, error) {
	l.skipSpaces()

	startLine, startCol := l.line, l.col

	if l.pos >= len(l.b) {
		return token{kind: tokEOF, line: startLine, col: startCol}, nil
	}

	c := l.b[l.pos]

	if c == '\n' {
		l.advance()
		return token{kind: tokNewline, line: startLine, col: startCol}, nil
	}

	if isIdentStart(c) {
		st := l.pos
		end := skipIdent(l.b, l.pos)

		for l.pos < end {
			l.advance()
		}

		word := string(l.b[st:l.pos])

		kind := tokIdent
		if keywords[word] {
			kind = tokKeyword
		}

		return token{kind: kind, value: word, line: startLine, col: startCol}, nil
	}

	if isDigit(c) {
		st := l.pos
		for l.pos < len(l.b) && isDigit(l.b[l.pos]) {
			l.advance()
		}

		var n int64

		for _, ch := range l.b[st:l.pos] {
			n = n*10 + int64(ch-'0')
		}

		return token{kind: tokNumber, value: string(l.b[st:l.pos]), numValue: n, line: startLine, col: startCol}, nil
	}

	if c == '\'' || c == '"' {
		quote := c
		l.advance()

		var buf []byte

		for l.pos < len(l.b) && l.b[l.pos] != quote {
			if l.b[l.pos] == '\\' && l.pos+1 < len(l.b) {
				l.advance()
				buf = append(buf, l.b[l.pos])
				l.advance()

				continue
			}

			buf = append(buf, l.b[l.pos])
			l.advance()
		}

		if l.pos < len(l.b) {
			l.advance()
		}

		return token{kind: tokString, value: string(buf), line: startLine, col: startCol}, nil
	}

	return l.punct(startLine, startCol)
}

func (l *lexer) punct(line, col int) (token, error) {
	two := func(a, b byte) bool { return l.peek() == a && l.peekAt(1) == b }

	switch {
	case two('=', '='), two('!', '='), two('<', '='), two('>', '='),
		two('+', '='), two('-', '='), two('*', '='), two('/', '='), two('%', '='):
		s := string([]byte{l.advance(), l.advance()})
		return token{kind: tokPunct, value: s, line: line, col: col}, nil
	default:
		c := l.advance()
		return token{kind: tokPunct, value: string(c), line: line, col: col}, nil
	}
}
