package frontend

import (
	"tlog.app/go/errors"

	"github.com/dcbaker/meson/ast"
)

type Parser struct {
	l    *lexer
	cur  token
	file string
}

// Parse lexes and parses the whole of b as one top-level code block.
func Parse(file string, b []byte) (*ast.CodeBlock, error) {
	p := &Parser{l: newLexer(file, b), file: file}

	if err := p.advance(); err != nil {
		return nil, err
	}

	block, err := p.codeBlock(nil)
	if err != nil {
		return nil, err
	}

	if p.cur.kind != tokEOF {
		return nil, errors.New("%s:%d: unexpected token %q", file, p.cur.line, p.cur.value)
	}

	return block, nil
}

func (p *Parser) advance() error {
	t, err := p.l.next()
	if err != nil {
		return err
	}

	p.cur = t

	return nil
}

func (p *Parser) loc() ast.Location {
	return ast.NewLoc(p.file, p.cur.line, p.cur.col, p.cur.line, p.cur.col)
}

func (p *Parser) skipNewlines() error {
	for p.cur.kind == tokNewline {
		if err := p.advance(); err != nil {
			return err
		}
	}

	return nil
}

func (p *Parser) atKeyword(kw string) bool {
	return p.cur.kind == tokKeyword && p.cur.value == kw
}

func (p *Parser) atPunct(pu string) bool {
	return p.cur.kind == tokPunct && p.cur.value == pu
}

func (p *Parser) expectPunct(pu string) error {
	if !p.atPunct(pu) {
		return errors.New("%s:%d: expected %q, got %q", p.file, p.cur.line, pu, p.cur.value)
	}

	return p.advance()
}

// codeBlock parses statements until it hits one of the stop keywords
// (or EOF for the top-level block).
func (p *Parser) codeBlock(stop []string) (*ast.CodeBlock, error) {
	block := &ast.CodeBlock{}

	for {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}

		if p.cur.kind == tokEOF {
			break
		}

		stopped := false

		for _, kw := range stop {
			if p.atKeyword(kw) {
				stopped = true
				break
			}
		}

		if stopped {
			break
		}

		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}

		block.Stmts = append(block.Stmts, stmt)
	}

	return block, nil
}

func (p *Parser) statement() (ast.Node, error) {
	switch {
	case p.atKeyword("if"):
		return p.ifStatement()
	case p.atKeyword("foreach"):
		return p.foreachStatement()
	case p.atKeyword("break"):
		if err := p.advance(); err != nil {
			return nil, err
		}

		return ast.Break{}, nil
	case p.atKeyword("continue"):
		if err := p.advance(); err != nil {
			return nil, err
		}

		return ast.Continue{}, nil
	default:
		return p.simpleStatement()
	}
}

func (p *Parser) simpleStatement() (ast.Node, error) {
	lhs, err := p.expr()
	if err != nil {
		return nil, err
	}

	for _, op := range []string{"=", "+=", "-=", "*=", "/=", "%="} {
		if p.atPunct(op) {
			if err := p.advance(); err != nil {
				return nil, err
			}

			rhs, err := p.expr()
			if err != nil {
				return nil, err
			}

			a := ast.Assignment{Op: op, Lhs: lhs, Rhs: rhs}
			a.Location = lhs.Loc()

			return a, nil
		}
	}

	return lhs, nil
}

func (p *Parser) ifStatement() (ast.Node, error) {
	var branches []ast.IfBranch

	if err := p.advance(); err != nil { // consume "if"
		return nil, err
	}

	for {
		cond, err := p.expr()
		if err != nil {
			return nil, err
		}

		body, err := p.codeBlock([]string{"elif", "else", "endif"})
		if err != nil {
			return nil, err
		}

		branches = append(branches, ast.IfBranch{Cond: cond, Body: body})

		if p.atKeyword("elif") {
			if err := p.advance(); err != nil {
				return nil, err
			}

			continue
		}

		break
	}

	if p.atKeyword("else") {
		if err := p.advance(); err != nil {
			return nil, err
		}

		body, err := p.codeBlock([]string{"endif"})
		if err != nil {
			return nil, err
		}

		branches = append(branches, ast.IfBranch{Cond: nil, Body: body})
	}

	if !p.atKeyword("endif") {
		return nil, errors.New("%s:%d: expected endif", p.file, p.cur.line)
	}

	if err := p.advance(); err != nil {
		return nil, err
	}

	return ast.IfStatement{Branches: branches}, nil
}

func (p *Parser) foreachStatement() (ast.Node, error) {
	if err := p.advance(); err != nil { // consume "foreach"
		return nil, err
	}

	var vars []string

	for {
		if p.cur.kind != tokIdent {
			return nil, errors.New("%s:%d: expected loop variable", p.file, p.cur.line)
		}

		vars = append(vars, p.cur.value)

		if err := p.advance(); err != nil {
			return nil, err
		}

		if p.atPunct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}

			continue
		}

		break
	}

	if !p.atKeyword("in") {
		return nil, errors.New("%s:%d: expected 'in'", p.file, p.cur.line)
	}

	if err := p.advance(); err != nil {
		return nil, err
	}

	iter, err := p.expr()
	if err != nil {
		return nil, err
	}

	body, err := p.codeBlock([]string{"endforeach"})
	if err != nil {
		return nil, err
	}

	if err := p.advance(); err != nil { // consume "endforeach"
		return nil, err
	}

	return ast.ForeachStatement{Vars: vars, Iter: iter, Body: body}, nil
}

// Expression grammar, loosest to tightest:
//
//	expr       -> ternary
//	ternary    -> or ('?' expr ':' expr)?
//	or         -> and ('or' and)*
//	and        -> not ('and' not)*
//	not        -> 'not' not | relational
//	relational -> additive (('==' | '!=' | '<' | '<=' | '>' | '>=' | 'in' | 'not' 'in') additive)*
//	additive   -> multiplicative (('+' | '-') multiplicative)*
//	mul        -> unary (('*' | '/' | '%') unary)*
//	unary      -> '-' unary | postfix
//	postfix    -> primary ('.' ident | '(' args ')' | '[' expr ']')*
func (p *Parser) expr() (ast.Node, error) { return p.ternary() }

func (p *Parser) ternary() (ast.Node, error) {
	cond, err := p.or()
	if err != nil {
		return nil, err
	}

	if !p.atPunct("?") {
		return cond, nil
	}

	if err := p.advance(); err != nil {
		return nil, err
	}

	then, err := p.expr()
	if err != nil {
		return nil, err
	}

	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}

	els, err := p.expr()
	if err != nil {
		return nil, err
	}

	return ast.Ternary{Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) or() (ast.Node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}

	for p.atKeyword("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}

		right, err := p.and()
		if err != nil {
			return nil, err
		}

		left = ast.Relational{Op: "or", Left: left, Right: right}
	}

	return left, nil
}

func (p *Parser) and() (ast.Node, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}

	for p.atKeyword("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}

		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}

		left = ast.Relational{Op: "and", Left: left, Right: right}
	}

	return left, nil
}

func (p *Parser) notExpr() (ast.Node, error) {
	if p.atKeyword("not") {
		if err := p.advance(); err != nil {
			return nil, err
		}

		x, err := p.notExpr()
		if err != nil {
			return nil, err
		}

		return ast.UnaryExpression{Op: "not", X: x}, nil
	}

	return p.relational()
}

func (p *Parser) relational() (ast.Node, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.atPunct("=="), p.atPunct("!="), p.atPunct("<"), p.atPunct("<="),
			p.atPunct(">"), p.atPunct(">="):
			op := p.cur.value

			if err := p.advance(); err != nil {
				return nil, err
			}

			right, err := p.additive()
			if err != nil {
				return nil, err
			}

			left = ast.Relational{Op: op, Left: left, Right: right}
		case p.atKeyword("in"):
			if err := p.advance(); err != nil {
				return nil, err
			}

			right, err := p.additive()
			if err != nil {
				return nil, err
			}

			left = ast.Relational{Op: "in", Left: left, Right: right}
		case p.atKeyword("not"):
			// lookahead for "not in"
			save := *p.l
			saveCur := p.cur

			if err := p.advance(); err != nil {
				return nil, err
			}

			if !p.atKeyword("in") {
				*p.l = save
				p.cur = saveCur

				return left, nil
			}

			if err := p.advance(); err != nil {
				return nil, err
			}

			right, err := p.additive()
			if err != nil {
				return nil, err
			}

			left = ast.Relational{Op: "not in", Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *Parser) additive() (ast.Node, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}

	for p.atPunct("+") || p.atPunct("-") {
		op := p.cur.value

		if err := p.advance(); err != nil {
			return nil, err
		}

		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}

		left = ast.AdditiveExpression{Op: op, Left: left, Right: right}
	}

	return left, nil
}

func (p *Parser) multiplicative() (ast.Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}

	for p.atPunct("*") || p.atPunct("/") || p.atPunct("%") {
		op := p.cur.value

		if err := p.advance(); err != nil {
			return nil, err
		}

		right, err := p.unary()
		if err != nil {
			return nil, err
		}

		left = ast.MultiplicativeExpression{Op: op, Left: left, Right: right}
	}

	return left, nil
}

func (p *Parser) unary() (ast.Node, error) {
	if p.atPunct("-") {
		if err := p.advance(); err != nil {
			return nil, err
		}

		x, err := p.unary()
		if err != nil {
			return nil, err
		}

		return ast.UnaryExpression{Op: "-", X: x}, nil
	}

	return p.postfix()
}

func (p *Parser) postfix() (ast.Node, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.atPunct("."):
			if err := p.advance(); err != nil {
				return nil, err
			}

			if p.cur.kind != tokIdent {
				return nil, errors.New("%s:%d: expected attribute name", p.file, p.cur.line)
			}

			name := p.cur.value

			if err := p.advance(); err != nil {
				return nil, err
			}

			if p.atPunct("(") {
				call, err := p.callArgs(ast.GetAttribute{Object: x, Name: name})
				if err != nil {
					return nil, err
				}

				x = call

				continue
			}

			x = ast.GetAttribute{Object: x, Name: name}
		case p.atPunct("("):
			call, err := p.callArgs(x)
			if err != nil {
				return nil, err
			}

			x = call
		case p.atPunct("["):
			if err := p.advance(); err != nil {
				return nil, err
			}

			idx, err := p.expr()
			if err != nil {
				return nil, err
			}

			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}

			x = ast.Subscript{Object: x, Index: idx}
		default:
			return x, nil
		}
	}
}

// callArgs parses '(' arg, arg, name: kwarg, ... ')' assuming fn is
// the already-parsed callee (a plain identifier or a GetAttribute for
// a method call).
func (p *Parser) callArgs(fn ast.Node) (ast.Node, error) {
	if err := p.advance(); err != nil { // consume "("
		return nil, err
	}

	call := ast.FunctionCall{Func: fn, KwArgs: map[string]ast.Node{}}

	for !p.atPunct(")") {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}

		if p.atPunct(")") {
			break
		}

		if p.cur.kind == tokIdent {
			save := *p.l
			saveCur := p.cur
			name := p.cur.value

			if err := p.advance(); err != nil {
				return nil, err
			}

			if p.atPunct(":") {
				if err := p.advance(); err != nil {
					return nil, err
				}

				val, err := p.expr()
				if err != nil {
					return nil, err
				}

				call.KwArgs[name] = val
				call.KwOrder = append(call.KwOrder, name)

				if err := p.afterArg(); err != nil {
					return nil, err
				}

				continue
			}

			*p.l = save
			p.cur = saveCur
		}

		arg, err := p.expr()
		if err != nil {
			return nil, err
		}

		call.Args = append(call.Args, arg)

		if err := p.afterArg(); err != nil {
			return nil, err
		}
	}

	if err := p.advance(); err != nil { // consume ")"
		return nil, err
	}

	return call, nil
}

func (p *Parser) afterArg() error {
	if err := p.skipNewlines(); err != nil {
		return err
	}

	if p.atPunct(",") {
		if err := p.advance(); err != nil {
			return err
		}

		return p.skipNewlines()
	}

	return nil
}

func (p *Parser) primary() (ast.Node, error) {
	switch {
	case p.cur.kind == tokNumber:
		n := p.cur.numValue
		loc := p.loc()

		if err := p.advance(); err != nil {
			return nil, err
		}

		return ast.NewNumber(loc, n), nil
	case p.cur.kind == tokString:
		s := p.cur.value
		loc := p.loc()

		if err := p.advance(); err != nil {
			return nil, err
		}

		return ast.NewString(loc, s), nil
	case p.atKeyword("true"), p.atKeyword("false"):
		b := p.cur.value == "true"

		if err := p.advance(); err != nil {
			return nil, err
		}

		return ast.Boolean{Value: b}, nil
	case p.cur.kind == tokIdent:
		name := p.cur.value
		loc := p.loc()

		if err := p.advance(); err != nil {
			return nil, err
		}

		return ast.NewIdentifier(loc, name), nil
	case p.atPunct("("):
		if err := p.advance(); err != nil {
			return nil, err
		}

		x, err := p.expr()
		if err != nil {
			return nil, err
		}

		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}

		return x, nil
	case p.atPunct("["):
		return p.array()
	case p.atPunct("{"):
		return p.dict()
	default:
		return nil, errors.New("%s:%d: unexpected token %q", p.file, p.cur.line, p.cur.value)
	}
}

func (p *Parser) array() (ast.Node, error) {
	if err := p.advance(); err != nil { // consume "["
		return nil, err
	}

	var elems []ast.Node

	for !p.atPunct("]") {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}

		if p.atPunct("]") {
			break
		}

		e, err := p.expr()
		if err != nil {
			return nil, err
		}

		elems = append(elems, e)

		if err := p.afterArg(); err != nil {
			return nil, err
		}
	}

	if err := p.advance(); err != nil { // consume "]"
		return nil, err
	}

	return ast.Array{Elems: elems}, nil
}

func (p *Parser) dict() (ast.Node, error) {
	if err := p.advance(); err != nil { // consume "{"
		return nil, err
	}

	var keys, values []ast.Node

	for !p.atPunct("}") {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}

		if p.atPunct("}") {
			break
		}

		k, err := p.expr()
		if err != nil {
			return nil, err
		}

		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}

		v, err := p.expr()
		if err != nil {
			return nil, err
		}

		keys = append(keys, k)
		values = append(values, v)

		if err := p.afterArg(); err != nil {
			return nil, err
		}
	}

	if err := p.advance(); err != nil { // consume "}"
		return nil, err
	}

	return ast.Dict{Keys: keys, Values: values}, nil
}
