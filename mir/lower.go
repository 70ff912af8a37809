package mir

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/dcbaker/meson/ast"
)

// Lowerer is the recursive-descent AST→MIR lowering state: the
// "current block" cursor the statement contract in spec §4.1 refers
// to is threaded explicitly through every method rather than stored
// as a field, so nested bodies (if-branches) can each carry their own
// cursor without clobbering the caller's.
type Lowerer struct {
	cfg *CFG
}

// Lower builds the initial CFG for one top-level code block. It never
// mutates the AST, and produces unresolved FunctionCall instructions
// and unresolved (GVN==0) Identifier uses — resolving those is the
// pass pipeline's job, not lowering's (spec §4.1).
func Lower(ctx context.Context, file string, body *ast.CodeBlock) (*CFG, error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower ast to mir", "file", file)
	defer tr.Finish()

	cfg := NewCFG()
	l := &Lowerer{cfg: cfg}

	_, err := l.block(ctx, cfg.Entry, body)
	if err != nil {
		return nil, errors.Wrap(err, "lower %s", file)
	}

	return cfg, nil
}

func (l *Lowerer) block(ctx context.Context, cur int, b *ast.CodeBlock) (int, error) {
	for _, stmt := range b.Stmts {
		var err error

		cur, err = l.stmt(ctx, cur, stmt)
		if err != nil {
			return cur, err
		}
	}

	return cur, nil
}

func (l *Lowerer) stmt(ctx context.Context, cur int, n ast.Node) (int, error) {
	switch x := n.(type) {
	case ast.Assignment:
		return l.assignment(ctx, cur, x)
	case ast.IfStatement:
		return l.ifStatement(ctx, cur, x)
	case ast.ForeachStatement:
		l.cfg.Node(cur).Block.Append(NewInstruction(Opaque{Kind: "foreach"}))
		return cur, nil
	case ast.Break:
		l.cfg.Node(cur).Block.Append(NewInstruction(Opaque{Kind: "break"}))
		return cur, nil
	case ast.Continue:
		l.cfg.Node(cur).Block.Append(NewInstruction(Opaque{Kind: "continue"}))
		return cur, nil
	default:
		inst, err := l.expr(n)
		if err != nil {
			return cur, errors.Wrap(err, "expression statement")
		}

		l.cfg.Node(cur).Block.Append(inst)

		return cur, nil
	}
}

func (l *Lowerer) assignment(ctx context.Context, cur int, a ast.Assignment) (int, error) {
	id, ok := a.Lhs.(ast.Identifier)
	if !ok {
		return cur, InvalidAssignmentTargetError{Loc: a.Loc()}
	}

	var rhs *Instruction

	if a.Op == "=" {
		v, err := l.expr(a.Rhs)
		if err != nil {
			return cur, errors.Wrap(err, "assignment rhs")
		}

		rhs = v
	} else {
		opName, ok := compoundOpName(a.Op)
		if !ok {
			return cur, errors.New("lower: unknown compound assignment operator %q", a.Op)
		}

		lv := NewInstruction(Identifier{Name: id.Name})

		rv, err := l.expr(a.Rhs)
		if err != nil {
			return cur, errors.Wrap(err, "assignment rhs")
		}

		rhs = NewInstruction(FunctionCall{Name: opName, Args: []*Instruction{lv, rv}})
	}

	rhs.Def = Variable{Name: id.Name}

	l.cfg.Node(cur).Block.Append(rhs)

	return cur, nil
}

// ifStatement lowers an if/elif/else chain per spec §4.1: a fresh join
// node is created, the current block gets a Branch whose arms are the
// branch conditions in source order plus a fallthrough, and each body
// is lowered into its own node that jumps unconditionally to join.
func (l *Lowerer) ifStatement(ctx context.Context, cur int, x ast.IfStatement) (int, error) {
	join := l.cfg.NewNode()

	var arms []BranchArm

	hasElse := false

	for i, br := range x.Branches {
		bodyIdx := l.cfg.NewNode()

		end, err := l.block(ctx, bodyIdx, br.Body)
		if err != nil {
			return cur, errors.Wrap(err, "if branch %d body", i)
		}

		l.cfg.SetTerminator(end, Jump{Target: join})

		if br.Cond == nil {
			hasElse = true
			arms = append(arms, BranchArm{Target: bodyIdx})

			continue
		}

		cond, err := l.expr(br.Cond)
		if err != nil {
			return cur, errors.Wrap(err, "if branch %d condition", i)
		}

		arms = append(arms, BranchArm{Pred: cond, Target: bodyIdx})
	}

	if !hasElse {
		arms = append(arms, BranchArm{Target: join})
	}

	l.cfg.SetTerminator(cur, Branch{Arms: arms})

	return join, nil
}

func (l *Lowerer) expr(n ast.Node) (*Instruction, error) {
	switch x := n.(type) {
	case ast.String:
		return NewInstruction(String{Value: x.Value}), nil
	case ast.Number:
		return NewInstruction(Number{Value: x.Value}), nil
	case ast.Boolean:
		return NewInstruction(Boolean{Value: x.Value}), nil
	case ast.Identifier:
		return NewInstruction(Identifier{Name: x.Name}), nil
	case ast.Array:
		elems := make([]*Instruction, len(x.Elems))

		for i, e := range x.Elems {
			ei, err := l.expr(e)
			if err != nil {
				return nil, errors.Wrap(err, "array element %d", i)
			}

			elems[i] = ei
		}

		return NewInstruction(Array{Elems: elems}), nil
	case ast.Dict:
		var d Dict

		for i, k := range x.Keys {
			ks, ok := k.(ast.String)
			if !ok {
				return nil, InvalidDictKeyError{Loc: n.Loc()}
			}

			vi, err := l.expr(x.Values[i])
			if err != nil {
				return nil, errors.Wrap(err, "dict value for key %q", ks.Value)
			}

			d.Set(ks.Value, vi)
		}

		return NewInstruction(d), nil
	case ast.FunctionCall:
		return l.call(x)
	case ast.GetAttribute:
		holder, err := l.expr(x.Object)
		if err != nil {
			return nil, errors.Wrap(err, "attribute holder")
		}

		return NewInstruction(FunctionCall{Name: x.Name, Holder: holder}), nil
	case ast.Subscript:
		obj, err := l.expr(x.Object)
		if err != nil {
			return nil, errors.Wrap(err, "subscript object")
		}

		idx, err := l.expr(x.Index)
		if err != nil {
			return nil, errors.Wrap(err, "subscript index")
		}

		return NewInstruction(FunctionCall{Name: "__getitem__", Args: []*Instruction{obj, idx}}), nil
	case ast.UnaryExpression:
		v, err := l.expr(x.X)
		if err != nil {
			return nil, errors.Wrap(err, "unary operand")
		}

		return NewInstruction(FunctionCall{Name: unaryOpName(x.Op), Args: []*Instruction{v}}), nil
	case ast.AdditiveExpression:
		return l.binOp(x.Op, x.Left, x.Right)
	case ast.MultiplicativeExpression:
		return l.binOp(x.Op, x.Left, x.Right)
	case ast.Relational:
		return l.binOp(x.Op, x.Left, x.Right)
	case ast.Ternary:
		cond, err := l.expr(x.Cond)
		if err != nil {
			return nil, errors.Wrap(err, "ternary condition")
		}

		then, err := l.expr(x.Then)
		if err != nil {
			return nil, errors.Wrap(err, "ternary then")
		}

		els, err := l.expr(x.Else)
		if err != nil {
			return nil, errors.Wrap(err, "ternary else")
		}

		return NewInstruction(FunctionCall{Name: "__ternary__", Args: []*Instruction{cond, then, els}}), nil
	default:
		return nil, errors.New("lower: unsupported expression %T", n)
	}
}

func (l *Lowerer) call(x ast.FunctionCall) (*Instruction, error) {
	var (
		holder *Instruction
		name   string
	)

	switch f := x.Func.(type) {
	case ast.Identifier:
		name = f.Name
	case ast.GetAttribute:
		h, err := l.expr(f.Object)
		if err != nil {
			return nil, errors.Wrap(err, "method holder")
		}

		holder = h
		name = f.Name
	default:
		return nil, NotCallableError{Loc: x.Loc()}
	}

	args := make([]*Instruction, len(x.Args))

	for i, a := range x.Args {
		ai, err := l.expr(a)
		if err != nil {
			return nil, errors.Wrap(err, "argument %d", i)
		}

		args[i] = ai
	}

	var kwargs map[string]*Instruction

	if len(x.KwOrder) > 0 {
		kwargs = make(map[string]*Instruction, len(x.KwOrder))

		for _, k := range x.KwOrder {
			vi, err := l.expr(x.KwArgs[k])
			if err != nil {
				return nil, errors.Wrap(err, "keyword argument %s", k)
			}

			kwargs[k] = vi
		}
	}

	return NewInstruction(FunctionCall{
		Name:      name,
		Holder:    holder,
		Args:      args,
		KwArgs:    kwargs,
		KwOrder:   x.KwOrder,
		SourceDir: x.Loc().File,
	}), nil
}

func (l *Lowerer) binOp(op string, left, right ast.Node) (*Instruction, error) {
	lv, err := l.expr(left)
	if err != nil {
		return nil, errors.Wrap(err, "left operand")
	}

	rv, err := l.expr(right)
	if err != nil {
		return nil, errors.Wrap(err, "right operand")
	}

	name, ok := binOpName(op)
	if !ok {
		return nil, errors.New("lower: unknown operator %q", op)
	}

	return NewInstruction(FunctionCall{Name: name, Args: []*Instruction{lv, rv}}), nil
}

// binOpName and unaryOpName implement the placeholder-operator design
// note in spec §9: operators lower to reserved-name FunctionCalls so
// ConstantFolding can resolve them uniformly instead of the source's
// "placeholder: add" strings.
func binOpName(op string) (string, bool) {
	switch op {
	case "+":
		return "__add__", true
	case "-":
		return "__sub__", true
	case "*":
		return "__mul__", true
	case "/":
		return "__div__", true
	case "%":
		return "__mod__", true
	case "==":
		return "__eq__", true
	case "!=":
		return "__ne__", true
	case "<":
		return "__lt__", true
	case "<=":
		return "__le__", true
	case ">":
		return "__gt__", true
	case ">=":
		return "__ge__", true
	case "in":
		return "__in__", true
	case "not in":
		return "__not_in__", true
	case "and":
		return "__and__", true
	case "or":
		return "__or__", true
	default:
		return "", false
	}
}

func unaryOpName(op string) string {
	switch op {
	case "-":
		return "__neg__"
	case "not":
		return "__not__"
	default:
		return "__unknown_unary__"
	}
}

func compoundOpName(op string) (string, bool) {
	switch op {
	case "+=":
		return "__add__", true
	case "-=":
		return "__sub__", true
	case "*=":
		return "__mul__", true
	case "/=":
		return "__div__", true
	case "%=":
		return "__mod__", true
	default:
		return "", false
	}
}
