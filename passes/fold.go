package passes

import (
	"strings"

	"github.com/dcbaker/meson/mir"
)

// ConstantFolding rewrites a FunctionCall whose operands are all
// literals into the literal result, per the operator table spec §4.4
// defines. It never touches a call whose operands aren't fully
// resolved yet — resolving them is the job of the SSA round, which
// runs before this pass, and of ConstantPropagation, which runs after
// it; the driver's next round folds what propagation exposed.
type ConstantFolding struct{}

func (ConstantFolding) Name() string { return "constant_folding" }

func (ConstantFolding) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	progress := false

	for _, inst := range cfg.Node(node).Block.Instrs {
		if fold(inst) {
			progress = true
		}
	}

	return progress
}

func fold(inst *mir.Instruction) bool {
	fn, ok := inst.Obj.(mir.FunctionCall)
	if !ok {
		return false
	}

	if fn.Holder != nil {
		return false
	}

	switch len(fn.Args) {
	case 1:
		v, ok := literal(fn.Args[0])
		if !ok {
			return false
		}

		res, ok := foldUnary(fn.Name, v)
		if !ok {
			return false
		}

		inst.Obj = res

		return true
	case 2:
		// __in__/__not_in__ accept an Array or Dict on the right, which
		// literal() (scalar-only) never admits; handle them against the
		// raw resolved operand before falling through to the scalar path.
		if fn.Name == "__in__" || fn.Name == "__not_in__" {
			if res, ok := foldMembership(fn.Name, fn.Args[0], fn.Args[1]); ok {
				inst.Obj = res
				return true
			}

			return false
		}

		l, ok := foldOperand(fn.Args[0])
		if !ok {
			return false
		}

		r, ok := foldOperand(fn.Args[1])
		if !ok {
			return false
		}

		res, err := foldBinary(fn.Name, l, r)
		if err != nil {
			inst.Obj = mir.Message{Level: mir.LevelError, Text: err.Error()}
			return true
		}

		if res == nil {
			return false
		}

		inst.Obj = res

		return true
	default:
		return false
	}
}

func literal(inst *mir.Instruction) (mir.Object, bool) {
	if inst == nil {
		return nil, false
	}

	if mir.IsLiteral(inst.Obj) {
		return inst.Obj, true
	}

	return nil, false
}

// foldOperand accepts a scalar literal or a resolved Array/Dict
// (itself not necessarily built from literal elements) — __add__'s
// Array/Dict arms (spec §4.4) only need the container shape, not its
// contents, to fold.
func foldOperand(inst *mir.Instruction) (mir.Object, bool) {
	if inst == nil {
		return nil, false
	}

	switch inst.Obj.(type) {
	case mir.String, mir.Boolean, mir.Number, mir.Array, mir.Dict:
		return inst.Obj, true
	default:
		return nil, false
	}
}

// foldMembership implements the __in__/__not_in__ arms of spec §4.4's
// operator table: T in Array<T>, or a string key in a Dict.
func foldMembership(name string, needle, haystack *mir.Instruction) (mir.Object, bool) {
	n, ok := literal(needle)
	if !ok {
		return nil, false
	}

	var found bool

	switch h := haystack.Obj.(type) {
	case mir.Array:
		for _, e := range h.Elems {
			ev, ok := literal(e)
			if !ok {
				return nil, false
			}

			if equalLiterals(n, ev) {
				found = true
				break
			}
		}
	case mir.Dict:
		ns, ok := n.(mir.String)
		if !ok {
			return nil, false
		}

		_, found = h.Get(ns.Value)
	default:
		return nil, false
	}

	if name == "__not_in__" {
		found = !found
	}

	return mir.Boolean{Value: found}, true
}

func foldUnary(name string, v mir.Object) (mir.Object, bool) {
	switch name {
	case "__not__":
		b, ok := v.(mir.Boolean)
		if !ok {
			return nil, false
		}

		return mir.Boolean{Value: !b.Value}, true
	case "__neg__":
		n, ok := v.(mir.Number)
		if !ok {
			return nil, false
		}

		return mir.Number{Value: -n.Value}, true
	default:
		return nil, false
	}
}

func foldBinary(name string, l, r mir.Object) (mir.Object, error) {
	switch name {
	case "__add__":
		return addFold(l, r)
	case "__sub__", "__mul__", "__div__", "__mod__":
		return arithFold(name, l, r)
	case "__eq__":
		return mir.Boolean{Value: equalLiterals(l, r)}, nil
	case "__ne__":
		return mir.Boolean{Value: !equalLiterals(l, r)}, nil
	case "__lt__", "__le__", "__gt__", "__ge__":
		return compareFold(name, l, r)
	case "__and__":
		lb, lok := l.(mir.Boolean)
		rb, rok := r.(mir.Boolean)

		if !lok || !rok {
			return nil, nil
		}

		return mir.Boolean{Value: lb.Value && rb.Value}, nil
	case "__or__":
		lb, lok := l.(mir.Boolean)
		rb, rok := r.(mir.Boolean)

		if !lok || !rok {
			return nil, nil
		}

		return mir.Boolean{Value: lb.Value || rb.Value}, nil
	default:
		return nil, nil
	}
}

func addFold(l, r mir.Object) (mir.Object, error) {
	switch lv := l.(type) {
	case mir.Number:
		rv, ok := r.(mir.Number)
		if !ok {
			return nil, nil
		}

		sum := lv.Value + rv.Value
		if (rv.Value > 0 && sum < lv.Value) || (rv.Value < 0 && sum > lv.Value) {
			return nil, mir.IntegerOverflowError{Op: "__add__"}
		}

		return mir.Number{Value: sum}, nil
	case mir.String:
		rv, ok := r.(mir.String)
		if !ok {
			return nil, nil
		}

		return mir.String{Value: lv.Value + rv.Value}, nil
	case mir.Array:
		rv, ok := r.(mir.Array)
		if !ok {
			return nil, nil
		}

		elems := make([]*mir.Instruction, 0, len(lv.Elems)+len(rv.Elems))
		elems = append(elems, lv.Elems...)
		elems = append(elems, rv.Elems...)

		return mir.Array{Elems: elems}, nil
	case mir.Dict:
		rv, ok := r.(mir.Dict)
		if !ok {
			return nil, nil
		}

		var merged mir.Dict

		for _, e := range lv.Entries {
			merged.Set(e.Key, e.Value)
		}

		// Right-biased merge (spec §4.4): rv's entries overwrite lv's.
		for _, e := range rv.Entries {
			merged.Set(e.Key, e.Value)
		}

		return merged, nil
	default:
		return nil, nil
	}
}

func arithFold(name string, l, r mir.Object) (mir.Object, error) {
	lv, lok := l.(mir.Number)
	rv, rok := r.(mir.Number)

	if !lok || !rok {
		return nil, nil
	}

	switch name {
	case "__sub__":
		diff := lv.Value - rv.Value
		if (rv.Value < 0 && diff < lv.Value) || (rv.Value > 0 && diff > lv.Value) {
			return nil, mir.IntegerOverflowError{Op: "__sub__"}
		}

		return mir.Number{Value: diff}, nil
	case "__mul__":
		prod := lv.Value * rv.Value
		if lv.Value != 0 && prod/lv.Value != rv.Value {
			return nil, mir.IntegerOverflowError{Op: "__mul__"}
		}

		return mir.Number{Value: prod}, nil
	case "__div__":
		if rv.Value == 0 {
			return nil, mir.DivByZeroError{}
		}

		return mir.Number{Value: lv.Value / rv.Value}, nil
	case "__mod__":
		if rv.Value == 0 {
			return nil, mir.DivByZeroError{}
		}

		return mir.Number{Value: lv.Value % rv.Value}, nil
	default:
		return nil, nil
	}
}

func compareFold(name string, l, r mir.Object) (mir.Object, error) {
	lv, lok := l.(mir.Number)
	rv, rok := r.(mir.Number)

	if !lok || !rok {
		return nil, nil
	}

	switch name {
	case "__lt__":
		return mir.Boolean{Value: lv.Value < rv.Value}, nil
	case "__le__":
		return mir.Boolean{Value: lv.Value <= rv.Value}, nil
	case "__gt__":
		return mir.Boolean{Value: lv.Value > rv.Value}, nil
	case "__ge__":
		return mir.Boolean{Value: lv.Value >= rv.Value}, nil
	default:
		return nil, nil
	}
}

func equalLiterals(l, r mir.Object) bool {
	switch lv := l.(type) {
	case mir.Number:
		rv, ok := r.(mir.Number)
		return ok && lv.Value == rv.Value
	case mir.String:
		rv, ok := r.(mir.String)
		return ok && lv.Value == rv.Value
	case mir.Boolean:
		rv, ok := r.(mir.Boolean)
		return ok && lv.Value == rv.Value
	default:
		return false
	}
}

// versionCompare implements the subset of version comparison
// '<op> X.Y' strings used against compiler.version_compare() and
// dependency.version_compare() need (spec §4.12's supplemented
// string/version methods).
func versionCompare(cur, expr string) bool {
	expr = strings.TrimSpace(expr)

	for _, op := range []string{">=", "<=", "==", "!=", ">", "<"} {
		if strings.HasPrefix(expr, op) {
			want := strings.TrimSpace(strings.TrimPrefix(expr, op))
			c := compareVersions(cur, want)

			switch op {
			case ">=":
				return c >= 0
			case "<=":
				return c <= 0
			case "==":
				return c == 0
			case "!=":
				return c != 0
			case ">":
				return c > 0
			case "<":
				return c < 0
			}
		}
	}

	return compareVersions(cur, expr) == 0
}

func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int

		if i < len(as) {
			av = atoiSafe(as[i])
		}

		if i < len(bs) {
			bv = atoiSafe(bs[i])
		}

		if av != bv {
			if av < bv {
				return -1
			}

			return 1
		}
	}

	return 0
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}

		n = n*10 + int(c-'0')
	}

	return n
}
