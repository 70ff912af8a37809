package passes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcbaker/meson/mir"
)

func callInstr(name string, args ...*mir.Instruction) *mir.Instruction {
	return mir.NewInstruction(mir.FunctionCall{Name: name, Args: args})
}

func num(v int64) *mir.Instruction    { return mir.NewInstruction(mir.Number{Value: v}) }
func str(v string) *mir.Instruction   { return mir.NewInstruction(mir.String{Value: v}) }
func boolean(v bool) *mir.Instruction { return mir.NewInstruction(mir.Boolean{Value: v}) }

func TestFold_ArithmeticAndDivByZero(t *testing.T) {
	cases := []struct {
		op   string
		l, r int64
		want mir.Object
	}{
		{"__add__", 1, 2, mir.Number{Value: 3}},
		{"__sub__", 5, 2, mir.Number{Value: 3}},
		{"__mul__", 5, 2, mir.Number{Value: 10}},
		{"__div__", 7, 2, mir.Number{Value: 3}},
		{"__mod__", 7, 2, mir.Number{Value: 1}},
	}

	for _, c := range cases {
		inst := callInstr(c.op, num(c.l), num(c.r))
		changed := fold(inst)
		require.True(t, changed, c.op)
		assert.Equal(t, c.want, inst.Obj, c.op)
	}

	for _, op := range []string{"__div__", "__mod__"} {
		inst := callInstr(op, num(1), num(0))
		changed := fold(inst)
		require.True(t, changed)

		msg, ok := inst.Obj.(mir.Message)
		require.True(t, ok)
		assert.Equal(t, mir.LevelError, msg.Level)
	}
}

func TestFold_IntegerOverflowProducesErrorMessage(t *testing.T) {
	cases := []struct {
		op   string
		l, r int64
	}{
		{"__add__", math.MaxInt64, 1},
		{"__sub__", math.MinInt64, 1},
		{"__mul__", math.MaxInt64, 2},
	}

	for _, c := range cases {
		inst := callInstr(c.op, num(c.l), num(c.r))
		changed := fold(inst)
		require.True(t, changed, c.op)

		msg, ok := inst.Obj.(mir.Message)
		require.True(t, ok, c.op)
		assert.Equal(t, mir.LevelError, msg.Level, c.op)
	}
}

func TestFold_StringAndArrayAndDictConcat(t *testing.T) {
	inst := callInstr("__add__", str("foo"), str("bar"))
	require.True(t, fold(inst))
	assert.Equal(t, mir.String{Value: "foobar"}, inst.Obj)

	arrInst := callInstr("__add__",
		mir.NewInstruction(mir.Array{Elems: []*mir.Instruction{num(1)}}),
		mir.NewInstruction(mir.Array{Elems: []*mir.Instruction{num(2)}}),
	)
	require.True(t, fold(arrInst))

	arr, ok := arrInst.Obj.(mir.Array)
	require.True(t, ok)
	require.Len(t, arr.Elems, 2)
	assert.Equal(t, mir.Number{Value: 1}, arr.Elems[0].Obj)
	assert.Equal(t, mir.Number{Value: 2}, arr.Elems[1].Obj)

	var left, right mir.Dict
	left.Set("a", num(1))
	right.Set("a", num(2))
	right.Set("b", num(3))

	dictInst := callInstr("__add__", mir.NewInstruction(left), mir.NewInstruction(right))
	require.True(t, fold(dictInst))

	merged, ok := dictInst.Obj.(mir.Dict)
	require.True(t, ok)

	v, ok := merged.Get("a")
	require.True(t, ok)
	assert.Equal(t, mir.Number{Value: 2}, v.Obj, "right-biased merge overwrites left")

	v, ok = merged.Get("b")
	require.True(t, ok)
	assert.Equal(t, mir.Number{Value: 3}, v.Obj)
}

func TestFold_Membership(t *testing.T) {
	arr := mir.NewInstruction(mir.Array{Elems: []*mir.Instruction{str("a"), str("b")}})

	inInst := callInstr("__in__", str("a"), arr)
	require.True(t, fold(inInst))
	assert.Equal(t, mir.Boolean{Value: true}, inInst.Obj)

	notInInst := callInstr("__not_in__", str("z"), arr)
	require.True(t, fold(notInInst))
	assert.Equal(t, mir.Boolean{Value: true}, notInInst.Obj)

	var d mir.Dict
	d.Set("key", num(1))

	dictIn := callInstr("__in__", str("key"), mir.NewInstruction(d))
	require.True(t, fold(dictIn))
	assert.Equal(t, mir.Boolean{Value: true}, dictIn.Obj)
}

func TestFold_ComparisonsAndEquality(t *testing.T) {
	assertFoldsTo := func(op string, l, r *mir.Instruction, want bool) {
		t.Helper()

		inst := callInstr(op, l, r)
		require.True(t, fold(inst), op)
		assert.Equal(t, mir.Boolean{Value: want}, inst.Obj, op)
	}

	assertFoldsTo("__eq__", num(1), num(1), true)
	assertFoldsTo("__ne__", num(1), num(5), true)
	assertFoldsTo("__eq__", str("foo"), str("foo"), true)
	assertFoldsTo("__lt__", num(1), num(2), true)
	assertFoldsTo("__ge__", num(2), num(2), true)
}

func TestFold_UnaryNotAndNeg(t *testing.T) {
	notInst := callInstr("__not__", boolean(false))
	require.True(t, fold(notInst))
	assert.Equal(t, mir.Boolean{Value: true}, notInst.Obj)

	negInst := callInstr("__neg__", num(5))
	require.True(t, fold(negInst))
	assert.Equal(t, mir.Number{Value: -5}, negInst.Obj)
}

func TestFold_UnresolvedOperandsLeftAlone(t *testing.T) {
	inst := callInstr("__add__", mir.NewInstruction(mir.Identifier{Name: "x"}), num(1))
	assert.False(t, fold(inst))
	_, stillCall := inst.Obj.(mir.FunctionCall)
	assert.True(t, stillCall)
}

// TestConstantFolding_Idempotent is the spec §8 property: running
// ConstantFolding twice yields the same CFG.
func TestConstantFolding_Idempotent(t *testing.T) {
	cfg := mir.NewCFG()
	cfg.Node(cfg.Entry).Block.Append(callInstr("__add__", num(1), num(2)))

	p := ConstantFolding{}

	changed1 := p.RunNode(nil, cfg, cfg.Entry)
	require.True(t, changed1)

	before := cfg.Node(cfg.Entry).Block.Instrs[0].Obj

	changed2 := p.RunNode(nil, cfg, cfg.Entry)
	assert.False(t, changed2)
	assert.Equal(t, before, cfg.Node(cfg.Entry).Block.Instrs[0].Obj)
}

func TestVersionCompare(t *testing.T) {
	assert.True(t, versionCompare("3.6", "< 3.7"))
	assert.False(t, versionCompare("3.8", "< 3.7"))
	assert.True(t, versionCompare("1.2.3", ">= 1.2.3"))
	assert.True(t, versionCompare("1.2.3", "1.2.3"))
}
