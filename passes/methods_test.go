package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcbaker/meson/mir"
	"github.com/dcbaker/meson/toolchain"
)

func methodCall(holder *mir.Instruction, name string, args ...*mir.Instruction) *mir.Instruction {
	if args == nil {
		args = []*mir.Instruction{}
	}

	return mir.NewInstruction(mir.FunctionCall{Name: name, Holder: holder, Args: args})
}

func TestFlatten_ResolvesBareAttributeAccess(t *testing.T) {
	prog := mir.NewInstruction(mir.Program{Name: "ninja", Path: "/usr/bin/ninja"})
	inst := mir.NewInstruction(mir.FunctionCall{Name: "path", Holder: prog})

	changed := (Flatten{}).RunNode(newTestContext(), cfgWith(inst), 0)
	require.True(t, changed)
	assert.Equal(t, mir.String{Value: "/usr/bin/ninja"}, inst.Obj)
}

func TestFlatten_LeavesMethodCallsAlone(t *testing.T) {
	prog := mir.NewInstruction(mir.Program{Name: "ninja"})
	inst := methodCall(prog, "found")

	changed := (Flatten{}).RunNode(newTestContext(), cfgWith(inst), 0)
	assert.False(t, changed, "a non-nil Args means this is a method call, not attribute access")
}

func cfgWith(inst *mir.Instruction) *mir.CFG {
	cfg := mir.NewCFG()
	cfg.Node(cfg.Entry).Block.Append(inst)

	return cfg
}

func TestLowerProgramObjects_FoundAndPath(t *testing.T) {
	prog := mir.NewInstruction(mir.Program{Name: "ninja", Path: "/usr/bin/ninja"})
	inst := methodCall(prog, "found")

	changed := (LowerProgramObjects{}).RunNode(newTestContext(), cfgWith(inst), 0)
	require.True(t, changed)
	assert.Equal(t, mir.Boolean{Value: true}, inst.Obj)
}

func TestLowerStringObjects_MethodTable(t *testing.T) {
	cases := []struct {
		name string
		args []*mir.Instruction
	}{
		{"strip", []*mir.Instruction{}},
		{"to_upper", []*mir.Instruction{}},
		{"contains", []*mir.Instruction{str("h")}},
		{"startswith", []*mir.Instruction{str("h")}},
	}

	for _, c := range cases {
		holder := mir.NewInstruction(mir.String{Value: " hi "})
		inst := mir.NewInstruction(mir.FunctionCall{Name: c.name, Holder: holder, Args: c.args})

		changed := (LowerStringObjects{}).RunNode(newTestContext(), cfgWith(inst), 0)
		require.True(t, changed, c.name)
	}
}

func TestLowerStringObjects_Split(t *testing.T) {
	holder := mir.NewInstruction(mir.String{Value: "a,b,c"})
	inst := mir.NewInstruction(mir.FunctionCall{Name: "split", Holder: holder, Args: []*mir.Instruction{str(",")}})

	changed := (LowerStringObjects{}).RunNode(newTestContext(), cfgWith(inst), 0)
	require.True(t, changed)

	arr, ok := inst.Obj.(mir.Array)
	require.True(t, ok)
	require.Len(t, arr.Elems, 3)
	assert.Equal(t, mir.String{Value: "b"}, arr.Elems[1].Obj)
}

func TestLowerDependencyObjects_FoundVersionCompare(t *testing.T) {
	dep := mir.NewInstruction(mir.Dependency{Name: "zlib", Found: true, Version: "1.2.11"})
	inst := methodCall(dep, "version_compare", str(">=1.0"))

	changed := (LowerDependencyObjects{}).RunNode(newTestContext(), cfgWith(inst), 0)
	require.True(t, changed)
	assert.Equal(t, mir.Boolean{Value: true}, inst.Obj)
}

func TestLowerCompilerMethods_GetIDAndHeaderProbeFallback(t *testing.T) {
	compiler := mir.NewInstruction(mir.Compiler{Language: "c", Machine: "host", Tool: toolchain.NewSimpleTool("gcc", "13")})

	idCall := methodCall(compiler, "get_id")
	pc := newTestContext()
	changed := (LowerCompilerMethods{}).RunNode(pc, cfgWith(idCall), 0)
	require.True(t, changed)
	assert.Equal(t, mir.String{Value: "gcc"}, idCall.Obj)

	hdrCall := methodCall(compiler, "has_header", str("stdio.h"))
	pc2 := newTestContext()
	changed = (LowerCompilerMethods{}).RunNode(pc2, cfgWith(hdrCall), 0)
	require.True(t, changed)
	assert.Equal(t, mir.Boolean{Value: false}, hdrCall.Obj)
	require.Len(t, pc2.Diagnostics, 1)
	assert.Equal(t, mir.LevelDebug, pc2.Diagnostics[0].Level)
}
