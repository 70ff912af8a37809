package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcbaker/meson/mir"
)

func TestConstantPropagation_SubstitutesResolvedIdentifier(t *testing.T) {
	cfg := mir.NewCFG()
	block := cfg.Node(cfg.Entry).Block

	def := mir.NewDefining("x", mir.Number{Value: 3})
	def.Def.GVN = 1
	block.Append(def)

	use := mir.NewInstruction(mir.Identifier{Name: "x", GVN: 1})
	block.Append(use)

	changed := (ConstantPropagation{}).Run(newTestContext(), cfg)
	require.True(t, changed)
	assert.Equal(t, mir.Number{Value: 3}, use.Obj)
}

func TestConstantPropagation_SubstitutesThroughNestedContainers(t *testing.T) {
	cfg := mir.NewCFG()
	block := cfg.Node(cfg.Entry).Block

	def := mir.NewDefining("x", mir.String{Value: "foo.c"})
	def.Def.GVN = 1
	block.Append(def)

	use := mir.NewInstruction(mir.Identifier{Name: "x", GVN: 1})
	arr := mir.NewInstruction(mir.Array{Elems: []*mir.Instruction{use}})
	block.Append(arr)

	changed := (ConstantPropagation{}).Run(newTestContext(), cfg)
	require.True(t, changed)
	assert.Equal(t, mir.String{Value: "foo.c"}, use.Obj)
}

func TestConstantPropagation_NoopWithoutLiteralDefs(t *testing.T) {
	cfg := mir.NewCFG()
	use := mir.NewInstruction(mir.Identifier{Name: "x", GVN: 1})
	cfg.Node(cfg.Entry).Block.Append(use)

	changed := (ConstantPropagation{}).Run(newTestContext(), cfg)
	assert.False(t, changed)
}
