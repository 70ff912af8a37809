package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcbaker/meson/mir"
)

// TestSSARound_NumbersDefinitionsAndResolvesUses builds a straight-line
// CFG (no join) and checks that a defining instruction gets a non-zero
// GVN and a later use of the same name resolves to it.
func TestSSARound_NumbersDefinitionsAndResolvesUses(t *testing.T) {
	cfg := mir.NewCFG()
	cfg.Node(cfg.Entry).Block.Append(mir.NewDefining("x", mir.Number{Value: 9}))
	use := mir.NewInstruction(mir.Identifier{Name: "x"})
	cfg.Node(cfg.Entry).Block.Append(use)

	p := &SSARound{}
	changed := p.Run(nil, cfg)
	require.True(t, changed)

	def := cfg.Node(cfg.Entry).Block.Instrs[0]
	require.NotZero(t, def.Def.GVN)

	id, ok := use.Obj.(mir.Identifier)
	require.True(t, ok)
	assert.Equal(t, def.Def.GVN, id.GVN)
}

// TestSSARound_InsertsPhiAtJoin mirrors spec §8 scenario 3: two
// branches each define the same name, and the join node should gain a
// leading Phi joining both incoming versions.
func TestSSARound_InsertsPhiAtJoin(t *testing.T) {
	cfg := mir.NewCFG()
	a := cfg.NewNode()
	b := cfg.NewNode()
	join := cfg.NewNode()

	cfg.SetTerminator(cfg.Entry, mir.Branch{Arms: []mir.BranchArm{
		{Pred: boolean(true), Target: a},
		{Target: b},
	}})

	cfg.Node(a).Block.Append(mir.NewDefining("x", mir.Number{Value: 9}))
	cfg.SetTerminator(a, mir.Jump{Target: join})

	cfg.Node(b).Block.Append(mir.NewDefining("x", mir.Number{Value: 10}))
	cfg.SetTerminator(b, mir.Jump{Target: join})

	p := &SSARound{}
	for i := 0; i < 4; i++ {
		if !p.Run(nil, cfg) {
			break
		}
	}

	joinInstrs := cfg.Node(join).Block.Instrs
	require.NotEmpty(t, joinInstrs)

	phi, ok := joinInstrs[0].Obj.(mir.Phi)
	require.True(t, ok, "join node must start with a Phi")
	assert.NotZero(t, phi.Left)
	assert.NotZero(t, phi.Right)
	assert.NotEqual(t, phi.Left, phi.Right)
}

// TestSSARound_ChainsPhisAcrossThreeOrMorePredecessors covers a
// 3-arm if/elif/else, which lowers to a join node with 3 predecessors
// each defining the same name differently. Spec §4.3 requires a chain
// of Phi instructions joining them pairwise, rather than only the
// first two distinct versions.
func TestSSARound_ChainsPhisAcrossThreeOrMorePredecessors(t *testing.T) {
	cfg := mir.NewCFG()
	a := cfg.NewNode()
	b := cfg.NewNode()
	c := cfg.NewNode()
	join := cfg.NewNode()

	cfg.SetTerminator(cfg.Entry, mir.Branch{Arms: []mir.BranchArm{
		{Pred: boolean(true), Target: a},
		{Pred: boolean(true), Target: b},
		{Target: c},
	}})

	cfg.Node(a).Block.Append(mir.NewDefining("x", mir.Number{Value: 9}))
	cfg.SetTerminator(a, mir.Jump{Target: join})

	cfg.Node(b).Block.Append(mir.NewDefining("x", mir.Number{Value: 10}))
	cfg.SetTerminator(b, mir.Jump{Target: join})

	cfg.Node(c).Block.Append(mir.NewDefining("x", mir.Number{Value: 11}))
	cfg.SetTerminator(c, mir.Jump{Target: join})

	p := &SSARound{}
	for i := 0; i < 4; i++ {
		if !p.Run(nil, cfg) {
			break
		}
	}

	joinInstrs := cfg.Node(join).Block.Instrs
	require.GreaterOrEqual(t, len(joinInstrs), 2, "3 distinct incoming versions need a chain of 2 phis")

	first, ok := joinInstrs[0].Obj.(mir.Phi)
	require.True(t, ok)

	second, ok := joinInstrs[1].Obj.(mir.Phi)
	require.True(t, ok, "a third distinct version must chain onto a second phi, not be dropped")

	assert.NotZero(t, first.Left)
	assert.NotZero(t, first.Right)
	assert.NotEqual(t, first.Left, first.Right)

	assert.Equal(t, joinInstrs[0].Def.GVN, second.Left, "the second phi must chain off the first phi's own gvn")
	assert.NotZero(t, second.Right)
	assert.NotEqual(t, first.Right, second.Right)
}

func TestSSARound_IdempotentOnReachedFixpoint(t *testing.T) {
	cfg := mir.NewCFG()
	cfg.Node(cfg.Entry).Block.Append(mir.NewDefining("x", mir.Number{Value: 1}))

	p := &SSARound{}
	require.True(t, p.Run(nil, cfg))
	assert.False(t, p.Run(nil, cfg), "a second round over an unchanged CFG makes no further progress")
}
