package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcbaker/meson/mir"
)

func TestJoinBlocks_MergesSinglePredecessorSuccessor(t *testing.T) {
	cfg := mir.NewCFG()
	target := cfg.NewNode()
	after := cfg.NewNode()

	cfg.Node(cfg.Entry).Block.Append(mir.NewDefining("x", mir.Number{Value: 1}))
	cfg.Node(target).Block.Append(mir.NewDefining("y", mir.Number{Value: 2}))

	cfg.SetTerminator(cfg.Entry, mir.Jump{Target: target})
	cfg.SetTerminator(target, mir.Jump{Target: after})

	changed := JoinBlocks{}.RunNode(nil, cfg, cfg.Entry)
	require.True(t, changed)

	require.True(t, cfg.Node(target).Dead)

	entry := cfg.Node(cfg.Entry)
	require.Len(t, entry.Block.Instrs, 3) // x, y, jump-to-after
	assert.Equal(t, "x", entry.Block.Instrs[0].Def.Name)
	assert.Equal(t, "y", entry.Block.Instrs[1].Def.Name)
	assert.True(t, entry.Succ.IsSet(after))
	assert.True(t, cfg.Node(after).Pred.IsSet(cfg.Entry))
}

func TestJoinBlocks_LeavesSharedSuccessorAlone(t *testing.T) {
	cfg := mir.NewCFG()
	shared := cfg.NewNode()
	other := cfg.NewNode()

	cfg.SetTerminator(cfg.Entry, mir.Jump{Target: shared})
	cfg.SetTerminator(other, mir.Jump{Target: shared})

	changed := JoinBlocks{}.RunNode(nil, cfg, cfg.Entry)
	assert.False(t, changed, "shared successor has two predecessors, must not merge")
}

// TestJoinBlocks_ResolvesStalePhiToSurvivingVersion mirrors spec §8
// scenario 3 as traced through the real pipeline: after BranchPruning
// drops the dead arm and DeleteUnreachable removes its body, target
// has exactly one predecessor left and carries a stale Phi joining the
// two branches' definitions of x. JoinBlocks must turn that Phi into
// an Identifier naming the version the surviving predecessor actually
// defines, keeping the instruction's own (name, gvn) pair so any use
// already resolved against it still finds a definition.
func TestJoinBlocks_ResolvesStalePhiToSurvivingVersion(t *testing.T) {
	cfg := mir.NewCFG()
	target := cfg.NewNode()

	def := mir.NewDefining("x", mir.Number{Value: 9})
	def.Def.GVN = 7
	cfg.Node(cfg.Entry).Block.Append(def)
	cfg.SetTerminator(cfg.Entry, mir.Jump{Target: target})

	// Left deliberately does not match the surviving predecessor's gvn
	// (7), so the test fails if the fix falls back to aliasing
	// phi.Left blindly instead of looking up what the remaining
	// predecessor actually defines.
	phi := &mir.Instruction{
		Obj: mir.Phi{Left: 99, Right: 12},
		Def: mir.Variable{Name: "x", GVN: 3},
	}
	cfg.Node(target).Block.Append(phi)

	use := mir.NewInstruction(mir.Identifier{Name: "x", GVN: 3})
	cfg.Node(target).Block.Append(use)

	changed := JoinBlocks{}.RunNode(nil, cfg, cfg.Entry)
	require.True(t, changed)

	entry := cfg.Node(cfg.Entry)
	require.Len(t, entry.Block.Instrs, 3) // x=9, the resolved alias, the identifier use

	alias, ok := entry.Block.Instrs[1].Obj.(mir.Identifier)
	require.True(t, ok, "the stale phi must become an Identifier, not be dropped")
	assert.Equal(t, "x", alias.Name)
	assert.Equal(t, uint64(7), alias.GVN, "must alias the surviving predecessor's version, not phi.Left blindly")
	assert.Equal(t, "x", entry.Block.Instrs[1].Def.Name)
	assert.Equal(t, uint64(3), entry.Block.Instrs[1].Def.GVN, "the phi's own definition must survive so existing references still resolve")

	assert.Same(t, use, entry.Block.Instrs[2])
}
