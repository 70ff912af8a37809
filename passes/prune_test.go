package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcbaker/meson/mir"
)

func TestBranchPruning_DropsFalseArmsAndKeepsFallthrough(t *testing.T) {
	cfg := mir.NewCFG()
	a := cfg.NewNode()
	b := cfg.NewNode()

	cfg.SetTerminator(cfg.Entry, mir.Branch{Arms: []mir.BranchArm{
		{Pred: boolean(false), Target: a},
		{Target: b},
	}})

	changed := BranchPruning{}.RunNode(nil, cfg, cfg.Entry)
	require.True(t, changed)

	term, ok := cfg.Node(cfg.Entry).Block.Terminator()
	require.True(t, ok)

	jmp, ok := term.Obj.(mir.Jump)
	require.True(t, ok, "a collapsed two-arm branch becomes an unconditional jump")
	assert.Equal(t, b, jmp.Target)

	assert.False(t, cfg.Node(a).Pred.IsSet(cfg.Entry))
	assert.True(t, cfg.Node(b).Pred.IsSet(cfg.Entry))
}

func TestBranchPruning_TrueArmDropsLaterArms(t *testing.T) {
	cfg := mir.NewCFG()
	a := cfg.NewNode()
	b := cfg.NewNode()
	c := cfg.NewNode()

	cfg.SetTerminator(cfg.Entry, mir.Branch{Arms: []mir.BranchArm{
		{Pred: boolean(true), Target: a},
		{Pred: boolean(false), Target: b},
		{Target: c},
	}})

	changed := BranchPruning{}.RunNode(nil, cfg, cfg.Entry)
	require.True(t, changed)

	term, ok := cfg.Node(cfg.Entry).Block.Terminator()
	require.True(t, ok)

	jmp, ok := term.Obj.(mir.Jump)
	require.True(t, ok)
	assert.Equal(t, a, jmp.Target)

	assert.False(t, cfg.Node(b).Pred.IsSet(cfg.Entry))
	assert.False(t, cfg.Node(c).Pred.IsSet(cfg.Entry))
}

func TestBranchPruning_UnconditionalJumpUntouched(t *testing.T) {
	cfg := mir.NewCFG()
	a := cfg.NewNode()

	cfg.SetTerminator(cfg.Entry, mir.Jump{Target: a})

	changed := BranchPruning{}.RunNode(nil, cfg, cfg.Entry)
	assert.False(t, changed)
}
