package passes

import "github.com/dcbaker/meson/mir"

// JoinBlocks merges a node into the single successor its
// unconditional Jump targets, once that successor has no other
// predecessor left — typically the effect of BranchPruning collapsing
// every other path into the target (spec §4.7). The merged node keeps
// its own index; the absorbed one is deleted.
type JoinBlocks struct{}

func (JoinBlocks) Name() string { return "join_blocks" }

func (JoinBlocks) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	n := cfg.Node(node)

	term, ok := n.Block.Terminator()
	if !ok {
		return false
	}

	jmp, ok := term.Obj.(mir.Jump)
	if !ok || jmp.Pred != nil {
		return false
	}

	target := jmp.Target
	if target == node || target == cfg.Entry {
		return false
	}

	tn := cfg.Node(target)
	if tn.Dead || tn.Pred.Size() != 1 || !tn.Pred.IsSet(node) {
		return false
	}

	// A node with a single predecessor never legitimately needs a phi:
	// its leading Phi instructions are stale, joining versions from
	// predecessors pruning has since removed. Resolve each to the one
	// version still live at the end of the surviving predecessor's
	// block, replacing the Phi with an Identifier naming it — but
	// keeping the instruction's own (name, gvn) definition, so any
	// reference already resolved to that gvn still finds a dominating
	// definition (spec §4.3, §8).
	for _, inst := range tn.Block.Instrs {
		phi, ok := inst.Obj.(mir.Phi)
		if !ok {
			break
		}

		gvn, ok := survivingVersion(n, inst.Def.Name)
		if !ok {
			gvn = phi.Left
		}

		inst.Obj = mir.Identifier{Name: inst.Def.Name, GVN: gvn}
	}

	cfg.RemoveTerminator(node)
	cfg.AppendFrom(node, target)
	cfg.DeleteNode(target)

	n.State = mir.StateUnnumbered

	return true
}

// survivingVersion finds the version name carries at the end of n's
// own block — the value the single remaining predecessor actually
// hands to a join being collapsed (spec §4.7).
func survivingVersion(n *mir.CFGNode, name string) (uint64, bool) {
	for i := len(n.Block.Instrs) - 1; i >= 0; i-- {
		inst := n.Block.Instrs[i]
		if inst.Def.Name == name && inst.Def.GVN != 0 {
			return inst.Def.GVN, true
		}
	}

	return 0, false
}
