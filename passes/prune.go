package passes

import "github.com/dcbaker/meson/mir"

// BranchPruning drops Branch arms whose predicate has folded to a
// literal false, and collapses a Branch down to an unconditional Jump
// once its first still-live arm has folded to a literal true — every
// arm after that one is unreachable (spec §4.6). It only ever removes
// edges through cfg.SetTerminator and cfg.RemoveTerminator, so
// Pred/Succ never go stale.
type BranchPruning struct{}

func (BranchPruning) Name() string { return "branch_pruning" }

func (BranchPruning) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	n := cfg.Node(node)

	term, ok := n.Block.Terminator()
	if !ok {
		return false
	}

	br, ok := term.Obj.(mir.Branch)
	if !ok {
		return false
	}

	var kept []mir.BranchArm

	changed := false

	for _, arm := range br.Arms {
		if arm.Pred == nil {
			kept = append(kept, arm)
			break
		}

		b, ok := literal(arm.Pred)
		if !ok {
			kept = append(kept, arm)
			continue
		}

		bv, ok := b.(mir.Boolean)
		if !ok {
			kept = append(kept, arm)
			continue
		}

		if !bv.Value {
			changed = true
			continue
		}

		kept = append(kept, mir.BranchArm{Target: arm.Target})
		changed = true

		break
	}

	if len(kept) != len(br.Arms) {
		changed = true
	}

	if !changed {
		return false
	}

	if len(kept) == 0 {
		// every arm folded false and there was no fallthrough: leave the
		// node with no outgoing edge, a valid "program falls off the
		// end" terminator state.
		cfg.RemoveTerminator(node)
		return true
	}

	if len(kept) == 1 && kept[0].Pred == nil {
		cfg.SetTerminator(node, mir.Jump{Target: kept[0].Target})
		return true
	}

	cfg.SetTerminator(node, mir.Branch{Arms: kept})

	return true
}
