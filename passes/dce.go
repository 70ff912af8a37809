package passes

import "github.com/dcbaker/meson/mir"

// DeleteUnreachable implements spec §4.8's two dead-code rules: a
// node no path from Entry reaches is deleted outright, and any
// instruction following a Message(ERROR) within the same block is
// unreachable code the pipeline never evaluates, so it is dropped too
// (and everything past it, since control never resumes past an
// unconditional error).
type DeleteUnreachable struct{}

func (DeleteUnreachable) Name() string { return "delete_unreachable" }

func (DeleteUnreachable) Run(pc *Context, cfg *mir.CFG) bool {
	progress := false

	if truncateAfterErrors(cfg) {
		progress = true
	}

	reachable := cfg.Reachable()

	for _, n := range cfg.Nodes {
		if n.Dead || reachable[n.Index] {
			continue
		}

		cfg.DeleteNode(n.Index)

		progress = true
	}

	return progress
}

// truncateAfterErrors drops every instruction after the first
// Message(ERROR) in a block, and removes that block's terminator's
// edges, since control never reaches them.
func truncateAfterErrors(cfg *mir.CFG) bool {
	progress := false

	for _, n := range cfg.Nodes {
		if n.Dead {
			continue
		}

		instrs := n.Block.Instrs

		cut := -1

		for i, inst := range instrs {
			if msg, ok := inst.Obj.(mir.Message); ok && msg.Level == mir.LevelError {
				cut = i
				break
			}
		}

		if cut < 0 || cut == len(instrs)-1 {
			continue
		}

		cfg.RemoveTerminator(n.Index)

		n.Block.Instrs = instrs[:cut+1]

		progress = true
	}

	return progress
}
