// Package passes implements the optimizer: the fixed pipeline of
// compiler-style passes spec §4.2 lists, run to fixpoint over one
// function/program CFG.
package passes

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/tlog"

	"github.com/dcbaker/meson/mir"
	"github.com/dcbaker/meson/state"
	"github.com/dcbaker/meson/toolchain"
)

type (
	// Context is the read-mostly environment every pass runs against:
	// the persistent State (written only by the project() and
	// add_project_arguments()/add_global_arguments() lowerings), the
	// toolchain probe machinery threaded_lowering uses,
	// and the ambient context.Context for logging/cancellation.
	Context struct {
		Ctx    context.Context
		State  *state.State
		Cache  *toolchain.ProbeCache
		Prober toolchain.Prober

		// Messages a pass reports without writing them into the CFG
		// (an unknown language, a synthetic header-probe result). A
		// Message(ERROR) that a pass writes into an instruction is not
		// copied here.
		Diagnostics []mir.Message
	}

	// NodePass rewrites a single node's instructions or terminator in
	// place. Most of the pipeline is NodePasses: they compose cleanly
	// with the reverse-postorder worklist (spec §4.2's block_walker).
	NodePass interface {
		Name() string
		RunNode(pc *Context, cfg *mir.CFG, node int) bool
	}

	// GlobalPass needs cross-node bookkeeping a single node visit
	// can't provide (SSA numbering, dataflow propagation, whole-graph
	// structural rewrites like delete_unreachable). It performs its own
	// traversal internally.
	GlobalPass interface {
		Name() string
		Run(pc *Context, cfg *mir.CFG) bool
	}

	work struct {
		rank int
		node int
	}
)

func NewContext(ctx context.Context, st *state.State) *Context {
	return &Context{
		Ctx:   ctx,
		State: st,
		Cache: toolchain.NewProbeCache(),
	}
}

func (pc *Context) Report(msg mir.Message) {
	pc.Diagnostics = append(pc.Diagnostics, msg)
}

// runWorklist visits every node reachable at the start of the call
// once, in reverse-postorder, popped from a rank-ordered
// heap.Heap[work]; a node deleted during the call is skipped. A node a
// pass changes is not revisited within the same call: the driver's
// next round over the pipeline picks it up.
func runWorklist(cfg *mir.CFG, np NodePass, do func(node int) bool) bool {
	rpo := cfg.ReversePostorder()

	rank := make(map[int]int, len(rpo))
	for i, n := range rpo {
		rank[n] = i
	}

	h := &heap.Heap[work]{Less: func(d []work, i, j int) bool { return d[i].rank < d[j].rank }}

	seen := make(map[int]bool, len(rpo))

	for _, n := range rpo {
		h.Push(work{rank: rank[n], node: n})
		seen[n] = true
	}

	progress := false

	for h.Len() > 0 {
		w := h.Pop()

		if cfg.Nodes[w.node].Dead {
			continue
		}

		if do(w.node) {
			progress = true
		}
	}

	return progress
}

func runNodePass(cfg *mir.CFG, pc *Context, np NodePass) bool {
	return runWorklist(cfg, np, func(node int) bool {
		return np.RunNode(pc, cfg, node)
	})
}

// Pipeline returns the fixed pass order spec §4.2 specifies.
func Pipeline() []interface{} {
	return []interface{}{
		&MachineLower{},
		&InsertCompilers{},
		&ThreadedLowering{},
		&CustomTargetProgramReplacement{},
		&LowerFreeFunctions{},
		&LowerProgramObjects{},
		&LowerStringObjects{},
		&LowerDependencyObjects{},
		&LowerCompilerMethods{},
		&Flatten{},
		&SSARound{},
		&ConstantFolding{},
		&ConstantPropagation{},
		&BranchPruning{},
		&JoinBlocks{},
		&DeleteUnreachable{},
		&CombineAddArguments{},
	}
}

// RunPipeline runs the ordered pipeline to fixpoint: it loops over the
// whole pipeline until a full round makes no progress (spec §4.2).
func RunPipeline(pc *Context, cfg *mir.CFG) {
	tr := tlog.SpanFromContext(pc.Ctx)

	pipeline := Pipeline()

	for round := 0; ; round++ {
		progress := false

		for _, p := range pipeline {
			var changed bool

			switch pass := p.(type) {
			case NodePass:
				changed = runNodePass(cfg, pc, pass)
			case GlobalPass:
				changed = pass.Run(pc, cfg)
			}

			if changed {
				progress = true
			}
		}

		tr.V("driver").Printw("pipeline round", "round", round, "progress", progress)

		if !progress {
			return
		}
	}
}
