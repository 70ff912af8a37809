// Package engine composes lowering and the pass pipeline into the
// single entrypoint a frontend or CLI calls: hand it a parsed file,
// get back the flat, resolved instruction list and whatever
// diagnostics the run produced (spec §4.2).
package engine

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/dcbaker/meson/ast"
	"github.com/dcbaker/meson/mir"
	"github.com/dcbaker/meson/passes"
	"github.com/dcbaker/meson/state"
	"github.com/dcbaker/meson/toolchain"
)

type (
	// Result is everything a caller needs after a configuration run:
	// the resolved instructions in program order, the diagnostics the
	// pipeline collected, and the final persistent State.
	Result struct {
		Instructions []*mir.Instruction
		Diagnostics  []mir.Message
		State        *state.State
	}

	// Driver owns one configuration run's State and toolchain registry,
	// and is safe to reuse across files within that run — project()'s
	// "exactly once" invariant is state.State's, not Driver's.
	Driver struct {
		State  *state.State
		Prober toolchain.Prober
	}
)

func New(sourceRoot, buildRoot string) *Driver {
	return &Driver{State: state.New(sourceRoot, buildRoot)}
}

// Configure lowers body and runs the pass pipeline to fixpoint,
// recovering once at this boundary from an InternalInvariantError
// panic — the one error class spec §7 says indicates a bug in a prior
// pass rather than bad input, so it is reported rather than
// propagated as a normal error return.
func (d *Driver) Configure(ctx context.Context, file string, body *ast.CodeBlock) (res Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "configure", "file", file)
	defer tr.Finish()

	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(mir.InternalInvariantError); ok {
				err = errors.Wrap(ie, "internal invariant violated during %s", file)
				return
			}

			panic(r)
		}
	}()

	cfg, err := mir.Lower(ctx, file, body)
	if err != nil {
		return Result{}, errors.Wrap(err, "lower %s", file)
	}

	pc := passes.NewContext(ctx, d.State)
	pc.Prober = d.Prober

	passes.RunPipeline(pc, cfg)

	return Result{
		Instructions: Flatten(cfg),
		Diagnostics:  pc.Diagnostics,
		State:        d.State,
	}, nil
}

// Flatten walks the CFG in reverse postorder and concatenates every
// reachable block's instructions into the single flat, resolved list
// a backend serializes (spec §6, §9's "flat resolved instruction
// list" design note).
func Flatten(cfg *mir.CFG) []*mir.Instruction {
	var out []*mir.Instruction

	for _, n := range cfg.ReversePostorder() {
		out = append(out, cfg.Node(n).Block.Instrs...)
	}

	return out
}
