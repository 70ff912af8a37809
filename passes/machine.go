package passes

import (
	"tlog.app/go/tlog"

	"github.com/dcbaker/meson/mir"
	"github.com/dcbaker/meson/toolchain"
)

// MachineLower resolves Compiler objects still missing a concrete
// ToolchainRef against the State's registry (spec §6.3). It runs
// first in the pipeline so every later pass sees a fully resolved
// toolchain rather than a bare (language, machine) pair.
type MachineLower struct{}

func (MachineLower) Name() string { return "machine_lower" }

func (MachineLower) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	progress := false

	for _, inst := range cfg.Node(node).Block.Instrs {
		c, ok := inst.Obj.(mir.Compiler)
		if !ok || c.Tool != nil {
			continue
		}

		tc, ok := pc.State.Toolchains.Get(c.Language, c.Machine)
		if !ok {
			continue
		}

		inst.Obj = mir.Compiler{Language: c.Language, Machine: c.Machine, Tool: tc}
		progress = true
	}

	return progress
}

// InsertCompilers rewrites an add_languages() call whose arguments
// are all literal strings to Boolean(true), reporting an "unknown
// language" Message(ERROR) diagnostic for each language that has no
// toolchain registered for the requested machine (spec §6.3, §7). It
// creates no Compiler objects, and meson.get_compiler() calls are not
// handled.
type InsertCompilers struct{}

func (InsertCompilers) Name() string { return "insert_compilers" }

func (InsertCompilers) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	progress := false

	for _, inst := range cfg.Node(node).Block.Instrs {
		fn, ok := inst.Obj.(mir.FunctionCall)
		if !ok || fn.Name != "add_languages" || fn.Holder != nil {
			continue
		}

		machine := "host"
		if m, ok := fn.KwArgs["native"]; ok {
			if b, ok := literal(m); ok {
				if bv, ok := b.(mir.Boolean); ok && bv.Value {
					machine = "build"
				}
			}
		}

		var langs []string

		for _, a := range fn.Args {
			s, ok := literal(a)
			if !ok {
				continue
			}

			sv, ok := s.(mir.String)
			if !ok {
				continue
			}

			langs = append(langs, sv.Value)
		}

		if len(langs) != len(fn.Args) {
			continue
		}

		for _, lang := range langs {
			if _, ok := pc.State.Toolchains.Get(lang, machine); !ok {
				pc.Report(mir.Message{Level: mir.LevelError, Text: "unknown language: " + lang})
			}
		}

		inst.Obj = mir.Boolean{Value: true}
		progress = true
	}

	return progress
}

// ThreadedLowering is the one pass the spec names as an intentional
// concurrency exception (spec §5): it fans out a PATH probe for every
// find_program() call with a literal name not yet in the shared
// ProbeCache, over a bounded worker pool, and returns once the whole
// batch has finished. Dependencies and compilers are not probed. It
// never mutates the CFG itself; CustomTargetProgramReplacement applies
// the cached results.
type ThreadedLowering struct {
	Workers int
}

func (ThreadedLowering) Name() string { return "threaded_lowering" }

func (p ThreadedLowering) Run(pc *Context, cfg *mir.CFG) bool {
	if pc.Prober == nil {
		return false
	}

	var reqs []toolchain.ProbeRequest

	for _, n := range cfg.Nodes {
		if n.Dead {
			continue
		}

		for _, inst := range n.Block.Instrs {
			fn, ok := inst.Obj.(mir.FunctionCall)
			if !ok || fn.Name != "find_program" || len(fn.Args) == 0 {
				continue
			}

			name, ok := literal(fn.Args[0])
			if !ok {
				continue
			}

			sv, ok := name.(mir.String)
			if !ok {
				continue
			}

			req := toolchain.ProbeRequest{Tool: sv.Value, Fingerprint: "path"}
			if _, cached := pc.Cache.Get(req); !cached {
				reqs = append(reqs, req)
			}
		}
	}

	if len(reqs) == 0 {
		return false
	}

	tr := tlog.SpanFromContext(pc.Ctx)

	workers := p.Workers
	if workers <= 0 {
		workers = 4
	}

	if err := toolchain.RunBatch(pc.Ctx, pc.Cache, pc.Prober, reqs, workers); err != nil {
		tr.Printw("threaded_lowering probe batch failed", "err", err)
	}

	return true
}

// CustomTargetProgramReplacement rewrites a find_program() call the
// probe cache has already resolved into a Program literal carrying
// the probed path. It does not touch custom_target() calls: no program
// name in a Command list is replaced by a probed path.
type CustomTargetProgramReplacement struct{}

func (CustomTargetProgramReplacement) Name() string { return "custom_target_program_replacement" }

func (CustomTargetProgramReplacement) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	progress := false

	for _, inst := range cfg.Node(node).Block.Instrs {
		fn, ok := inst.Obj.(mir.FunctionCall)
		if !ok || fn.Name != "find_program" || fn.Holder != nil || len(fn.Args) == 0 {
			continue
		}

		name, ok := literal(fn.Args[0])
		if !ok {
			continue
		}

		sv, ok := name.(mir.String)
		if !ok {
			continue
		}

		res, ok := pc.Cache.Get(toolchain.ProbeRequest{Tool: sv.Value, Fingerprint: "path"})
		if !ok {
			continue
		}

		inst.Obj = mir.Program{Name: sv.Value, ForMachine: "host", Path: res.Path}
		progress = true
	}

	return progress
}
