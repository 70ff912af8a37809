package passes

import (
	"strings"

	"github.com/dcbaker/meson/mir"
)

// Flatten resolves bare attribute access — `x.name`, lowered by
// mir.Lower as a FunctionCall with a nil Args slice, as opposed to a
// method call's non-nil (possibly empty) one — directly against the
// holder object's field, once the holder itself has resolved to a
// literal-shaped MIR object. It is named for what it does to the
// GetAttribute/FunctionCall distinction lowering leaves implicit: by
// the time this pass is done, an attribute read is just the value it
// names.
type Flatten struct{}

func (Flatten) Name() string { return "flatten" }

func (Flatten) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	progress := false

	for _, inst := range cfg.Node(node).Block.Instrs {
		fn, ok := inst.Obj.(mir.FunctionCall)
		if !ok || fn.Holder == nil || fn.Args != nil {
			continue
		}

		obj, ok := attribute(fn.Holder.Obj, fn.Name)
		if !ok {
			continue
		}

		inst.Obj = obj
		progress = true
	}

	return progress
}

func attribute(holder mir.Object, name string) (mir.Object, bool) {
	switch h := holder.(type) {
	case mir.Program:
		switch name {
		case "name":
			return mir.String{Value: h.Name}, true
		case "path", "full_path":
			return mir.String{Value: h.Path}, true
		case "found":
			return mir.Boolean{Value: h.Found()}, true
		}
	case mir.Dependency:
		switch name {
		case "name":
			return mir.String{Value: h.Name}, true
		case "found":
			return mir.Boolean{Value: h.Found}, true
		case "version":
			return mir.String{Value: h.Version}, true
		}
	case mir.File:
		switch name {
		case "name":
			return mir.String{Value: h.Name}, true
		}
	case mir.CustomTarget:
		switch name {
		case "name":
			return mir.String{Value: h.Name}, true
		}
	case mir.Compiler:
		switch name {
		case "language":
			return mir.String{Value: h.Language}, true
		}
	}

	return nil, false
}

// LowerProgramObjects resolves method calls on a Program: find_program
// results expose .found(), .path(), and .full_path() as zero-argument
// methods (spec §4.12's supplemented program-object methods).
type LowerProgramObjects struct{}

func (LowerProgramObjects) Name() string { return "lower_program_objects" }

func (LowerProgramObjects) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	progress := false

	for _, inst := range cfg.Node(node).Block.Instrs {
		fn, ok := inst.Obj.(mir.FunctionCall)
		if !ok || fn.Holder == nil || fn.Args == nil {
			continue
		}

		prog, ok := fn.Holder.Obj.(mir.Program)
		if !ok {
			continue
		}

		switch fn.Name {
		case "found":
			inst.Obj = mir.Boolean{Value: prog.Found()}
		case "path", "full_path":
			inst.Obj = mir.String{Value: prog.Path}
		default:
			continue
		}

		progress = true
	}

	return progress
}

// LowerStringObjects resolves method calls on a literal String:
// strip/to_upper/to_lower/contains/split/version_compare, the string
// methods the DSL's build files lean on most (spec §4.12).
type LowerStringObjects struct{}

func (LowerStringObjects) Name() string { return "lower_string_objects" }

func (LowerStringObjects) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	progress := false

	for _, inst := range cfg.Node(node).Block.Instrs {
		fn, ok := inst.Obj.(mir.FunctionCall)
		if !ok || fn.Holder == nil || fn.Args == nil {
			continue
		}

		s, ok := fn.Holder.Obj.(mir.String)
		if !ok {
			continue
		}

		obj, ok := stringMethod(s, fn)
		if !ok {
			continue
		}

		inst.Obj = obj
		progress = true
	}

	return progress
}

func stringMethod(s mir.String, fn mir.FunctionCall) (mir.Object, bool) {
	switch fn.Name {
	case "strip":
		return mir.String{Value: strings.TrimSpace(s.Value)}, true
	case "to_upper":
		return mir.String{Value: strings.ToUpper(s.Value)}, true
	case "to_lower":
		return mir.String{Value: strings.ToLower(s.Value)}, true
	case "underscorify":
		return mir.String{Value: underscorify(s.Value)}, true
	case "contains":
		arg, ok := stringArg(fn, 0)
		if !ok {
			return nil, false
		}

		return mir.Boolean{Value: strings.Contains(s.Value, arg)}, true
	case "startswith":
		arg, ok := stringArg(fn, 0)
		if !ok {
			return nil, false
		}

		return mir.Boolean{Value: strings.HasPrefix(s.Value, arg)}, true
	case "endswith":
		arg, ok := stringArg(fn, 0)
		if !ok {
			return nil, false
		}

		return mir.Boolean{Value: strings.HasSuffix(s.Value, arg)}, true
	case "split":
		sep, ok := stringArg(fn, 0)
		if !ok {
			sep = " "
		}

		parts := strings.Split(s.Value, sep)
		elems := make([]*mir.Instruction, len(parts))

		for i, p := range parts {
			elems[i] = mir.NewInstruction(mir.String{Value: p})
		}

		return mir.Array{Elems: elems}, true
	case "version_compare":
		arg, ok := stringArg(fn, 0)
		if !ok {
			return nil, false
		}

		return mir.Boolean{Value: versionCompare(s.Value, arg)}, true
	default:
		return nil, false
	}
}

func stringArg(fn mir.FunctionCall, i int) (string, bool) {
	if i >= len(fn.Args) {
		return "", false
	}

	l, ok := literal(fn.Args[i])
	if !ok {
		return "", false
	}

	sv, ok := l.(mir.String)
	if !ok {
		return "", false
	}

	return sv.Value, true
}

func underscorify(s string) string {
	b := make([]byte, len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b[i] = c
		default:
			b[i] = '_'
		}
	}

	return string(b)
}

// LowerDependencyObjects resolves method calls on a Dependency:
// .found(), .version(), .version_compare() (spec §4.12).
type LowerDependencyObjects struct{}

func (LowerDependencyObjects) Name() string { return "lower_dependency_objects" }

func (LowerDependencyObjects) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	progress := false

	for _, inst := range cfg.Node(node).Block.Instrs {
		fn, ok := inst.Obj.(mir.FunctionCall)
		if !ok || fn.Holder == nil || fn.Args == nil {
			continue
		}

		dep, ok := fn.Holder.Obj.(mir.Dependency)
		if !ok {
			continue
		}

		switch fn.Name {
		case "found":
			inst.Obj = mir.Boolean{Value: dep.Found}
		case "version":
			inst.Obj = mir.String{Value: dep.Version}
		case "version_compare":
			arg, ok := stringArg(fn, 0)
			if !ok {
				continue
			}

			inst.Obj = mir.Boolean{Value: versionCompare(dep.Version, arg)}
		default:
			continue
		}

		progress = true
	}

	return progress
}

// LowerCompilerMethods resolves method calls on a resolved Compiler:
// .get_id() and .version() read straight through to the bound Tool
// (spec §6.3, §4.12); .has_header() and .check_header() resolve to
// Boolean(false) with a DEBUG diagnostic, since no real probe runs.
// Any other method (compiles, ...) is left as a FunctionCall.
type LowerCompilerMethods struct{}

func (LowerCompilerMethods) Name() string { return "lower_compiler_methods" }

func (LowerCompilerMethods) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	progress := false

	for _, inst := range cfg.Node(node).Block.Instrs {
		fn, ok := inst.Obj.(mir.FunctionCall)
		if !ok || fn.Holder == nil || fn.Args == nil {
			continue
		}

		c, ok := fn.Holder.Obj.(mir.Compiler)
		if !ok || c.Tool == nil {
			continue
		}

		switch fn.Name {
		case "get_id":
			inst.Obj = mir.String{Value: c.Tool.ID()}
		case "version":
			inst.Obj = mir.String{Value: c.Tool.ID()}
		case "has_header", "check_header":
			// Neither probe runs a real preprocessor (spec §1 excludes
			// toolchain auto-detection from the core); resolving to a
			// literal false keeps configuration deterministic instead
			// of inventing a result (SPEC_FULL §4.12).
			name := ""
			if arg, ok := stringArg(fn, 0); ok {
				name = arg
			}

			pc.Report(mir.Message{
				Level: mir.LevelDebug,
				Text:  fn.Name + "(" + name + "): no header probe available, assuming not found",
			})

			inst.Obj = mir.Boolean{Value: false}
		default:
			continue
		}

		progress = true
	}

	return progress
}
