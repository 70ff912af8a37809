package passes

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dcbaker/meson/mir"
)

// LowerFreeFunctions resolves every free-function FunctionCall this
// repository's DSL defines — project(), files(), executable(),
// static_library(), custom_target(), message()/warning()/error()/
// assert(), declare_dependency(), find_program(), and the
// add_project_arguments()/add_global_arguments() pair, and
// include_directories() — into the MIR
// object the call describes (spec §4.12). A call this pass doesn't
// recognize, or a method call (Holder != nil), is left untouched for
// a later pass or the flatten step.
type LowerFreeFunctions struct{}

func (LowerFreeFunctions) Name() string { return "lower_free_functions" }

func (LowerFreeFunctions) RunNode(pc *Context, cfg *mir.CFG, node int) bool {
	progress := false

	for _, inst := range cfg.Node(node).Block.Instrs {
		fn, ok := inst.Obj.(mir.FunctionCall)
		if !ok || fn.Holder != nil {
			continue
		}

		obj, handled := lowerFreeFunction(pc, fn)
		if !handled {
			continue
		}

		inst.Obj = obj
		progress = true
	}

	return progress
}

func lowerFreeFunction(pc *Context, fn mir.FunctionCall) (mir.Object, bool) {
	switch fn.Name {
	case "project":
		return lowerProject(pc, fn)
	case "files":
		return lowerFiles(fn)
	case "executable":
		return lowerExecutable(fn)
	case "static_library":
		return lowerStaticLibrary(fn)
	case "custom_target":
		return lowerCustomTarget(fn)
	case "message":
		return lowerMessage(mir.LevelMessage, fn)
	case "warning":
		return lowerMessage(mir.LevelWarn, fn)
	case "error":
		return lowerMessage(mir.LevelError, fn)
	case "assert":
		return lowerAssert(fn)
	case "declare_dependency":
		return lowerDeclareDependency(fn)
	case "find_program":
		return lowerFindProgramFallback(fn)
	case "add_project_arguments":
		return lowerAddArguments(pc.State.ProjectArgs, fn), true
	case "add_global_arguments":
		return lowerAddArguments(pc.State.GlobalArgs, fn), true
	case "include_directories":
		return lowerIncludeDirectories(fn), true
	default:
		return nil, false
	}
}

func lowerProject(pc *Context, fn mir.FunctionCall) (mir.Object, bool) {
	if len(fn.Args) == 0 {
		return nil, false
	}

	name, ok := literal(fn.Args[0])
	if !ok {
		return nil, false
	}

	sv, ok := name.(mir.String)
	if !ok {
		return mir.Message{Level: mir.LevelError, Text: "project(): name must be a string"}, true
	}

	if !pc.State.SetProject(sv.Value) {
		return mir.Message{Level: mir.LevelError, Text: "project() called more than once"}, true
	}

	// project() records only the name. Extra positional arguments
	// (languages) are not examined: no toolchain lookup or
	// registration happens for them, here or in InsertCompilers,
	// which only rewrites add_languages() calls.
	return mir.Empty{}, true
}

func lowerFiles(fn mir.FunctionCall) (mir.Object, bool) {
	elems := make([]*mir.Instruction, 0, len(fn.Args))

	for _, a := range fn.Args {
		l, ok := literal(a)
		if !ok {
			return nil, false
		}

		sv, ok := l.(mir.String)
		if !ok {
			return mir.Message{Level: mir.LevelError, Text: "files(): argument must be a string"}, true
		}

		elems = append(elems, mir.NewInstruction(mir.File{
			Name:   filepath.Base(sv.Value),
			Subdir: filepath.Dir(sv.Value),
		}))
	}

	return mir.Array{Elems: elems}, true
}

func lowerExecutable(fn mir.FunctionCall) (mir.Object, bool) {
	name, args, ok := targetNameAndSources(fn)
	if !ok {
		return nil, false
	}

	arguments, ok := targetLanguageArguments(fn)
	if !ok {
		return nil, false
	}

	linkWith, ok := targetLinkWith(fn)
	if !ok {
		return nil, false
	}

	if ok := absorbDependencyArguments(fn, arguments); !ok {
		return nil, false
	}

	return mir.Executable{
		Name:      name,
		Sources:   args,
		Machine:   "host",
		Arguments: arguments,
		LinkWith:  linkWith,
	}, true
}

func lowerStaticLibrary(fn mir.FunctionCall) (mir.Object, bool) {
	name, args, ok := targetNameAndSources(fn)
	if !ok {
		return nil, false
	}

	arguments, ok := targetLanguageArguments(fn)
	if !ok {
		return nil, false
	}

	linkWith, ok := targetLinkWith(fn)
	if !ok {
		return nil, false
	}

	if ok := absorbDependencyArguments(fn, arguments); !ok {
		return nil, false
	}

	return mir.StaticLibrary{
		Name:      name,
		Sources:   args,
		Machine:   "host",
		Arguments: arguments,
		LinkWith:  linkWith,
	}, true
}

// targetArgLanguages maps the `<lang>_args:` keyword spelling
// executable()/static_library() accept to the per-language Arguments
// key CombineAddArguments later extends, per spec §4.9's executable()
// contract.
var targetArgLanguages = map[string]string{
	"c_args":   "c",
	"cpp_args": "cpp",
}

// targetLanguageArguments resolves every `<lang>_args:` keyword into a
// DEFINE(...)-shaped flag list on the per-language Arguments map. A
// `-D<name>` literal is recorded as `DEFINE(<name>)`, matching the
// concrete expectation in spec §8 scenario 8
// (`arguments[CPP]=[DEFINE("foo")]`); any other flag is kept verbatim.
func targetLanguageArguments(fn mir.FunctionCall) (map[string][]string, bool) {
	out := map[string][]string{}

	for kw, lang := range targetArgLanguages {
		v, ok := fn.KwArgs[kw]
		if !ok {
			continue
		}

		arr, ok := v.Obj.(mir.Array)
		if !ok {
			return nil, false
		}

		var flags []string

		for _, e := range arr.Elems {
			l, ok := literal(e)
			if !ok {
				return nil, false
			}

			sv, ok := l.(mir.String)
			if !ok {
				return nil, false
			}

			flags = append(flags, normalizeArgFlag(sv.Value))
		}

		out[lang] = flags
	}

	return out, true
}

func normalizeArgFlag(flag string) string {
	if strings.HasPrefix(flag, "-D") {
		return "DEFINE(" + strings.TrimPrefix(flag, "-D") + ")"
	}

	return flag
}

// absorbDependencyArguments merges each Dependency named in a
// `dependencies:` keyword into dst's per-language Arguments, the same
// "a target that consumes a dependency inherits its compile_args"
// contract declare_dependency()'s own absorption implements for
// nested dependencies (spec §4.9).
func absorbDependencyArguments(fn mir.FunctionCall, dst map[string][]string) bool {
	v, ok := fn.KwArgs["dependencies"]
	if !ok {
		return true
	}

	var deps []*mir.Instruction

	switch x := v.Obj.(type) {
	case mir.Array:
		deps = x.Elems
	case mir.Dependency:
		deps = []*mir.Instruction{v}
	default:
		return false
	}

	for _, d := range deps {
		dep, ok := d.Obj.(mir.Dependency)
		if !ok {
			return false
		}

		for lang, args := range dep.Arguments {
			dst[lang] = append(dst[lang], args...)
		}
	}

	return true
}

// targetLinkWith resolves the `link_with:` keyword into the
// Instruction list spec §3's Executable/StaticLibrary "static-link
// list" attribute holds.
func targetLinkWith(fn mir.FunctionCall) ([]*mir.Instruction, bool) {
	v, ok := fn.KwArgs["link_with"]
	if !ok {
		return nil, true
	}

	switch x := v.Obj.(type) {
	case mir.Array:
		return x.Elems, true
	case mir.StaticLibrary, mir.Executable:
		return []*mir.Instruction{v}, true
	default:
		return nil, false
	}
}

// targetNameAndSources implements the executable()/static_library()
// argument contract shared by both: a literal name followed by
// sources. A String source becomes a File; a File or CustomTarget is
// kept; an Array contributes its elements as they are. Any other
// argument (an Identifier, or a files() call nested in the argument
// list) leaves the call unresolved.
func targetNameAndSources(fn mir.FunctionCall) (string, []*mir.Instruction, bool) {
	if len(fn.Args) == 0 {
		return "", nil, false
	}

	name, ok := literal(fn.Args[0])
	if !ok {
		return "", nil, false
	}

	sv, ok := name.(mir.String)
	if !ok {
		return "", nil, false
	}

	var sources []*mir.Instruction

	for _, a := range fn.Args[1:] {
		switch v := a.Obj.(type) {
		case mir.Array:
			sources = append(sources, v.Elems...)
		case mir.File, mir.CustomTarget:
			sources = append(sources, a)
		case mir.String:
			sources = append(sources, mir.NewInstruction(mir.File{
				Name:   filepath.Base(v.Value),
				Subdir: filepath.Dir(v.Value),
			}))
		default:
			return "", nil, false
		}
	}

	return sv.Value, sources, true
}

func lowerCustomTarget(fn mir.FunctionCall) (mir.Object, bool) {
	name := ""
	if len(fn.Args) > 0 {
		if l, ok := literal(fn.Args[0]); ok {
			if sv, ok := l.(mir.String); ok {
				name = sv.Value
			}
		}
	}

	outArg, ok := fn.KwArgs["output"]
	if !ok {
		return nil, false
	}

	var outputs []string

	switch v := outArg.Obj.(type) {
	case mir.String:
		outputs = append(outputs, v.Value)
	case mir.Array:
		for _, e := range v.Elems {
			sv, ok := literal(e)
			if !ok {
				return nil, false
			}

			s, ok := sv.(mir.String)
			if !ok {
				return nil, false
			}

			outputs = append(outputs, s.Value)
		}
	default:
		return nil, false
	}

	var inputs []*mir.Instruction

	if in, ok := fn.KwArgs["input"]; ok {
		switch v := in.Obj.(type) {
		case mir.Array:
			inputs = v.Elems
		default:
			inputs = []*mir.Instruction{in}
		}
	}

	var command []string

	if c, ok := fn.KwArgs["command"]; ok {
		if arr, ok := c.Obj.(mir.Array); ok {
			for _, e := range arr.Elems {
				if sv, ok := literal(e); ok {
					if s, ok := sv.(mir.String); ok {
						command = append(command, s.Value)
					}
				}
			}
		}
	}

	return mir.CustomTarget{
		Name:    name,
		Inputs:  inputs,
		Outputs: outputs,
		Command: command,
	}, true
}

func lowerMessage(level mir.MessageLevel, fn mir.FunctionCall) (mir.Object, bool) {
	var text string

	for i, a := range fn.Args {
		l, ok := literal(a)
		if !ok {
			return nil, false // leave unresolved, not yet foldable
		}

		if i > 0 {
			text += " "
		}

		text += stringify(l)
	}

	return mir.Message{Level: level, Text: text}, true
}

func lowerAssert(fn mir.FunctionCall) (mir.Object, bool) {
	if len(fn.Args) == 0 {
		return nil, false
	}

	cond, ok := literal(fn.Args[0])
	if !ok {
		return nil, false
	}

	bv, ok := cond.(mir.Boolean)
	if !ok {
		return mir.Message{Level: mir.LevelError, Text: "assert(): condition must be a boolean"}, true
	}

	if bv.Value {
		return mir.Empty{}, true
	}

	msg := "Assertion failed: "

	if len(fn.Args) > 1 {
		if l, ok := literal(fn.Args[1]); ok {
			if sv, ok := l.(mir.String); ok {
				msg += sv.Value
			}
		}
	}

	return mir.Message{Level: mir.LevelError, Text: msg}, true
}

// lowerDeclareDependency implements spec §4.9's declare_dependency()
// contract: recursively absorb nested `dependencies:` into a single
// flat Dependency, and record `compile_args:` under the "c" language
// bucket (this repository's DSL has no language-qualified compile_args
// keyword for declare_dependency, unlike executable()'s `<lang>_args`).
func lowerDeclareDependency(fn mir.FunctionCall) (mir.Object, bool) {
	args := map[string][]string{}

	if ok := absorbDependencyArguments(fn, args); !ok {
		return nil, false
	}

	if v, ok := fn.KwArgs["compile_args"]; ok {
		arr, ok := v.Obj.(mir.Array)
		if !ok {
			return nil, false
		}

		for _, e := range arr.Elems {
			l, ok := literal(e)
			if !ok {
				return nil, false
			}

			sv, ok := l.(mir.String)
			if !ok {
				return nil, false
			}

			args["c"] = append(args["c"], normalizeArgFlag(sv.Value))
		}
	}

	return mir.Dependency{Name: "", Found: true, Arguments: args}, true
}

func lowerFindProgramFallback(fn mir.FunctionCall) (mir.Object, bool) {
	if len(fn.Args) == 0 {
		return nil, false
	}

	name, ok := literal(fn.Args[0])
	if !ok {
		return nil, false
	}

	sv, ok := name.(mir.String)
	if !ok {
		return nil, false
	}

	return mir.Program{Name: sv.Value, ForMachine: "host"}, true
}

func lowerIncludeDirectories(fn mir.FunctionCall) mir.Object {
	var dirs []string

	for _, a := range fn.Args {
		if l, ok := literal(a); ok {
			if sv, ok := l.(mir.String); ok {
				dirs = append(dirs, sv.Value)
			}
		}
	}

	_, isSystem := fn.KwArgs["is_system"]

	return mir.IncludeDirectories{Dirs: dirs, IsSystem: isSystem}
}

func lowerAddArguments(set map[string][]string, fn mir.FunctionCall) mir.Object {
	langs := []string{"c"}

	if l, ok := fn.KwArgs["language"]; ok {
		if sv, ok := literal(l); ok {
			if s, ok := sv.(mir.String); ok {
				langs = []string{s.Value}
			}
		}
	}

	var args []string

	for _, a := range fn.Args {
		if l, ok := literal(a); ok {
			if s, ok := l.(mir.String); ok {
				args = append(args, s.Value)
			}
		}
	}

	for _, lang := range langs {
		set[lang] = append(set[lang], args...)
	}

	return mir.Empty{}
}

func stringify(obj mir.Object) string {
	switch v := obj.(type) {
	case mir.String:
		return v.Value
	case mir.Number:
		return strconv.FormatInt(v.Value, 10)
	case mir.Boolean:
		if v.Value {
			return "true"
		}

		return "false"
	default:
		return ""
	}
}

// CombineAddArguments folds the accumulated add_project_arguments()/
// add_global_arguments() state into every Executable/StaticLibrary
// object's per-language Arguments map — the final step of argument
// handling (spec §4.12). It tracks which instructions it has already
// combined by pointer so a target's arguments are only ever applied
// once, even though the driver keeps calling this pass to fixpoint.
type CombineAddArguments struct {
	done map[*mir.Instruction]bool
}

func (CombineAddArguments) Name() string { return "combine_add_arguments" }

func (p *CombineAddArguments) Run(pc *Context, cfg *mir.CFG) bool {
	if len(pc.State.GlobalArgs) == 0 && len(pc.State.ProjectArgs) == 0 {
		return false
	}

	if p.done == nil {
		p.done = map[*mir.Instruction]bool{}
	}

	progress := false

	for _, n := range cfg.Nodes {
		if n.Dead {
			continue
		}

		for _, inst := range n.Block.Instrs {
			if p.done[inst] {
				continue
			}

			switch v := inst.Obj.(type) {
			case mir.Executable:
				if v.Arguments == nil {
					v.Arguments = map[string][]string{}
				}

				combineInto(v.Arguments, pc.State.GlobalArgs, pc.State.ProjectArgs)
				inst.Obj = v
				p.done[inst] = true
				progress = true
			case mir.StaticLibrary:
				if v.Arguments == nil {
					v.Arguments = map[string][]string{}
				}

				combineInto(v.Arguments, pc.State.GlobalArgs, pc.State.ProjectArgs)
				inst.Obj = v
				p.done[inst] = true
				progress = true
			}
		}
	}

	return progress
}

func combineInto(dst map[string][]string, sets ...map[string][]string) {
	for _, set := range sets {
		for lang, args := range set {
			dst[lang] = append(dst[lang], args...)
		}
	}
}
