// Package mir implements the mid-level IR: the instruction and CFG
// model (spec §3), AST→MIR lowering (spec §4.1), and the node-visit
// order the pass driver walks (spec §4.2, §5).
package mir

import (
	"tlog.app/go/tlog/tlwire"

	"github.com/dcbaker/meson/ast"
)

type (
	// Variable names the value an Instruction defines. GVN is the SSA
	// version; zero means "not yet numbered". Ordering is
	// lexicographic on (Name, GVN); equality is structural.
	Variable struct {
		Name string
		GVN  uint64
	}

	// Object is the tagged-variant payload of an Instruction. Every
	// concrete type below implements it; visitation is an exhaustive
	// type switch, never a runtime tag check.
	Object interface {
		objectTag()
	}

	String struct {
		Value string
	}

	Boolean struct {
		Value bool
	}

	Number struct {
		Value int64
	}

	// Identifier is an unresolved (GVN==0) or resolved use of a name.
	Identifier struct {
		Name string
		GVN  uint64
	}

	Array struct {
		Elems []*Instruction
	}

	// DictEntry preserves insertion order, resolving the spec's open
	// question about Dict iteration order in the insertion-ordered
	// direction it explicitly permits.
	DictEntry struct {
		Key   string
		Value *Instruction
	}

	Dict struct {
		Entries []DictEntry
	}

	FunctionCall struct {
		Name       string
		Holder     *Instruction // non-nil for method calls, e.g. compiler.get_id()
		Args       []*Instruction
		KwArgs     map[string]*Instruction
		KwOrder    []string
		SourceDir  string
	}

	File struct {
		Name       string
		Subdir     string
		Built      bool
		SourceRoot string
		BuildRoot  string
	}

	Executable struct {
		Name       string
		Sources    []*Instruction // File or CustomTarget
		Machine    string
		Subdir     string
		Arguments  map[string][]string // language -> flags
		LinkWith   []*Instruction
	}

	StaticLibrary struct {
		Name      string
		Sources   []*Instruction
		Machine   string
		Subdir    string
		Arguments map[string][]string
		LinkWith  []*Instruction
	}

	CustomTarget struct {
		Name    string
		Inputs  []*Instruction
		Outputs []string
		Command []string
		Subdir  string
	}

	IncludeDirectories struct {
		Dirs     []string
		IsSystem bool
	}

	Dependency struct {
		Name      string
		Found     bool
		Version   string
		Arguments map[string][]string
	}

	MessageLevel int

	Message struct {
		Level MessageLevel
		Text  string
		Loc   ast.Location
	}

	Program struct {
		Name       string
		ForMachine string
		Path       string
	}

	// Compiler shares a toolchain reference: toolchains are
	// registry-owned, the one exception to "instructions own their
	// Object" (spec §9).
	Compiler struct {
		Language string
		Machine  string
		Tool     ToolchainRef
	}

	// ToolchainRef is satisfied by *toolchain.Toolchain; kept as an
	// interface here so package mir never imports package toolchain
	// (toolchain is a leaf collaborator, mir must not depend upward).
	ToolchainRef interface {
		ID() string
	}

	// Phi joins two predecessor definitions of the same name.
	Phi struct {
		Left, Right uint64
	}

	// Jump is an unconditional (Pred==nil) or guarded terminator.
	Jump struct {
		Target int
		Pred   *Instruction
	}

	// BranchArm is one (predicate, target) pair of a Branch. The last
	// arm in a Branch.Arms is the fallthrough and conventionally has
	// Pred == nil (or a literal true).
	BranchArm struct {
		Pred   *Instruction
		Target int
	}

	Branch struct {
		Arms []BranchArm
	}

	// Empty is the no-op placeholder left after rewrites that produce
	// no value (e.g. project(), a folded-true assert()).
	Empty struct{}

	// Opaque carries a construct lowering does not give semantics to
	// (foreach, break, continue — spec §4.1, §9 open question). No
	// pass rewrites it; it survives to the end of the pipeline inert.
	Opaque struct {
		Kind string
	}
)

const (
	LevelDebug MessageLevel = iota
	LevelMessage
	LevelWarn
	LevelError
)

func (l MessageLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelMessage:
		return "MESSAGE"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (String) objectTag()             {}
func (Boolean) objectTag()            {}
func (Number) objectTag()             {}
func (Identifier) objectTag()         {}
func (Array) objectTag()              {}
func (Dict) objectTag()               {}
func (FunctionCall) objectTag()       {}
func (File) objectTag()               {}
func (Executable) objectTag()         {}
func (StaticLibrary) objectTag()      {}
func (CustomTarget) objectTag()       {}
func (IncludeDirectories) objectTag() {}
func (Dependency) objectTag()         {}
func (Message) objectTag()            {}
func (Program) objectTag()            {}
func (Compiler) objectTag()           {}
func (Phi) objectTag()                {}
func (Jump) objectTag()               {}
func (Branch) objectTag()             {}
func (Empty) objectTag()              {}
func (Opaque) objectTag()              {}

// Truthy reports the Variable's truthiness: a non-empty name.
func (v Variable) Truthy() bool { return v.Name != "" }

// Less implements the lexicographic (Name, GVN) ordering spec §3
// requires.
func (v Variable) Less(o Variable) bool {
	if v.Name != o.Name {
		return v.Name < o.Name
	}

	return v.GVN < o.GVN
}

// TlogAppend renders a Variable as a compact {n, v} map for tlog trace
// lines (GVN resolution, phi fixup), the same shape the teacher's
// PhiBranch encoder uses in compiler/ir/ir5.go.
func (v Variable) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)
	b = e.AppendKeyValue(b, "n", v.Name)
	b = e.AppendKeyValue(b, "v", v.GVN)

	return b
}

// TlogAppend renders a Phi's two incoming versions, the MIR analogue
// of the teacher's PhiBranch encoder.
func (p Phi) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)
	b = e.AppendKeyInt64(b, "l", int64(p.Left))
	b = e.AppendKeyInt64(b, "r", int64(p.Right))

	return b
}

func (d *Dict) Get(key string) (*Instruction, bool) {
	for _, e := range d.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}

	return nil, false
}

func (d *Dict) Set(key string, val *Instruction) {
	for i, e := range d.Entries {
		if e.Key == key {
			d.Entries[i].Value = val
			return
		}
	}

	d.Entries = append(d.Entries, DictEntry{Key: key, Value: val})
}

// Found reports whether this Program resolved to a real path.
func (p Program) Found() bool { return p.Path != "" }
