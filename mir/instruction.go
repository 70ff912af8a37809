package mir

// Instruction pairs an Object with the Variable it defines. An
// Instruction with an empty Variable defines nothing — it is a pure
// expression kept for its side effect, or a terminator.
type Instruction struct {
	Obj Object
	Def Variable
}

func NewInstruction(obj Object) *Instruction {
	return &Instruction{Obj: obj}
}

func NewDefining(name string, obj Object) *Instruction {
	return &Instruction{Obj: obj, Def: Variable{Name: name}}
}

// IsLiteral reports whether the instruction's Object is a constant
// that ConstantFolding/ConstantPropagation can use directly.
func IsLiteral(obj Object) bool {
	switch obj.(type) {
	case String, Boolean, Number:
		return true
	default:
		return false
	}
}

// IsTerminator reports whether obj is a Jump or Branch.
func IsTerminator(obj Object) bool {
	switch obj.(type) {
	case Jump, Branch:
		return true
	default:
		return false
	}
}
