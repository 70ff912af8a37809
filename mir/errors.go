package mir

import "github.com/dcbaker/meson/ast"

// The error taxonomy of spec §7. DivByZeroError and
// IntegerOverflowError are recoverable: ConstantFolding turns them
// into a Message(ERROR) in place of the offending instruction and the
// pipeline keeps going. NotCallableError,
// InvalidAssignmentTargetError and InvalidDictKeyError are returned
// by Lower and end the configuration run. No pass constructs
// InvalidArgumentsError, UnknownLanguageError or UnknownCompilerError;
// a call with invalid arguments is either left unresolved or rewritten
// to a Message(ERROR) with its own text. InternalInvariant is not
// recoverable: it indicates a bug in a prior pass.
type (
	InvalidArgumentsError struct {
		Func string
		Msg  string
		Loc  ast.Location
	}

	NotCallableError struct {
		Loc ast.Location
	}

	InvalidAssignmentTargetError struct {
		Loc ast.Location
	}

	InvalidDictKeyError struct {
		Loc ast.Location
	}

	UnknownLanguageError struct {
		Language string
	}

	UnknownCompilerError struct {
		Language, Machine string
	}

	DivByZeroError struct {
		Loc ast.Location
	}

	IntegerOverflowError struct {
		Op  string
		Loc ast.Location
	}

	InternalInvariantError struct {
		Msg string
	}
)

func (e InvalidArgumentsError) Error() string {
	if e.Func != "" {
		return "invalid arguments to " + e.Func + ": " + e.Msg
	}

	return "invalid arguments: " + e.Msg
}

func (e NotCallableError) Error() string { return "not callable" }

func (e InvalidAssignmentTargetError) Error() string {
	return "invalid assignment target: left-hand side must be an identifier"
}

func (e InvalidDictKeyError) Error() string { return "dictionary key must be a string" }

func (e UnknownLanguageError) Error() string { return "unknown language: " + e.Language }

func (e UnknownCompilerError) Error() string {
	return "no compiler for " + e.Language + " on " + e.Machine
}

func (e DivByZeroError) Error() string { return "division by zero" }

func (e IntegerOverflowError) Error() string { return "integer overflow in " + e.Op }

func (e InternalInvariantError) Error() string { return "internal invariant violated: " + e.Msg }
