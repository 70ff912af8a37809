package mir

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcbaker/meson/ast"
)

func block(stmts ...ast.Node) *ast.CodeBlock {
	return &ast.CodeBlock{Stmts: stmts}
}

func TestLower_Assignment(t *testing.T) {
	body := block(ast.Assignment{
		Op:  "=",
		Lhs: ast.NewIdentifier(ast.Location{}, "x"),
		Rhs: ast.NewNumber(ast.Location{}, 9),
	})

	cfg, err := Lower(context.Background(), "t.build", body)
	require.NoError(t, err)

	instrs := cfg.Node(cfg.Entry).Block.Instrs
	require.Len(t, instrs, 1)
	assert.Equal(t, "x", instrs[0].Def.Name)
	assert.Equal(t, Number{Value: 9}, instrs[0].Obj)
}

func TestLower_CompoundAssignmentDesugars(t *testing.T) {
	body := block(ast.Assignment{
		Op:  "+=",
		Lhs: ast.NewIdentifier(ast.Location{}, "x"),
		Rhs: ast.NewNumber(ast.Location{}, 1),
	})

	cfg, err := Lower(context.Background(), "t.build", body)
	require.NoError(t, err)

	instrs := cfg.Node(cfg.Entry).Block.Instrs
	require.Len(t, instrs, 1)

	fn, ok := instrs[0].Obj.(FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "__add__", fn.Name)
	require.Len(t, fn.Args, 2)
	assert.Equal(t, Identifier{Name: "x"}, fn.Args[0].Obj)
}

func TestLower_AssignmentRequiresIdentifierLHS(t *testing.T) {
	body := block(ast.Assignment{
		Op:  "=",
		Lhs: ast.NewNumber(ast.Location{}, 1),
		Rhs: ast.NewNumber(ast.Location{}, 2),
	})

	_, err := Lower(context.Background(), "t.build", body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid assignment target")
}

func TestLower_DictRequiresStringKeys(t *testing.T) {
	body := block(ast.Dict{
		Keys:   []ast.Node{ast.NewNumber(ast.Location{}, 1)},
		Values: []ast.Node{ast.NewNumber(ast.Location{}, 2)},
	})

	_, err := Lower(context.Background(), "t.build", body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dictionary key")
}

// TestLower_IfElseShape exercises spec §4.1's if/else contract: a
// fresh join node, a Branch whose arms are (cond, thenBody) and the
// fallthrough (elseBody), and each body jumping unconditionally to
// join.
func TestLower_IfElseShape(t *testing.T) {
	body := block(ast.IfStatement{
		Branches: []ast.IfBranch{
			{
				Cond: ast.NewBoolean(ast.Location{}, true),
				Body: block(ast.Assignment{Op: "=", Lhs: ast.NewIdentifier(ast.Location{}, "x"), Rhs: ast.NewNumber(ast.Location{}, 9)}),
			},
			{
				Cond: nil,
				Body: block(ast.Assignment{Op: "=", Lhs: ast.NewIdentifier(ast.Location{}, "x"), Rhs: ast.NewNumber(ast.Location{}, 10)}),
			},
		},
	})

	cfg, err := Lower(context.Background(), "t.build", body)
	require.NoError(t, err)

	entry := cfg.Node(cfg.Entry)
	term, ok := entry.Block.Terminator()
	require.True(t, ok)

	br, ok := term.Obj.(Branch)
	require.True(t, ok)
	require.Len(t, br.Arms, 2)
	assert.NotNil(t, br.Arms[0].Pred)
	assert.Nil(t, br.Arms[1].Pred)

	for _, arm := range br.Arms {
		bodyNode := cfg.Node(arm.Target)
		bTerm, ok := bodyNode.Block.Terminator()
		require.True(t, ok)

		jmp, ok := bTerm.Obj.(Jump)
		require.True(t, ok)
		assert.NotEqual(t, arm.Target, jmp.Target, "body must jump to a distinct join node")
	}

	// both bodies jump to the same join node
	t0, _ := cfg.Node(br.Arms[0].Target).Block.Terminator()
	t1, _ := cfg.Node(br.Arms[1].Target).Block.Terminator()
	assert.Equal(t, t0.Obj.(Jump).Target, t1.Obj.(Jump).Target)
}

func TestLower_BinaryOperatorsLowerToReservedCalls(t *testing.T) {
	body := block(ast.AdditiveExpression{
		Op:    "+",
		Left:  ast.NewNumber(ast.Location{}, 1),
		Right: ast.NewNumber(ast.Location{}, 2),
	})

	cfg, err := Lower(context.Background(), "t.build", body)
	require.NoError(t, err)

	instrs := cfg.Node(cfg.Entry).Block.Instrs
	require.Len(t, instrs, 1)

	fn, ok := instrs[0].Obj.(FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "__add__", fn.Name)
}

func TestLower_NotCallableOnNonIdentifierCallee(t *testing.T) {
	body := block(ast.FunctionCall{
		Func: ast.NewNumber(ast.Location{}, 1),
	})

	_, err := Lower(context.Background(), "t.build", body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not callable")
}
