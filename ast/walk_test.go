package ast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	visited []string
}

func (r *recorder) Visit(n Node) Visitor {
	switch node := n.(type) {
	case *Module:
		r.visited = append(r.visited, "Module")
	case *Assign:
		r.visited = append(r.visited, "Assign:"+node.Target.Name)
	case *BinaryExpr:
		r.visited = append(r.visited, "BinaryExpr")
	case *Literal:
		r.visited = append(r.visited, "Literal")
	case *Name:
		r.visited = append(r.visited, "Name:"+node.Ident.Name)
	}
	return r
}

func TestWalkVisitsInDepthFirstOrder(t *testing.T) {
	// x = 1 + y
	mod := &Module{
		Body: Block{
			&Assign{
				Target: Identifier{Name: "x", Scope: Local, Slot: 0},
				Value: &BinaryExpr{
					Left: &Literal{Kind: IntLit, Int: 1},
					Op:   Add,
					Right: &Name{
						Ident: Identifier{Name: "y", Scope: Global, Slot: 0},
					},
				},
			},
		},
	}

	r := &recorder{}
	Walk(r, mod)

	require.Equal(t, []string{"Module", "Assign:x", "BinaryExpr", "Literal", "Name:y"}, r.visited)
}

func TestWalkStopsWhenVisitorReturnsNil(t *testing.T) {
	stop := visitFunc(func(n Node) Visitor { return nil })
	mod := &Module{Body: Block{&ExprStmt{X: &Literal{Kind: NoneLit}}}}
	// Should not panic even though stop never descends.
	Walk(stop, mod)
}

type visitFunc func(Node) Visitor

func (f visitFunc) Visit(n Node) Visitor { return f(n) }
