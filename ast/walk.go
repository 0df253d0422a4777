package ast

// Visitor traverses the tree. If Visit returns nil, node's children are
// not visited; otherwise the returned Visitor walks them.
type Visitor interface {
	Visit(node Node) (w Visitor)
}

// Walk traverses an AST in depth-first order, calling v.Visit(node) first
// and recursing into children with whatever Visitor it returns.
func Walk(v Visitor, node Node) {
	if node == nil {
		return
	}
	if v = v.Visit(node); v == nil {
		return
	}

	switch n := node.(type) {
	case *Module:
		walkBlock(v, n.Body)

	// Expressions
	case *Call:
		Walk(v, n.Callee)
		for _, a := range n.Args {
			Walk(v, a)
		}
		for _, kw := range n.Kwargs {
			Walk(v, kw.Value)
		}
	case *AttrCall:
		Walk(v, n.Object)
		for _, a := range n.Args {
			Walk(v, a)
		}
	case *ExternalCall:
		for _, a := range n.Args {
			Walk(v, a)
		}
	case *AttrGet:
		Walk(v, n.Object)
	case *BinaryExpr:
		Walk(v, n.Left)
		Walk(v, n.Right)
	case *CompareExpr:
		Walk(v, n.Left)
		Walk(v, n.Right)
	case *UnaryExpr:
		Walk(v, n.Operand)
	case *BoolOp:
		Walk(v, n.Left)
		Walk(v, n.Right)
	case *ListExpr:
		for _, e := range n.Elems {
			Walk(v, e)
		}
	case *TupleExpr:
		for _, e := range n.Elems {
			Walk(v, e)
		}
	case *SetExpr:
		for _, e := range n.Elems {
			Walk(v, e)
		}
	case *DictExpr:
		for i := range n.Keys {
			Walk(v, n.Keys[i])
			Walk(v, n.Vals[i])
		}
	case *SubscriptExpr:
		Walk(v, n.Object)
		Walk(v, n.Index)
	case *FStringExpr:
		for _, p := range n.Parts {
			if p.Expr != nil {
				Walk(v, p.Expr)
			}
		}
	case *CondExpr:
		Walk(v, n.Test)
		Walk(v, n.Body)
		Walk(v, n.OrElse)
	case *Name, *Literal:
		// leaves

	// Statements
	case *ExprStmt:
		Walk(v, n.X)
	case *Return:
		if n.Value != nil {
			Walk(v, n.Value)
		}
	case *Raise:
		if n.Value != nil {
			Walk(v, n.Value)
		}
		if n.Cause != nil {
			Walk(v, n.Cause)
		}
	case *Assert:
		Walk(v, n.Test)
		if n.Msg != nil {
			Walk(v, n.Msg)
		}
	case *Assign:
		Walk(v, n.Value)
	case *UnpackAssign:
		Walk(v, n.Value)
	case *OpAssign:
		Walk(v, n.Value)
	case *SubscriptAssign:
		Walk(v, n.Object)
		Walk(v, n.Index)
		Walk(v, n.Value)
	case *AttrAssign:
		Walk(v, n.Object)
		Walk(v, n.Value)
	case *While:
		Walk(v, n.Test)
		walkBlock(v, n.Body)
	case *For:
		Walk(v, n.Iter)
		walkBlock(v, n.Body)
		walkBlock(v, n.OrElse)
	case *If:
		Walk(v, n.Test)
		walkBlock(v, n.Body)
		walkBlock(v, n.OrElse)
	case *Try:
		walkBlock(v, n.Body)
		for _, h := range n.Handlers {
			if h.Type != nil {
				Walk(v, h.Type)
			}
			walkBlock(v, h.Body)
		}
		walkBlock(v, n.Else)
		walkBlock(v, n.Finally)
	case *FunctionDef:
		for _, p := range n.Params {
			if p.Default != nil {
				Walk(v, p.Default)
			}
		}
		walkBlock(v, n.Body)
	case *Pass, *Break, *Continue:
		// leaves
	}
}

func walkBlock(v Visitor, block Block) {
	for _, s := range block {
		Walk(v, s)
	}
}
