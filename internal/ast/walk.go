// Completion: 100% - Tree walking and write analysis complete
package ast

// Inspect calls f for every node under n, depth first. Children are
// skipped when f returns false.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch x := n.(type) {
	case *Block:
		for _, s := range x.Stmts {
			Inspect(s, f)
		}
	case *ExprStmt:
		Inspect(x.X, f)
	case *Assign:
		Inspect(x.Target, f)
		Inspect(x.Value, f)
	case *Return:
		if x.Value != nil {
			Inspect(x.Value, f)
		}
	case *If:
		Inspect(x.Cond, f)
		Inspect(x.Then, f)
		if x.Else != nil {
			Inspect(x.Else, f)
		}
	case *While:
		Inspect(x.Cond, f)
		Inspect(x.Body, f)
	case *For:
		if x.Init != nil {
			Inspect(x.Init, f)
		}
		if x.Cond != nil {
			Inspect(x.Cond, f)
		}
		if x.Post != nil {
			Inspect(x.Post, f)
		}
		Inspect(x.Body, f)
	case *FieldRef:
		Inspect(x.Object, f)
	case *Binary:
		Inspect(x.Left, f)
		Inspect(x.Right, f)
	case *Unary:
		Inspect(x.X, f)
	case *Logical:
		Inspect(x.Left, f)
		Inspect(x.Right, f)
	case *Call:
		if x.Receiver != nil {
			Inspect(x.Receiver, f)
		}
		for _, a := range x.Args {
			Inspect(a, f)
		}
	case *New:
		for _, a := range x.Args {
			Inspect(a, f)
		}
	}
}

// Writes reports whether body may modify v: by assigning it, by passing it
// to a by-reference parameter, or through a written operand of an inline
// assembly block
func Writes(body Node, v *Variable) bool {
	found := false
	Inspect(body, func(n Node) bool {
		if found {
			return false
		}
		switch x := n.(type) {
		case *Assign:
			if r, ok := x.Target.(*VarRef); ok && r.Var == v {
				found = true
			}
		case *Call:
			for i, a := range x.Args {
				r, ok := a.(*VarRef)
				if ok && r.Var == v && i < len(x.Fn.Params) && x.Fn.Params[i].ByRef {
					found = true
				}
			}
		case *Asm:
			for _, name := range x.Block.WrittenVariables() {
				if x.Vars[name] == v {
					found = true
				}
			}
		}
		return !found
	})
	return found
}

// HasReturn reports whether a return statement occurs under n
func HasReturn(n Node) bool {
	found := false
	Inspect(n, func(n Node) bool {
		if _, ok := n.(*Return); ok {
			found = true
		}
		return !found
	})
	return found
}
