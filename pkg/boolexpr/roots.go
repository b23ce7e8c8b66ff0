// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package boolexpr extracts the boolean skeleton of a label graph
// (relational sub-expressions treated as atomic leaves) and rewrites it
// to negation normal form and then disjunctive normal form.
package boolexpr

import (
	"github.com/symsan-go/taintmut/pkg/ast"
	"github.com/symsan-go/taintmut/pkg/label"
)

// stripZExt peels off a chain of ZExt nodes whose ultimate child is a
// 1-bit value (a bool extended to a wider width).
// A chain that does not end in a 1-bit value is left as it is.
func stripZExt(r label.Reader, l label.Label) label.Label {
	orig := l
	for {
		info, err := r.Get(l)
		if err != nil || info.Op != label.OpZExt {
			return orig
		}
		child, err := r.Get(info.L1)
		if err != nil {
			return orig
		}
		if child.Size == 1 {
			return info.L1
		}
		l = info.L1
	}
}

// FindRoots walks the label graph rooted at l and returns the boolean
// skeleton (kinds restricted to Bool, LNot, LAnd, LOr, Xor, and
// relational leaves carrying their original label), plus whether any
// relational leaf was emitted under this subtree.
func FindRoots(r label.Reader, l label.Label) (*ast.Node, bool) {
	visited := make(map[label.Label]bool)
	ret := &ast.Node{}
	added := findRoots(r, l, ret, visited)
	return ret, added
}

func findRoots(r label.Reader, l label.Label, ret *ast.Node, visited map[label.Label]bool) bool {
	if l < label.ConstOffset || l == label.Init {
		return false
	}
	if visited[l] {
		return false
	}
	visited[l] = true

	info, err := r.Get(l)
	if err != nil {
		return false
	}

	if info.Op == 0 || info.Op == label.OpLoad {
		return false
	}

	// ICmp-tagged ops must be checked ahead of the pure-opcode switch
	// below: IsICmp inspects the whole tagged value, not just the
	// low-byte opcode space the switch dispatches over, so checking it
	// first means a predicate value can never be mistaken for one of
	// OpAnd/OpOr/OpXor regardless of how those opcodes are numbered.
	if pred, ok := info.Op.IsICmp(); ok {
		return findRootsICmp(r, l, info, pred, ret, visited)
	}

	switch info.Op {
	case label.OpAnd:
		return simplifyLAnd(r, info, ret, visited)
	case label.OpOr:
		return simplifyLOr(r, info, ret, visited)
	case label.OpXor:
		return simplifyXor(r, info, ret, visited)
	}

	// arithmetic / bitwise / cast / load: recurse into symbolic
	// children, can't itself be a root.
	added := false
	if info.L2 >= label.ConstOffset {
		added = findRoots(r, info.L2, ret, visited) || added
	}
	if info.L1 >= label.ConstOffset {
		added = findRoots(r, info.L1, ret, visited) || added
	}
	return added
}

func findRootsICmp(r label.Reader, l label.Label, info *label.Info, pred label.Predicate, ret *ast.Node, visited map[label.Label]bool) bool {
	var lr, rr bool
	left := &ast.Node{}
	right := &ast.Node{}
	if info.L1 >= label.ConstOffset {
		lr = findRoots(r, stripZExt(r, info.L1), left, visited)
	}
	if info.L2 >= label.ConstOffset {
		rr = findRoots(r, stripZExt(r, info.L2), right, visited)
	}

	if lr {
		// bool cmp const: the comparison must be eq/ne against 0 or 1.
		if info.L2 != 0 {
			ret.Kind, ret.BoolValue = ast.Bool, 0
			return false
		}
		eq := pred == label.PredEQ
		const1 := info.Op2 == 1
		switch {
		case eq && const1, !eq && !const1:
			*ret = *left
		default:
			ret.Kind = ast.LNot
			ret.Children = []*ast.Node{left}
		}
		return true
	}
	if rr {
		if info.L1 != 0 {
			ret.Kind, ret.BoolValue = ast.Bool, 0
			return false
		}
		eq := pred == label.PredEQ
		const1 := info.Op1 == 1
		switch {
		case eq && const1, !eq && !const1:
			*ret = *right
		default:
			ret.Kind = ast.LNot
			ret.Children = []*ast.Node{right}
		}
		return true
	}

	// leaf-level on both sides: this is a relational root.
	kind, ok := relKind(info.Op)
	if !ok {
		return false
	}
	ret.Bits = 1
	ret.Kind = kind
	ret.Label = l
	return true
}

func relKind(op label.Op) (ast.Kind, bool) {
	pred, ok := op.IsICmp()
	if !ok {
		return 0, false
	}
	switch pred {
	case label.PredEQ:
		return ast.Eq, true
	case label.PredNE:
		return ast.Distinct, true
	case label.PredUGT:
		return ast.Ugt, true
	case label.PredUGE:
		return ast.Uge, true
	case label.PredULT:
		return ast.Ult, true
	case label.PredULE:
		return ast.Ule, true
	case label.PredSGT:
		return ast.Sgt, true
	case label.PredSGE:
		return ast.Sge, true
	case label.PredSLT:
		return ast.Slt, true
	case label.PredSLE:
		return ast.Sle, true
	}
	return 0, false
}
