// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package boolexpr

import (
	"github.com/symsan-go/taintmut/pkg/ast"
	"github.com/symsan-go/taintmut/pkg/label"
)

// simplifyLAnd applies 0∧x=0, 1∧x=x and otherwise emits LAnd. The
// target's taint runtime always keeps the rhs symbolic, so the rhs is
// parsed first.
func simplifyLAnd(r label.Reader, info *label.Info, ret *ast.Node, visited map[label.Label]bool) bool {
	lhs := label.Label(0)
	if info.L1 >= label.ConstOffset {
		lhs = stripZExt(r, info.L1)
	}
	rhs := stripZExt(r, info.L2)

	if rhs == info.L2 && lhs == info.L1 && info.Size != 1 {
		// nothing stripped: not a boolean And, just recurse.
		added := findRoots(r, rhs, ret, visited)
		if lhs >= label.ConstOffset {
			added = findRoots(r, lhs, ret, visited) || added
		}
		return added
	}

	right := &ast.Node{}
	rr := findRoots(r, rhs, right, visited)
	if !rr {
		if right.BoolValue == 0 {
			ret.Kind, ret.BoolValue = ast.Bool, 0
			return false
		}
	}
	if lhs == 0 {
		if info.Op1 == 0 {
			ret.Kind, ret.BoolValue = ast.Bool, 0
			return false
		}
		*ret = *right
		return rr
	}

	left := &ast.Node{}
	lr := findRoots(r, lhs, left, visited)
	if !lr {
		if left.BoolValue == 0 {
			ret.Kind, ret.BoolValue = ast.Bool, 0
			return false
		}
		if !rr {
			ret.Kind, ret.BoolValue = ast.Bool, 1
			return false
		}
		*ret = *right
		return rr
	}

	ret.Kind = ast.LAnd
	ret.Bits = 1
	ret.Children = []*ast.Node{right, left}
	return true
}

// simplifyLOr applies x∨0=x, x∨1=1 and otherwise emits LOr.
func simplifyLOr(r label.Reader, info *label.Info, ret *ast.Node, visited map[label.Label]bool) bool {
	lhs := label.Label(0)
	if info.L1 >= label.ConstOffset {
		lhs = stripZExt(r, info.L1)
	}
	rhs := stripZExt(r, info.L2)

	if rhs == info.L2 && lhs == info.L1 && info.Size != 1 {
		added := findRoots(r, rhs, ret, visited)
		if lhs >= label.ConstOffset {
			added = findRoots(r, lhs, ret, visited) || added
		}
		return added
	}

	right := &ast.Node{}
	rr := findRoots(r, rhs, right, visited)
	if !rr {
		if right.BoolValue == 1 {
			ret.Kind, ret.BoolValue = ast.Bool, 1
			return false
		}
	}
	if lhs == 0 {
		if info.Op1 == 1 {
			ret.Kind, ret.BoolValue = ast.Bool, 1
			return false
		}
		*ret = *right
		return rr
	}

	left := &ast.Node{}
	lr := findRoots(r, lhs, left, visited)
	if !lr {
		if left.BoolValue == 1 {
			ret.Kind, ret.BoolValue = ast.Bool, 1
			return false
		}
		if !rr {
			ret.Kind, ret.BoolValue = ast.Bool, 0
			return false
		}
		*ret = *right
		return rr
	}

	ret.Kind = ast.LOr
	ret.Bits = 1
	ret.Children = []*ast.Node{right, left}
	return true
}

// simplifyXor implements LLVM's use of xor for LNot: with one constant
// operand == 1, emits LNot of the symbolic side; with 0, passes the
// symbolic side through; with both constant, computes. Otherwise emits
// Xor.
func simplifyXor(r label.Reader, info *label.Info, ret *ast.Node, visited map[label.Label]bool) bool {
	lhs := label.Label(0)
	if info.L1 >= label.ConstOffset {
		lhs = stripZExt(r, info.L1)
	}
	rhs := stripZExt(r, info.L2)

	if rhs == info.L2 && lhs == info.L1 && info.Size != 1 {
		added := findRoots(r, rhs, ret, visited)
		if lhs >= label.ConstOffset {
			added = findRoots(r, lhs, ret, visited) || added
		}
		return added
	}

	right := &ast.Node{}
	rr := findRoots(r, rhs, right, visited)
	ret.Bits = 1
	if !rr {
		ret.Kind = ast.Bool
		if info.L1 == 0 {
			ret.BoolValue = right.BoolValue ^ uint8(info.Op1)
			return false
		}
	}

	if lhs == 0 {
		if info.Op1 == 1 {
			ret.Kind = ast.LNot
			ret.Children = []*ast.Node{right}
			return true
		}
		*ret = *right
		return rr
	}

	left := &ast.Node{}
	lr := findRoots(r, lhs, left, visited)
	if !lr {
		if left.BoolValue == 0 {
			*ret = *right
		} else {
			ret.Kind = ast.LNot
			ret.Children = []*ast.Node{right}
		}
		return rr
	}

	ret.Kind = ast.Xor
	ret.Children = []*ast.Node{right, left}
	return true
}
