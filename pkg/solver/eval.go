// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package solver

import (
	"fmt"

	"github.com/symsan-go/taintmut/pkg/ast"
	"github.com/symsan-go/taintmut/pkg/constraint"
)

// evaluator interprets a Constraint's AstNode against a candidate
// input buffer, tree-walking rather than compiling a test function per
// Constraint.
type evaluator struct {
	c   *constraint.Constraint
	buf []byte
}

func maskFor(bits uint16) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

func (e *evaluator) eval(n *ast.Node) (uint64, error) {
	switch n.Kind {
	case ast.Read:
		off := int(n.Index)
		nbytes := int(n.Bits) / 8
		if off+nbytes > len(e.buf) {
			return 0, fmt.Errorf("solver: read [%d,%d) out of bounds", off, off+nbytes)
		}
		var v uint64
		for i := nbytes - 1; i >= 0; i-- {
			v = (v << 8) | uint64(e.buf[off+i])
		}
		return v, nil
	case ast.Constant:
		if int(n.Index) >= len(e.c.InputArgs) {
			return 0, fmt.Errorf("solver: constant arg index %d out of range", n.Index)
		}
		return e.c.InputArgs[n.Index].Payload & maskFor(n.Bits), nil
	case ast.ZExt:
		v, err := e.eval(n.Children[0])
		return v, err
	case ast.SExt:
		v, err := e.eval(n.Children[0])
		if err != nil {
			return 0, err
		}
		childBits := n.Children[0].Bits
		signBit := uint64(1) << (childBits - 1)
		if v&signBit != 0 {
			v |= ^maskFor(childBits)
		}
		return v & maskFor(n.Bits), nil
	case ast.Extract:
		v, err := e.eval(n.Children[0])
		if err != nil {
			return 0, err
		}
		return (v >> n.Index) & maskFor(n.Bits), nil
	}

	if len(n.Children) != 2 {
		return 0, fmt.Errorf("solver: node kind %d missing operands", n.Kind)
	}
	l, err := e.eval(n.Children[0])
	if err != nil {
		return 0, err
	}
	r, err := e.eval(n.Children[1])
	if err != nil {
		return 0, err
	}
	bits := n.Children[0].Bits
	if bits == 0 {
		bits = n.Bits
	}

	switch n.Kind {
	case ast.Add:
		return (l + r) & maskFor(bits), nil
	case ast.Sub:
		return (l - r) & maskFor(bits), nil
	case ast.Mul:
		return (l * r) & maskFor(bits), nil
	case ast.UDiv:
		if r == 0 {
			return 0, fmt.Errorf("solver: udiv by zero")
		}
		return l / r, nil
	case ast.SDiv, ast.SRem:
		return 0, fmt.Errorf("solver: signed div/rem not supported by the reference evaluator")
	case ast.And:
		return l & r, nil
	case ast.Or:
		return l | r, nil
	case ast.Xor:
		return l ^ r, nil
	case ast.Shl:
		return (l << r) & maskFor(bits), nil
	case ast.LShr:
		return (l >> r) & maskFor(bits), nil
	case ast.AShr:
		return l >> r, nil
	case ast.Concat:
		return (l << n.Children[1].Bits) | r, nil
	}

	if n.Kind.IsRelational() {
		lm := l & maskFor(bits)
		rm := r & maskFor(bits)
		ok := evalRelational(n.Kind, lm, rm, bits)
		if ok {
			return 1, nil
		}
		return 0, nil
	}

	return 0, fmt.Errorf("solver: unsupported node kind %d", n.Kind)
}

func evalRelational(kind ast.Kind, l, r uint64, bits uint16) bool {
	switch kind {
	case ast.Eq:
		return l == r
	case ast.Distinct:
		return l != r
	case ast.Ult:
		return l < r
	case ast.Ule:
		return l <= r
	case ast.Ugt:
		return l > r
	case ast.Uge:
		return l >= r
	case ast.Slt, ast.Sle, ast.Sgt, ast.Sge:
		ls, rs := signExtend(l, bits), signExtend(r, bits)
		switch kind {
		case ast.Slt:
			return ls < rs
		case ast.Sle:
			return ls <= rs
		case ast.Sgt:
			return ls > rs
		case ast.Sge:
			return ls >= rs
		}
	}
	return false
}

func signExtend(v uint64, bits uint16) int64 {
	if bits >= 64 {
		return int64(v)
	}
	signBit := uint64(1) << (bits - 1)
	if v&signBit != 0 {
		v |= ^maskFor(bits)
	}
	return int64(v)
}

// operands evaluates n's two children, for callers (distance, above
// eval's own binary dispatch) that need the raw values rather than the
// collapsed 0/1 relational result.
func (e *evaluator) operands(n *ast.Node) (l, r uint64, bits uint16, err error) {
	if len(n.Children) != 2 {
		return 0, 0, 0, fmt.Errorf("solver: node kind %d missing operands", n.Kind)
	}
	l, err = e.eval(n.Children[0])
	if err != nil {
		return 0, 0, 0, err
	}
	r, err = e.eval(n.Children[1])
	if err != nil {
		return 0, 0, 0, err
	}
	bits = n.Children[0].Bits
	if bits == 0 {
		bits = n.Bits
	}
	return l, r, bits, nil
}

// evalMemcmp evaluates a Memcmp/MemcmpN constraint: true iff the
// symbolic bytes at the Read child's offset equal MemcmpContent.
func (e *evaluator) evalMemcmp() (bool, error) {
	read := e.c.Root.Children[0]
	off := int(read.Index)
	n := int(read.Bits) / 8
	if off+n > len(e.buf) {
		return false, fmt.Errorf("solver: memcmp region [%d,%d) out of bounds", off, off+n)
	}
	for i := 0; i < n && i < len(e.c.MemcmpContent); i++ {
		if e.buf[off+i] != e.c.MemcmpContent[i] {
			return false, nil
		}
	}
	return true, nil
}

// Satisfies reports whether c's comparison holds over buf.
func Satisfies(c *constraint.Constraint, buf []byte) (bool, error) {
	ev := &evaluator{c: c, buf: buf}
	if c.Comparison == ast.Memcmp || c.Comparison == ast.MemcmpN {
		return ev.evalMemcmp()
	}
	v, err := ev.eval(c.Root)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
