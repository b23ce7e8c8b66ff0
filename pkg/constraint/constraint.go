// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package constraint builds a Constraint — one relational expression
// plus its input-arg mapping — by walking a label graph.
package constraint

import (
	"fmt"

	"github.com/symsan-go/taintmut/pkg/ast"
	"github.com/symsan-go/taintmut/pkg/label"
)

// ArgEntry is one slot of Constraint.InputArgs: for symbolic entries
// the Payload is later overwritten with the global-arg index by
// SearchTask.Finalize; for constants it stays the literal value.
type ArgEntry struct {
	Symbolic bool
	Payload  uint64
}

// AtoiInfo records the input2state metadata for an atoi-like
// conversion: result length, numeric base, and the length of the
// consumed string. Used by SearchTask.Finalize's i2s aggregation.
type AtoiInfo struct {
	ResultLength uint32
	Base         uint32
	StrLength    uint32
}

// Constraint owns one relational AstNode root plus its input-arg
// mapping.
type Constraint struct {
	Root *ast.Node

	// LocalMap maps an input offset to its index in InputArgs, in
	// first-insertion order (iterated sorted by offset).
	LocalMap map[uint32]uint32
	// InputArgs is appended to in insertion order: one entry per
	// symbolic byte plus one per Constant leaf.
	InputArgs []ArgEntry
	// Inputs maps an input offset to its initial byte value.
	Inputs map[uint32]uint8
	// Shapes maps the first offset of a contiguous symbolic group to
	// its width in bytes; every other offset in the group maps to 0.
	Shapes map[uint32]uint32
	// AtoiInfo maps an offset to atoi metadata, when present.
	AtoiInfo map[uint32]AtoiInfo
	// Ops records which operator kinds Build placed in Root; Read and
	// Constant leaves are not recorded, and NewMemcmp leaves it empty.
	Ops [ast.NumKinds]bool
	// ConstNum counts the Constant leaves in Root.
	ConstNum uint32
	// Comparison is the relational kind at the root *as seen by the
	// DNF clause that requested this constraint* — it may differ from
	// Root.Kind because NNF can have negated the comparison.
	Comparison ast.Kind
	Op1, Op2   uint64

	// MemcmpContent holds the bytes the target compared a symbolic
	// buffer against, when Comparison is Memcmp/MemcmpN. It is filled
	// in by the engine from the pipe's memcmp notification, not by
	// Build, since that content never flows through the label graph
	// itself.
	MemcmpContent []byte
}

func newConstraint() *Constraint {
	return &Constraint{
		LocalMap: make(map[uint32]uint32),
		Inputs:   make(map[uint32]uint8),
		Shapes:   make(map[uint32]uint32),
		AtoiInfo: make(map[uint32]AtoiInfo),
	}
}

// NewMemcmp builds a Constraint directly from a cached memcmp payload,
// bypassing Build: memcmp content never flows through the ICmp label
// graph, so there is no AstNode to walk.
// offset/length describe the symbolic side of the comparison; content
// is the literal bytes the target compared it against.
func NewMemcmp(multiByte bool, offset uint32, length uint32, content []byte, buf []byte) *Constraint {
	c := newConstraint()
	kind := ast.Memcmp
	if multiByte {
		kind = ast.MemcmpN
	}
	c.Comparison = kind
	c.MemcmpContent = content
	hash := c.mapArg(buf, offset, length)
	read := &ast.Node{Kind: ast.Read, Bits: uint16(length) * 8, Index: offset, Hash: hash}
	c.Root = &ast.Node{Kind: kind, Bits: 1, Children: []*ast.Node{read}}
	return c
}

// mapArg assigns each byte in [off, off+length) an InputArgs slot if
// it doesn't have one yet, and records the shape of the group. Returns
// the hash of a fresh Read leaf over that group, valid only when the
// caller actually created a new leaf (i.e. on the group's first byte).
func (c *Constraint) mapArg(buf []byte, off uint32, length uint32) uint32 {
	var hash uint32
	for i := uint32(0); i < length; i++ {
		o := off + i
		argIndex, ok := c.LocalMap[o]
		if !ok {
			argIndex = uint32(len(c.InputArgs))
			c.Inputs[o] = buf[o]
			c.LocalMap[o] = argIndex
			c.InputArgs = append(c.InputArgs, ArgEntry{Symbolic: true})
		}
		if i == 0 {
			c.Shapes[o] = length
			hash = ast.HashLeafRead(uint16(length*8), argIndex)
		} else {
			c.Shapes[o] = 0
		}
	}
	return hash
}

// Build walks the label graph rooted at l (which must denote an ICmp
// record) and returns the Constraint it describes.
func Build(r label.Reader, l label.Label, buf []byte) (*Constraint, error) {
	info, err := r.Get(l)
	if err != nil {
		return nil, err
	}
	if _, ok := info.Op.IsICmp(); !ok {
		return nil, fmt.Errorf("constraint: root label %d is not an ICmp record", l)
	}
	c := newConstraint()
	visited := make(map[label.Label]bool)
	root, err := buildNode(r, l, buf, c, visited)
	if err != nil {
		return nil, err
	}
	c.Root = root
	return c, nil
}

// buildNode recurses down the label graph, building an ast.Node and
// populating constraint's arg mapping as it goes.
func buildNode(r label.Reader, l label.Label, buf []byte, c *Constraint, visited map[label.Label]bool) (*ast.Node, error) {
	if l < label.ConstOffset || l == label.Init {
		return nil, fmt.Errorf("constraint: invalid label %d", l)
	}

	if visited[l] {
		// shared sub-tree: record only label+bits, no children.
		info, err := r.Get(l)
		if err != nil {
			return nil, err
		}
		return &ast.Node{Label: l, Bits: info.Size}, nil
	}

	info, err := r.Get(l)
	if err != nil {
		return nil, err
	}

	// terminal input byte
	if info.Op == 0 {
		off := uint32(info.Op1)
		if int(off) >= len(buf) {
			return nil, fmt.Errorf("constraint: input offset %d out of bounds (buf size %d)", off, len(buf))
		}
		hash := c.mapArg(buf, off, 1)
		return &ast.Node{Kind: ast.Read, Bits: 8, Label: l, Index: off, Hash: hash}, nil
	}

	// Load: resolve starting offset from l1's record, length from l2.
	if info.Op == label.OpLoad {
		l1Info, err := r.Get(info.L1)
		if err != nil {
			return nil, err
		}
		off := uint32(l1Info.Op1)
		length := uint32(info.L2)
		if int(off+length) > len(buf) {
			return nil, fmt.Errorf("constraint: load [%d,%d) out of bounds (buf size %d)", off, off+length, len(buf))
		}
		hash := c.mapArg(buf, off, length)
		return &ast.Node{Kind: ast.Read, Bits: uint16(length * 8), Label: l, Index: off, Hash: hash}, nil
	}

	kind, ok := opMapKind(info.Op)
	if !ok {
		return nil, fmt.Errorf("constraint: unknown opcode %d", info.Op)
	}
	c.Ops[kind] = true

	node := &ast.Node{Kind: kind, Bits: info.Size, Label: l}

	var left *ast.Node
	if info.L1 >= label.ConstOffset {
		left, err = buildNode(r, info.L1, buf, c, visited)
		if err != nil {
			return nil, err
		}
		visited[info.L1] = true
	} else {
		size := info.Size
		if info.Op == label.OpConcat {
			otherInfo, err := r.Get(info.L2)
			if err != nil {
				return nil, err
			}
			size -= otherInfo.Size
		}
		left = c.constantLeaf(info.Op1, size)
	}
	node.Children = append(node.Children, left)

	switch kind {
	case ast.ZExt, ast.SExt, ast.Extract:
		node.Hash = ast.HashUnary(node.Bits, node.Kind, left.Hash)
		// OpExtract and OpTrunc both collapse to ast.Extract, but only a
		// real extract carries a nonzero low-bit offset in Op2; a trunc
		// always starts at bit 0.
		if info.Op == label.OpExtract {
			node.Index = uint32(info.Op2)
		}
		return node, nil
	}

	var right *ast.Node
	if info.L2 >= label.ConstOffset {
		right, err = buildNode(r, info.L2, buf, c, visited)
		if err != nil {
			return nil, err
		}
		visited[info.L2] = true
	} else {
		size := info.Size
		if info.Op == label.OpConcat {
			otherInfo, err := r.Get(info.L1)
			if err != nil {
				return nil, err
			}
			size -= otherInfo.Size
		}
		right = c.constantLeaf(info.Op2, size)
	}
	node.Children = append(node.Children, right)

	node.Hash = ast.HashBinary(left.Hash, node.Kind, node.Bits, right.Hash)
	return node, nil
}

func (c *Constraint) constantLeaf(literal uint64, size uint16) *ast.Node {
	argIndex := uint32(len(c.InputArgs))
	c.InputArgs = append(c.InputArgs, ArgEntry{Symbolic: false, Payload: literal})
	c.ConstNum++
	hash := ast.HashLeafConstant(size, argIndex)
	return &ast.Node{Kind: ast.Constant, Bits: size, Index: argIndex, Hash: hash}
}

// opMapKind translates a label.Op to an ast.Kind.
func opMapKind(op label.Op) (ast.Kind, bool) {
	if pred, ok := op.IsICmp(); ok {
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
	switch op {
	case label.OpExtract, label.OpTrunc:
		return ast.Extract, true
	case label.OpConcat:
		return ast.Concat, true
	case label.OpZExt:
		return ast.ZExt, true
	case label.OpSExt:
		return ast.SExt, true
	case label.OpAdd:
		return ast.Add, true
	case label.OpSub:
		return ast.Sub, true
	case label.OpUDiv:
		return ast.UDiv, true
	case label.OpSDiv:
		return ast.SDiv, true
	case label.OpSRem:
		return ast.SRem, true
	case label.OpShl:
		return ast.Shl, true
	case label.OpLShr:
		return ast.LShr, true
	case label.OpAShr:
		return ast.AShr, true
	case label.OpAnd:
		return ast.And, true
	case label.OpOr:
		return ast.Or, true
	case label.OpXor:
		return ast.Xor, true
	}
	return 0, false
}
