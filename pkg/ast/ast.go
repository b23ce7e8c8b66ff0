// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package ast defines the tagged expression tree produced by walking a
// label graph: AstNode. Structural hashing is xxhash-based so that two
// constraints built over equal subtrees share JIT-code / expression-cache
// entries.
package ast

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/symsan-go/taintmut/pkg/label"
)

// Kind tags the variant of an AstNode.
type Kind uint8

const (
	Read Kind = iota
	Constant
	Bool
	LNot
	LAnd
	LOr
	Xor

	// relational
	Eq
	Distinct
	Ult
	Ule
	Ugt
	Uge
	Slt
	Sle
	Sgt
	Sge

	// arithmetic
	Add
	Sub
	Mul
	UDiv
	SDiv
	SRem

	// bitwise
	And
	Or
	Shl
	LShr
	AShr

	// extend / cast
	ZExt
	SExt
	Extract
	Concat

	Memcmp
	MemcmpN

	NumKinds
)

var relationalKinds = map[Kind]bool{
	Eq: true, Distinct: true,
	Ult: true, Ule: true, Ugt: true, Uge: true,
	Slt: true, Sle: true, Sgt: true, Sge: true,
}

// IsRelational reports whether k is one of the ten relational kinds.
func (k Kind) IsRelational() bool {
	return relationalKinds[k]
}

var negation = map[Kind]Kind{
	Eq: Distinct, Distinct: Eq,
	Ult: Uge, Uge: Ult,
	Ule: Ugt, Ugt: Ule,
	Slt: Sge, Sge: Slt,
	Sle: Sgt, Sgt: Sle,
}

// Negate returns the logical negation of a relational kind. It panics
// if k is not relational; callers must check IsRelational first.
func (k Kind) Negate() Kind {
	n, ok := negation[k]
	if !ok {
		panic("ast: Negate called on non-relational kind")
	}
	return n
}

// boolHashKind collapses every relational kind to a single tag before
// hashing, so that the same operands produce the same function hash
// regardless of which comparison sits at the root.
func boolHashKind(k Kind) Kind {
	if k.IsRelational() {
		return Bool
	}
	return k
}

// Node is one tagged node in the expression tree.
type Node struct {
	Kind      Kind
	Bits      uint16
	Label     label.Label
	Index     uint32 // input offset for Read, arg index for Constant, low-bit offset for Extract
	Hash      uint32
	BoolValue uint8
	Children  []*Node
}

// NewLeaf constructs a childless node and lets the caller fill in the
// remaining fields.
func NewLeaf(kind Kind, bits uint16) *Node {
	return &Node{Kind: kind, Bits: bits}
}

// AddChild appends and returns a fresh child node.
func (n *Node) AddChild() *Node {
	c := &Node{}
	n.Children = append(n.Children, c)
	return c
}

// Clone performs a deep copy, mirroring AstNode::CopyFrom in the
// original C++ (used heavily by the boolean simplifier when a subtree
// is reused verbatim, e.g. x LAnd 1 = x).
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Kind: n.Kind, Bits: n.Bits, Label: n.Label,
		Index: n.Index, Hash: n.Hash, BoolValue: n.BoolValue,
	}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// hash32 truncates an xxhash64 sum to 32 bits. Every hashing rule here
// operates on 32-bit quantities (the label table's label width), so
// every node stores a 32-bit digest.
func hash32(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}

func u32le(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

// HashLeafRead computes the hash for a Read leaf: xxhash(bits, Read, argIndex).
func HashLeafRead(bits uint16, argIndex uint32) uint32 {
	buf := make([]byte, 0, 10)
	buf = append(buf, u32le(uint32(bits))...)
	buf = append(buf, byte(Read))
	buf = append(buf, u32le(argIndex)...)
	return hash32(buf)
}

// HashLeafConstant computes the hash for a Constant leaf: xxhash(bits, Constant, argIndex).
func HashLeafConstant(bits uint16, argIndex uint32) uint32 {
	buf := make([]byte, 0, 10)
	buf = append(buf, u32le(uint32(bits))...)
	buf = append(buf, byte(Constant))
	buf = append(buf, u32le(argIndex)...)
	return hash32(buf)
}

// HashUnary computes the hash for a unary interior node: xxhash(bits, kind, child.Hash).
func HashUnary(bits uint16, kind Kind, childHash uint32) uint32 {
	buf := make([]byte, 0, 10)
	buf = append(buf, u32le(uint32(bits))...)
	buf = append(buf, byte(kind))
	buf = append(buf, u32le(childHash)...)
	return hash32(buf)
}

// HashBinary computes the hash for a binary interior node:
// xxhash(left.Hash, (kindForHash<<16)|bits, right.Hash), normalizing
// relational kinds to Bool so comparisons sharing operands share a
// JIT-code slot regardless of which relation sits at the root.
func HashBinary(leftHash uint32, kind Kind, bits uint16, rightHash uint32) uint32 {
	mid := (uint32(boolHashKind(kind)) << 16) | uint32(bits)
	buf := make([]byte, 0, 12)
	buf = append(buf, u32le(leftHash)...)
	buf = append(buf, u32le(mid)...)
	buf = append(buf, u32le(rightHash)...)
	return hash32(buf)
}
