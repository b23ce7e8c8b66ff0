// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ast

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNegateIsInvolution(t *testing.T) {
	for k := range relationalKinds {
		n := k.Negate()
		if !n.IsRelational() {
			t.Fatalf("Negate(%v) = %v, not relational", k, n)
		}
		if n.Negate() != k {
			t.Errorf("Negate(Negate(%v)) = %v, want %v", k, n.Negate(), k)
		}
	}
}

func TestNegatePanicsOnNonRelational(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic negating a non-relational kind")
		}
	}()
	Add.Negate()
}

func TestHashIsPureFunctionOfStructure(t *testing.T) {
	// two Read leaves at the same arg index/width hash equal.
	h1 := HashLeafRead(8, 3)
	h2 := HashLeafRead(8, 3)
	if h1 != h2 {
		t.Fatalf("HashLeafRead not deterministic: %d vs %d", h1, h2)
	}

	// a binary node built over equal children and equal kind/bits
	// hashes equal regardless of which instances produced the children.
	leftA := HashLeafRead(8, 0)
	rightA := HashLeafConstant(8, 1)
	leftB := HashLeafRead(8, 0)
	rightB := HashLeafConstant(8, 1)

	hA := HashBinary(leftA, Add, 8, rightA)
	hB := HashBinary(leftB, Add, 8, rightB)
	if hA != hB {
		t.Fatalf("HashBinary not a pure function of structure: %d vs %d", hA, hB)
	}

	// relational kinds collapse to the same hash bucket as each other
	// (but not as a non-relational kind) over the same operands.
	hEq := HashBinary(leftA, Eq, 8, rightA)
	hUlt := HashBinary(leftA, Ult, 8, rightA)
	if hEq != hUlt {
		t.Errorf("relational kinds over equal operands should share a hash: Eq=%d Ult=%d", hEq, hUlt)
	}
	if hEq == hA {
		t.Errorf("relational hash should not collide with the arithmetic hash over the same operands")
	}
}

func TestCloneDeepCopies(t *testing.T) {
	child := &Node{Kind: Read, Bits: 8, Index: 1}
	root := &Node{Kind: Add, Bits: 8, Children: []*Node{child}}

	clone := root.Clone()
	if diff := cmp.Diff(root, clone); diff != "" {
		t.Fatalf("Clone produced a structurally different tree (-want +got):\n%s", diff)
	}

	clone.Children[0].Index = 99
	if child.Index != 1 {
		t.Fatalf("Clone did not deep-copy children: original mutated to %d", child.Index)
	}
	if diff := cmp.Diff(root, clone); diff == "" {
		t.Fatal("mutating the clone should have produced a diff against the original")
	}
}

func TestCloneNil(t *testing.T) {
	var n *Node
	if n.Clone() != nil {
		t.Fatal("Clone of a nil *Node must return nil")
	}
}
