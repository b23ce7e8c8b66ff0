// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package solver

import (
	"testing"

	"github.com/symsan-go/taintmut/pkg/ast"
	"github.com/symsan-go/taintmut/pkg/constraint"
	"github.com/symsan-go/taintmut/pkg/task"
)

// eqTask builds a single-constraint task asserting buf[off] == want.
func eqTask(off uint32, want uint8, initial uint8) *task.SearchTask {
	root := &ast.Node{
		Kind:     ast.Eq,
		Bits:     8,
		Children: []*ast.Node{{Kind: ast.Read, Index: off, Bits: 8}, {Kind: ast.Constant, Bits: 8, Index: 1}},
	}
	c := &constraint.Constraint{
		Root:       root,
		Comparison: ast.Eq,
		LocalMap:   map[uint32]uint32{off: 0},
		InputArgs:  []constraint.ArgEntry{{Symbolic: true}, {Symbolic: false, Payload: uint64(want)}},
		Inputs:     map[uint32]uint8{off: initial},
		Shapes:     map[uint32]uint32{off: 1},
		ConstNum:   1,
	}
	tk := task.New()
	tk.Constraints = []*constraint.Constraint{c}
	tk.Comparisons = []ast.Kind{ast.Eq}
	if err := tk.Finalize(); err != nil {
		panic(err)
	}
	return tk
}

func TestSatisfiesEquality(t *testing.T) {
	off := uint32(3)
	root := &ast.Node{
		Kind:     ast.Eq,
		Bits:     8,
		Children: []*ast.Node{{Kind: ast.Read, Index: off, Bits: 8}, {Kind: ast.Constant, Bits: 8, Index: 1}},
	}
	c := &constraint.Constraint{
		Root:       root,
		Comparison: ast.Eq,
		InputArgs:  []constraint.ArgEntry{{Symbolic: true}, {Symbolic: false, Payload: 0x41}},
	}
	buf := []byte{0, 0, 0, 0x41}
	ok, err := Satisfies(c, buf)
	if err != nil {
		t.Fatalf("Satisfies: %v", err)
	}
	if !ok {
		t.Error("Satisfies(buf[3]==0x41) = false, want true")
	}
	buf[3] = 0x42
	ok, err = Satisfies(c, buf)
	if err != nil {
		t.Fatalf("Satisfies: %v", err)
	}
	if ok {
		t.Error("Satisfies(buf[3]==0x41) = true after mutating buf[3], want false")
	}
}

func TestSatisfiesMemcmp(t *testing.T) {
	c := constraint.NewMemcmp(true, 1, 3, []byte("abc"), []byte{0, 'a', 'b', 'c'})
	buf := []byte{0, 'a', 'b', 'c'}
	ok, err := Satisfies(c, buf)
	if err != nil {
		t.Fatalf("Satisfies: %v", err)
	}
	if !ok {
		t.Error("Satisfies(memcmp match) = false, want true")
	}
	buf[2] = 'x'
	ok, err = Satisfies(c, buf)
	if err != nil {
		t.Fatalf("Satisfies: %v", err)
	}
	if ok {
		t.Error("Satisfies(memcmp mismatch) = true, want false")
	}
}

func TestGradientSolverFindsSATWhenAlreadySatisfied(t *testing.T) {
	tk := eqTask(0, 0x41, 0x41)
	s := &GradientSolver{}
	res, out, err := s.Solve(0, tk, []byte{0x41})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res != SAT {
		t.Fatalf("Solve = %v, want SAT", res)
	}
	if out[0] != 0x41 {
		t.Errorf("out[0] = %#x, want 0x41", out[0])
	}
	if !tk.Solved || tk.Solution[0] != 0x41 {
		t.Errorf("task not recorded as solved with the satisfying byte")
	}
}

func TestGradientSolverSearchesToSAT(t *testing.T) {
	tk := eqTask(0, 0x41, 0x00)
	s := &GradientSolver{}
	res, out, err := s.Solve(0, tk, []byte{0x00})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res != SAT {
		t.Fatalf("Solve = %v, want SAT", res)
	}
	if out[0] != 0x41 {
		t.Errorf("out[0] = %#x, want 0x41 (solver should have found the satisfying byte)", out[0])
	}
}

func TestGradientSolverDoesNotMutateOriginalInput(t *testing.T) {
	tk := eqTask(0, 0x41, 0x00)
	s := &GradientSolver{}
	input := []byte{0x00}
	_, out, err := s.Solve(0, tk, input)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if input[0] != 0x00 {
		t.Errorf("Solve mutated the caller's input slice: input[0] = %#x", input[0])
	}
	if &out[0] == &input[0] {
		t.Error("Solve returned the same backing array as the input")
	}
}

func TestGradientSolverStagesIsOne(t *testing.T) {
	s := &GradientSolver{}
	if s.Stages() != 1 {
		t.Errorf("Stages() = %d, want 1", s.Stages())
	}
}
