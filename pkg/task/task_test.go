// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package task

import (
	"testing"

	"github.com/symsan-go/taintmut/pkg/ast"
	"github.com/symsan-go/taintmut/pkg/constraint"
)

func eqConstraint(offset uint32, val uint8) *constraint.Constraint {
	root := &ast.Node{
		Kind:     ast.Eq,
		Bits:     1,
		Children: []*ast.Node{{Kind: ast.Read, Index: offset, Bits: 8}, {Kind: ast.Constant, Bits: 8, Index: 1}},
	}
	return &constraint.Constraint{
		Root:       root,
		Comparison: ast.Eq,
		LocalMap:   map[uint32]uint32{offset: 0},
		InputArgs:  []constraint.ArgEntry{{Symbolic: true}, {Symbolic: false, Payload: uint64(val)}},
		Inputs:     map[uint32]uint8{offset: val},
		Shapes:     map[uint32]uint32{offset: 1},
		ConstNum:   1,
	}
}

func TestFinalizeSingleConstraint(t *testing.T) {
	tk := New()
	tk.Constraints = []*constraint.Constraint{eqConstraint(3, 0x41)}
	tk.Comparisons = []ast.Kind{ast.Eq}

	if err := tk.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !tk.HasFinalized() {
		t.Fatal("HasFinalized() = false after Finalize")
	}
	if len(tk.Inputs) != 1 || tk.Inputs[0].Offset != 3 || tk.Inputs[0].Value != 0x41 {
		t.Errorf("Inputs = %+v, want [{3 0x41}]", tk.Inputs)
	}
	if len(tk.CMap[0]) != 1 || tk.CMap[0][0] != 0 {
		t.Errorf("CMap[0] = %v, want [0]", tk.CMap[0])
	}
	// scratch args: 2 + len(inputs) + maxConstNum + 1 = 2+1+1+1 = 5
	if len(tk.ScratchArgs) != 5 {
		t.Errorf("len(ScratchArgs) = %d, want 5", len(tk.ScratchArgs))
	}
	if len(tk.MinDistances) != 1 || len(tk.Distances) != 1 {
		t.Errorf("distance slices not sized to constraint count")
	}
}

func TestFinalizeDedupsSharedOffsetAcrossConstraints(t *testing.T) {
	tk := New()
	tk.Constraints = []*constraint.Constraint{eqConstraint(0, 1), eqConstraint(0, 1)}
	tk.Comparisons = []ast.Kind{ast.Eq, ast.Eq}

	if err := tk.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(tk.Inputs) != 1 {
		t.Fatalf("Inputs = %+v, want a single deduped offset-0 entry", tk.Inputs)
	}
	if len(tk.CMap[0]) != 2 {
		t.Errorf("CMap[0] = %v, want both constraints recorded against the shared global index", tk.CMap[0])
	}
}

func TestFinalizeSkipsMemcmpInCMap(t *testing.T) {
	c := eqConstraint(0, 'a')
	c.Comparison = ast.Memcmp
	tk := New()
	tk.Constraints = []*constraint.Constraint{c}
	tk.Comparisons = []ast.Kind{ast.Memcmp}

	if err := tk.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(tk.CMap) != 0 {
		t.Errorf("CMap = %v, want empty: memcmp constraints must not populate it", tk.CMap)
	}
}

func TestFinalizeI2SCandidateOnContiguousRun(t *testing.T) {
	c := eqConstraint(0, 'a')
	c.LocalMap = map[uint32]uint32{0: 0, 1: 1, 2: 2}
	c.InputArgs = []constraint.ArgEntry{{Symbolic: true}, {Symbolic: true}, {Symbolic: true}}
	c.Inputs = map[uint32]uint8{0: 'a', 1: 'b', 2: 'c'}
	c.Shapes = map[uint32]uint32{0: 1, 1: 1, 2: 1}

	tk := New()
	tk.Constraints = []*constraint.Constraint{c}
	tk.Comparisons = []ast.Kind{ast.Eq}
	if err := tk.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	cands := tk.ConsMeta[0].I2SCandidates
	if len(cands) != 1 || cands[0].Offset != 0 || cands[0].Length != 3 {
		t.Errorf("I2SCandidates = %+v, want one run of length 3 starting at 0", cands)
	}
}

func TestFinalizePushesZeroCandidateWhenConstraintHasNoOffsets(t *testing.T) {
	c := &constraint.Constraint{
		Root:       &ast.Node{Kind: ast.Eq},
		Comparison: ast.Eq,
		LocalMap:   map[uint32]uint32{},
		Inputs:     map[uint32]uint8{},
		Shapes:     map[uint32]uint32{},
	}
	tk := New()
	tk.Constraints = []*constraint.Constraint{c}
	tk.Comparisons = []ast.Kind{ast.Eq}
	if err := tk.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	cands := tk.ConsMeta[0].I2SCandidates
	if len(cands) != 1 || cands[0].Offset != 0 || cands[0].Length != 0 {
		t.Errorf("I2SCandidates = %+v, want a single {0,0} candidate: the trailing push is unconditional even with no contiguous run", cands)
	}
}

func TestFinalizeMissingInitialValueErrors(t *testing.T) {
	c := eqConstraint(0, 'a')
	delete(c.Inputs, 0)
	tk := New()
	tk.Constraints = []*constraint.Constraint{c}
	tk.Comparisons = []ast.Kind{ast.Eq}
	if err := tk.Finalize(); err == nil {
		t.Fatal("Finalize should error when a constraint has no initial value for a mapped offset")
	}
}

func TestLoadHintWarmStartsFromSolvedBase(t *testing.T) {
	base := New()
	base.Inputs = []InputByte{{Offset: 5, Value: 0}}
	base.Solved = true
	base.Solution = map[uint32]uint8{5: 0x99}

	tk := New()
	tk.Inputs = []InputByte{{Offset: 5, Value: 0}}
	tk.BaseTask = base

	tk.LoadHint()
	if tk.Inputs[0].Value != 0x99 {
		t.Errorf("Inputs[0].Value = %#x, want 0x99 (warm-started from BaseTask)", tk.Inputs[0].Value)
	}
}

func TestLoadHintNoopWhenBaseUnsolved(t *testing.T) {
	base := New()
	base.Inputs = []InputByte{{Offset: 5, Value: 0}}

	tk := New()
	tk.Inputs = []InputByte{{Offset: 5, Value: 7}}
	tk.BaseTask = base

	tk.LoadHint()
	if tk.Inputs[0].Value != 7 {
		t.Errorf("LoadHint must not touch Inputs when BaseTask.Solved is false")
	}
}
