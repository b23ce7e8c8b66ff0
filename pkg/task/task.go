// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package task aggregates constraints from one DNF clause into a
// solvable SearchTask with a shared input-argument array.
package task

import (
	"fmt"
	"time"

	"github.com/symsan-go/taintmut/pkg/ast"
	"github.com/symsan-go/taintmut/pkg/constraint"
)

// I2SCandidate is a maximal contiguous offset run within one
// constraint: a hint for input-to-state solving where input bytes are
// copied directly from a target constant.
type I2SCandidate struct {
	Offset uint32
	Length uint32
}

// ConsMeta is the per-task, mutable re-binding of one constraint's
// InputArgs to global arg indices.
type ConsMeta struct {
	InputArgs     []constraint.ArgEntry
	Comparison    ast.Kind
	I2SCandidates []I2SCandidate
	Op1, Op2      uint64
}

// InputByte is one (offset, initial value) pair in SearchTask.Inputs,
// in first-insertion order.
type InputByte struct {
	Offset uint32
	Value  uint8
}

// SearchTask aggregates multiple Constraints for a single DNF clause.
type SearchTask struct {
	// Constraints is read-only and shareable across tasks.
	Constraints []*constraint.Constraint
	Comparisons []ast.Kind
	ConsMeta    []*ConsMeta

	Inputs      []InputByte
	Shapes      map[uint32]uint32
	AtoiInfo    map[uint32]constraint.AtoiInfo
	MaxConstNum uint32
	// CMap maps a global arg index to the constraint indices that use
	// it (memcmp constraints are excluded).
	CMap map[uint32][]int

	// ScratchArgs is a flat arg buffer sized 2+len(Inputs)+MaxConstNum+1;
	// allocated exactly once by Finalize and never reallocated.
	ScratchArgs []uint64

	MinDistances  []uint64
	Distances     []uint64
	PlusDistances []uint64
	MinusDistances []uint64

	Start    time.Time
	Stopped  bool
	Attempts int

	Solved   bool
	Solution map[uint32]uint8

	// BaseTask, if set, is used by LoadHint to warm-start Inputs from
	// a prior solution.
	BaseTask *SearchTask
	// SkipNext is reserved: no code path currently sets it, kept for
	// field-compatibility and never read.
	SkipNext bool

	finalized bool
}

// New returns an empty, unfinalized SearchTask.
func New() *SearchTask {
	return &SearchTask{
		Shapes:   make(map[uint32]uint32),
		AtoiInfo: make(map[uint32]constraint.AtoiInfo),
		CMap:     make(map[uint32][]int),
		Solution: make(map[uint32]uint8),
	}
}

// HasFinalized reports whether Finalize has already run.
func (t *SearchTask) HasFinalized() bool {
	return t.finalized
}

// Finalize builds the global arg layout: a deduplicated input-byte
// array shared across all of the task's constraints, plus the
// per-constraint metadata (I2SCandidates, CMap, scratch-arg sizing)
// needed to drive a solver over it.
func (t *SearchTask) Finalize() error {
	symMap := make(map[uint32]uint32)

	for i, c := range t.Constraints {
		cm := &ConsMeta{
			InputArgs:  append([]constraint.ArgEntry(nil), c.InputArgs...),
			Comparison: t.Comparisons[i],
			Op1:        c.Op1,
			Op2:        c.Op2,
		}

		offsets := sortedOffsets(c.LocalMap)
		var lastOffset int64 = -1
		var runSize uint32

		for _, off := range offsets {
			lidx := c.LocalMap[off]
			gidx, ok := symMap[off]
			if !ok {
				gidx = uint32(len(t.Inputs))
				symMap[off] = gidx
				v, ok := c.Inputs[off]
				if !ok {
					return fmt.Errorf("task: constraint %d missing initial value for offset %d", i, off)
				}
				t.Inputs = append(t.Inputs, InputByte{Offset: off, Value: v})
				t.Shapes[off] = c.Shapes[off]
			}

			if cm.Comparison != ast.Memcmp && cm.Comparison != ast.MemcmpN {
				t.CMap[gidx] = append(t.CMap[gidx], i)
			}

			cm.InputArgs[lidx].Payload = uint64(gidx)

			if lastOffset != -1 && uint32(lastOffset)+1 != off {
				cm.I2SCandidates = append(cm.I2SCandidates, I2SCandidate{
					Offset: uint32(lastOffset) + 1 - runSize,
					Length: runSize,
				})
				runSize = 0
			}
			lastOffset = int64(off)
			runSize++
		}
		var lastOff uint32
		if len(offsets) > 0 {
			lastOff = offsets[len(offsets)-1] + 1
		}
		cm.I2SCandidates = append(cm.I2SCandidates, I2SCandidate{
			Offset: lastOff - runSize,
			Length: runSize,
		})

		for off, info := range c.AtoiInfo {
			if existing, ok := t.AtoiInfo[off]; ok && existing != info {
				return fmt.Errorf("task: conflicting atoi info at offset %d", off)
			}
			t.AtoiInfo[off] = info
		}

		if c.ConstNum > t.MaxConstNum {
			t.MaxConstNum = c.ConstNum
		}

		t.ConsMeta = append(t.ConsMeta, cm)
	}

	size := 2 + len(t.Inputs) + int(t.MaxConstNum) + 1
	t.ScratchArgs = make([]uint64, size)
	n := len(t.Constraints)
	t.MinDistances = make([]uint64, n)
	t.Distances = make([]uint64, n)
	t.PlusDistances = make([]uint64, n)
	t.MinusDistances = make([]uint64, n)

	t.finalized = true
	return nil
}

// LoadHint warm-starts Inputs from BaseTask's prior solution.
func (t *SearchTask) LoadHint() {
	if t.BaseTask == nil || !t.BaseTask.Solved {
		return
	}
	for i, ib := range t.Inputs {
		if v, ok := t.BaseTask.Solution[ib.Offset]; ok {
			t.Inputs[i].Value = v
		}
	}
}

func sortedOffsets(m map[uint32]uint32) []uint32 {
	offs := make([]uint32, 0, len(m))
	for off := range m {
		offs = append(offs, off)
	}
	// insertion sort is fine: constraint arg lists are tiny (one
	// relational expression's worth of bytes).
	for i := 1; i < len(offs); i++ {
		for j := i; j > 0 && offs[j-1] > offs[j]; j-- {
			offs[j-1], offs[j] = offs[j], offs[j-1]
		}
	}
	return offs
}
