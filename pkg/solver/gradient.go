// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package solver

import (
	"math/bits"

	"github.com/symsan-go/taintmut/pkg/ast"
	"github.com/symsan-go/taintmut/pkg/constraint"
	"github.com/symsan-go/taintmut/pkg/task"
)

// GradientSolver is a single-stage, coordinate-descent reference
// implementation: for each input byte it tries every candidate value
// and keeps whichever minimizes the task's total distance, repeating
// until either every constraint is satisfied or no byte's change
// improves the distance further. It is a brute-force stand-in for a
// real SMT or gradient-search back-end, just enough to drive the
// engine's own tests through SAT/UNSAT end to end.
type GradientSolver struct {
	// MaxRounds bounds the number of full coordinate-descent sweeps over
	// every input byte. Zero selects a small built-in default.
	MaxRounds int
}

const defaultMaxRounds = 8

// Stages reports that GradientSolver offers exactly one strategy.
func (s *GradientSolver) Stages() int { return 1 }

// Solve implements Solver.
func (s *GradientSolver) Solve(stage int, t *task.SearchTask, input []byte) (Result, []byte, error) {
	cand := append([]byte(nil), input...)
	for _, ib := range t.Inputs {
		if int(ib.Offset) < len(cand) {
			cand[ib.Offset] = ib.Value
		}
	}

	if sat, err := allSatisfied(t, cand); err != nil {
		return UNSAT, nil, err
	} else if sat {
		recordSolution(t, cand)
		return SAT, cand, nil
	}

	maxRounds := s.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}

	for round := 0; round < maxRounds; round++ {
		improved := false
		cur, err := totalDistance(t, cand)
		if err != nil {
			return UNSAT, nil, err
		}
		if cur == 0 {
			break
		}
		for _, ib := range t.Inputs {
			off := ib.Offset
			if int(off) >= len(cand) {
				continue
			}
			best := cand[off]
			bestDist := cur
			original := cand[off]
			for v := 0; v < 256; v++ {
				cand[off] = byte(v)
				d, err := totalDistance(t, cand)
				if err != nil {
					cand[off] = original
					return UNSAT, nil, err
				}
				if d < bestDist {
					bestDist = d
					best = byte(v)
				}
			}
			cand[off] = best
			if bestDist < cur {
				cur = bestDist
				improved = true
			}
		}
		if !improved {
			break
		}
	}

	sat, err := allSatisfied(t, cand)
	if err != nil {
		return UNSAT, nil, err
	}
	if !sat {
		return UNSAT, nil, nil
	}
	recordSolution(t, cand)
	return SAT, cand, nil
}

func recordSolution(t *task.SearchTask, cand []byte) {
	for _, ib := range t.Inputs {
		if int(ib.Offset) < len(cand) {
			t.Solution[ib.Offset] = cand[ib.Offset]
		}
	}
	t.Solved = true
}

func allSatisfied(t *task.SearchTask, cand []byte) (bool, error) {
	for i, c := range t.Constraints {
		cmp := t.Comparisons[i]
		ok, err := satisfiesComparison(c, cmp, cand)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// totalDistance sums each constraint's distance from being satisfied;
// zero iff every constraint holds.
func totalDistance(t *task.SearchTask, cand []byte) (uint64, error) {
	var sum uint64
	for i, c := range t.Constraints {
		d, err := distance(c, t.Comparisons[i], cand)
		if err != nil {
			return 0, err
		}
		sum += d
	}
	return sum, nil
}

func satisfiesComparison(c *constraint.Constraint, cmp ast.Kind, buf []byte) (bool, error) {
	if cmp == ast.Memcmp || cmp == ast.MemcmpN {
		return Satisfies(c, buf)
	}
	// the root's own Kind may have been overwritten by NNF negation
	// (pkg/task/construct.go); evaluate under cmp, not c.Root.Kind.
	ev := &evaluator{c: c, buf: buf}
	l, r, bits, err := ev.operands(c.Root)
	if err != nil {
		return false, err
	}
	return evalRelational(cmp, l&maskFor(bits), r&maskFor(bits), bits), nil
}

// distance is zero exactly when the constraint holds, and otherwise a
// heuristic measure the coordinate descent above drives toward zero.
func distance(c *constraint.Constraint, cmp ast.Kind, buf []byte) (uint64, error) {
	if cmp == ast.Memcmp || cmp == ast.MemcmpN {
		return memcmpDistance(c, buf)
	}

	ev := &evaluator{c: c, buf: buf}
	l, r, bits, err := ev.operands(c.Root)
	if err != nil {
		return 0, err
	}
	lm, rm := l&maskFor(bits), r&maskFor(bits)
	if evalRelational(cmp, lm, rm, bits) {
		return 0, nil
	}

	switch cmp {
	case ast.Eq:
		return absDiff(lm, rm), nil
	case ast.Distinct:
		return 1, nil
	case ast.Ult, ast.Ule, ast.Ugt, ast.Uge:
		d := absDiff(lm, rm)
		if d == 0 {
			d = 1
		}
		return d, nil
	case ast.Slt, ast.Sle, ast.Sgt, ast.Sge:
		ls, rs := signExtend(lm, bits), signExtend(rm, bits)
		d := uint64(absInt64(ls - rs))
		if d == 0 {
			d = 1
		}
		return d, nil
	}
	return 1, nil
}

func memcmpDistance(c *constraint.Constraint, buf []byte) (uint64, error) {
	read := c.Root.Children[0]
	off := int(read.Index)
	n := int(read.Bits) / 8
	if off+n > len(buf) {
		return 0, nil
	}
	var mismatched uint64
	for i := 0; i < n && i < len(c.MemcmpContent); i++ {
		if buf[off+i] != c.MemcmpContent[i] {
			mismatched += uint64(bits.OnesCount8(buf[off+i] ^ c.MemcmpContent[i]))
		}
	}
	return mismatched, nil
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
