// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package solver defines the abstract Solver collaborator (concrete
// solver back-ends are out of scope; this package only fixes the
// interface) plus one reference GradientSolver used to drive the
// engine's own tests end to end.
package solver

import "github.com/symsan-go/taintmut/pkg/task"

// Result is the outcome of one Solve call.
type Result int

const (
	SAT Result = iota
	UNSAT
	Timeout
)

// Solver is the abstract search back-end a SearchTask is dispatched
// to. Implementations may be stateful across Solve calls on the same
// (task, stage), but the engine guarantees monotonic (task, solver,
// stage) progression and drops the task on UNSAT.
type Solver interface {
	// Stages reports how many solver-internal strategy iterations this
	// solver offers (e.g. local-search attempt number, SMT timeout tier).
	Stages() int
	// Solve attempts stage against task over input and returns a
	// mutated candidate alongside the outcome.
	Solve(stage int, t *task.SearchTask, input []byte) (Result, []byte, error)
}
