// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"strconv"

	"github.com/symsan-go/taintmut/pkg/solver"
)

// Fuzz implements one AFL mutation-slot call, matching afl_custom_fuzz.
func (e *Engine) Fuzz(buf []byte) ([]byte, error) {
	if e.curTask == nil || e.state == stateValidated {
		t, ok := e.cfg.TaskManager.Next()
		if !ok {
			return buf, nil
		}
		e.curTask = t
		e.curSolverIndex = 0
		e.curSolverStage = 0
		e.state = stateInvalid
	}

	if e.state == stateInValidation {
		// the previous mutation's validation did not land; move on to
		// the next stage of the same solver.
		e.curSolverStage++
	}

	for {
		if e.curSolverIndex >= len(e.cfg.Solvers) {
			// exhausted every solver for this task; drop it and recurse
			// into the next one.
			e.curTask = nil
			return e.Fuzz(buf)
		}
		cur := e.cfg.Solvers[e.curSolverIndex]
		if e.curSolverStage >= cur.Stages() {
			e.curSolverIndex++
			e.curSolverStage = 0
			continue
		}
		break
	}

	cur := e.cfg.Solvers[e.curSolverIndex]
	e.m.solverCalls.WithLabelValues(strconv.Itoa(e.curSolverIndex)).Inc()

	result, out, err := cur.Solve(e.curSolverStage, e.curTask, buf)
	if err != nil {
		return buf, err
	}

	switch result {
	case solver.SAT:
		e.state = stateInValidation
		e.m.mutationsSAT.Inc()
		return out, nil
	case solver.Timeout:
		e.state = stateInvalid
		e.curSolverStage++
		e.m.mutationsTimeout.Inc()
		return buf, nil
	default: // solver.UNSAT
		e.curTask = nil
		e.m.mutationsUNSAT.Inc()
		e.m.tasksDropped.Inc()
		return buf, nil
	}
}
