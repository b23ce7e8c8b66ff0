// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/symsan-go/taintmut/internal/elog"
	"github.com/symsan-go/taintmut/internal/procutil"
	"github.com/symsan-go/taintmut/pkg/constraint"
	"github.com/symsan-go/taintmut/pkg/cover"
	"github.com/symsan-go/taintmut/pkg/label"
	"github.com/symsan-go/taintmut/pkg/task"
	"github.com/symsan-go/taintmut/pkg/wire"
)

func inputID(buf []byte) string {
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// FuzzCount runs one child execution against buf and returns an upper
// bound on the number of subsequent mutation slots. It is the Go
// analogue of afl_custom_fuzz_count.
func (e *Engine) FuzzCount(buf []byte) (uint32, error) {
	id := inputID(buf)
	if e.seenInput[id] {
		return 0, nil
	}
	e.seenInput[id] = true

	if err := e.stageInput(buf); err != nil {
		return 0, fmt.Errorf("engine: staging input: %w", err)
	}

	e.exprCache = make(task.ExprCache)
	e.memcmp = make(map[label.Label][]byte)

	child, err := procutil.Spawn(procutil.Options{
		Bin:      []string{e.cfg.TargetBin, e.outFile},
		OutFile:  e.outFile,
		UseStdin: e.cfg.UseStdin,
		ShmID:    e.cfg.ShmID,
		Debug:    e.cfg.Debug,
	})
	if err != nil {
		return 0, fmt.Errorf("engine: spawning target: %w", err)
	}

	numTasks, err := e.readNotifications(child.NotifyPipe(), buf)
	if err != nil {
		elog.Errorf("engine: notification loop: %v", err)
	}

	if err := child.Wait(); err != nil {
		elog.Debugf("engine: target exited: %v", err)
	}

	e.curTask = nil
	e.state = stateValidated

	var maxStages uint32
	for _, s := range e.cfg.Solvers {
		maxStages += uint32(s.Stages())
	}
	e.m.inputsFuzzed.Inc()
	return uint32(numTasks) * maxStages, nil
}

func (e *Engine) stageInput(buf []byte) error {
	f, err := os.OpenFile(e.outFile, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteAt(buf, 0); err != nil {
		return err
	}
	return f.Truncate(int64(len(buf)))
}

// readNotifications drains the child's pipe, dispatching each
// notification by type, and returns the number of tasks added to the
// TaskManager.
func (e *Engine) readNotifications(r io.Reader, buf []byte) (int, error) {
	numTasks := 0
	for {
		msg, err := wire.ReadPipeMsg(r)
		if err == io.EOF {
			return numTasks, nil
		}
		if err != nil {
			return numTasks, err
		}

		switch msg.MsgType {
		case wire.CondType:
			n, err := e.handleCond(msg, buf)
			if err != nil {
				elog.Debugf("engine: handle cond: %v", err)
				continue
			}
			numTasks += n

		case wire.GepType:
			gmsg, err := wire.ReadGepMsg(r)
			if err != nil {
				return numTasks, err
			}
			if gmsg.IndexLabel != msg.Label {
				elog.Debugf("engine: mismatched gep labels %d vs %d", msg.Label, gmsg.IndexLabel)
				continue
			}
			// reserved for array-bounds inference; currently a no-op.

		case wire.MemcmpType:
			info, err := e.cfg.LabelTable.Get(msg.Label)
			if err != nil {
				elog.Debugf("engine: memcmp label lookup: %v", err)
				continue
			}
			if info.L1 >= label.ConstOffset && info.L2 >= label.ConstOffset {
				// both operands symbolic: no concrete content to cache.
				continue
			}
			mmsg, err := wire.ReadMemcmpMsg(r, msg.Result)
			if err != nil {
				return numTasks, err
			}
			if mmsg.Label != msg.Label {
				elog.Debugf("engine: mismatched memcmp labels %d vs %d", msg.Label, mmsg.Label)
				continue
			}
			e.memcmp[msg.Label] = mmsg.Content

			if n, err := e.handleMemcmp(msg.Label, info, mmsg.Content, buf); err != nil {
				elog.Debugf("engine: handle memcmp: %v", err)
			} else {
				numTasks += n
			}

		case wire.FsizeType:
			// ignored: fsize records carry no actionable taint.

		default:
			// ignored.
		}
	}
}

// handleCond turns a newly-observed conditional branch into zero or
// more SearchTasks, if the branch's negated direction is interesting
// enough to pursue.
func (e *Engine) handleCond(msg wire.PipeMsg, buf []byte) (int, error) {
	if msg.Label == 0 {
		return 0, nil
	}

	ctx := e.cfg.CoverManager.AddBranch(msg.Addr, msg.ID, msg.Result != 0, msg.Context, false, false)
	negCtx := ctx.Negated()

	if !e.cfg.CoverManager.IsBranchInteresting(negCtx) {
		return 0, nil
	}

	tasks, err := task.ConstructAll(e.cfg.LabelTable, msg.Label, negCtx.Direction, buf, e.exprCache)
	if err != nil {
		return 0, err
	}

	added := 0
	edge := branchKey(negCtx)
	for _, t := range tasks {
		if e.cfg.TaskManager.AddTask(taskKey(edge, t), t) {
			added++
			e.m.tasksAdded.Inc()
		}
	}
	return added, nil
}

// handleMemcmp turns a cached memcmp payload into its own SearchTask,
// since memcmp content never flows through the ICmp label graph that
// handleCond/task.ConstructAll walk.
func (e *Engine) handleMemcmp(l label.Label, info *label.Info, content []byte, buf []byte) (int, error) {
	symLabel := info.L1
	if symLabel < label.ConstOffset {
		symLabel = info.L2
	}
	if symLabel < label.ConstOffset {
		return 0, nil
	}
	off, length, err := resolveSymbolicRegion(e.cfg.LabelTable, symLabel)
	if err != nil {
		return 0, err
	}
	if int(off+length) > len(buf) {
		return 0, fmt.Errorf("engine: memcmp region [%d,%d) out of bounds", off, off+length)
	}

	multiByte := length > 1
	c := constraint.NewMemcmp(multiByte, off, length, content, buf)
	t := task.New()
	t.Constraints = append(t.Constraints, c)
	t.Comparisons = append(t.Comparisons, c.Comparison)
	if err := t.Finalize(); err != nil {
		return 0, err
	}

	key := memcmpKey(l)
	if e.cfg.TaskManager.AddTask(key, t) {
		e.m.tasksAdded.Inc()
		return 1, nil
	}
	return 0, nil
}

// resolveSymbolicRegion walks a Read/Load terminal to the (offset,
// length) pair it covers, the same terminal cases buildNode handles.
func resolveSymbolicRegion(r label.Reader, l label.Label) (off, length uint32, err error) {
	info, err := r.Get(l)
	if err != nil {
		return 0, 0, err
	}
	if info.Op == 0 {
		return uint32(info.Op1), 1, nil
	}
	if info.Op == label.OpLoad {
		l1Info, err := r.Get(info.L1)
		if err != nil {
			return 0, 0, err
		}
		return uint32(l1Info.Op1), uint32(info.L2), nil
	}
	return 0, 0, fmt.Errorf("engine: memcmp operand label %d is not a terminal read", l)
}

// memcmpKey derives a memcmp-derived task's dedup key: bit 63 set and
// the label in the low bits. Keys from taskKey are full 64-bit folds
// and can also have bit 63 set, so the two key sets are not disjoint.
func memcmpKey(l label.Label) uint64 {
	return uint64(1)<<63 | uint64(l)
}

// branchKey derives a dedup key for the TaskManager from a
// BranchContext: an FNV-style fold over its address, id and call
// context, with the direction in the low bit.
func branchKey(ctx cover.BranchContext) uint64 {
	h := uint64(ctx.Address)
	h = h*1099511628211 ^ uint64(ctx.ID)
	h = h*1099511628211 ^ uint64(ctx.CallContext)
	if ctx.Direction {
		h ^= 1
	}
	return h
}

// taskKey folds edge (a branchKey) with the root label and structural
// hash of each of t's constraints, so sibling SearchTasks that a
// compound predicate's DNF expansion produces from the same handleCond
// call — and therefore the same edge — get distinct dedup keys instead
// of colliding on edge alone. The root label is needed because the
// structural hash alone is equal for same-shaped comparisons over
// different input offsets.
func taskKey(edge uint64, t *task.SearchTask) uint64 {
	h := edge
	for _, c := range t.Constraints {
		h = h*1099511628211 ^ (uint64(c.Root.Label)<<32 | uint64(c.Root.Hash))
	}
	return h
}
