// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package engine implements the custom-mutator driver state machine:
// one child run per fuzzer-selected input (FuzzCount) and one
// mutation-slot step per fuzz call (Fuzz), matching the AFL++ custom
// mutator's afl_custom_* entry points.
package engine

import (
	"fmt"
	"os"

	"github.com/symsan-go/taintmut/internal/elog"
	"github.com/symsan-go/taintmut/pkg/cover"
	"github.com/symsan-go/taintmut/pkg/label"
	"github.com/symsan-go/taintmut/pkg/solver"
	"github.com/symsan-go/taintmut/pkg/task"
	"github.com/symsan-go/taintmut/pkg/taskqueue"
)

// mutationState tracks whether the engine is between mutations, has
// handed out a mutation pending validation, or has had that mutation
// confirmed solved by a matching QueueNewEntry callback.
type mutationState int

const (
	stateInvalid mutationState = iota
	stateInValidation
	stateValidated
)

// Config collects the pieces an Engine needs as abstract collaborators
// plus the environment the host fuzzer is expected to pass.
type Config struct {
	TargetBin    string
	OutDir       string
	UseStdin     bool
	Debug        bool
	ShmID        int
	LabelTable   label.Reader
	TaskManager  taskqueue.TaskManager
	CoverManager cover.Manager
	Solvers      []solver.Solver
}

// Engine is the per-fuzzer-process mutator state, the Go analogue of
// my_mutator_t.
type Engine struct {
	cfg Config
	m   *metrics

	outFile string

	exprCache task.ExprCache
	memcmp    map[label.Label][]byte
	seenInput map[string]bool

	curTask        *task.SearchTask
	curSolverIndex int
	curSolverStage int
	state          mutationState

	// currentSeedName is the filename of the queue entry FuzzCount is
	// currently mutating, set by NoteCurrentSeed before FuzzCount runs.
	// QueueNewEntry compares the host's parent filename against this,
	// not against anything a mutation candidate was written under.
	currentSeedName string
}

// NewFromEnv reads SYMSAN_TARGET and SYMSAN_OUTPUT_DIR and constructs
// an Engine, matching afl_custom_init's env/FATAL handling.
func NewFromEnv(outDirFallback string, cfg Config) (*Engine, error) {
	target := os.Getenv("SYMSAN_TARGET")
	if target == "" {
		return nil, fmt.Errorf("engine: SYMSAN_TARGET not defined, this must point to the instrumented binary")
	}
	cfg.TargetBin = target

	outDir := os.Getenv("SYMSAN_OUTPUT_DIR")
	if outDir == "" {
		outDir = outDirFallback
	}
	cfg.OutDir = outDir
	if err := os.MkdirAll(outDir, 0777); err != nil {
		return nil, fmt.Errorf("engine: creating output dir: %w", err)
	}

	return New(cfg)
}

// New constructs an Engine from an already-populated Config, filling
// in default collaborators where the caller left them nil. At least
// one solver must be provided.
func New(cfg Config) (*Engine, error) {
	if cfg.TaskManager == nil {
		cfg.TaskManager = taskqueue.NewFIFOTaskManager()
	}
	if cfg.CoverManager == nil {
		cfg.CoverManager = cover.NewEdgeManager(1 << 16)
	}
	if len(cfg.Solvers) == 0 {
		return nil, fmt.Errorf("engine: at least one solver must be configured")
	}

	e := &Engine{
		cfg:       cfg,
		m:         newMetrics(),
		exprCache: make(task.ExprCache),
		memcmp:    make(map[label.Label][]byte),
		seenInput: make(map[string]bool),
		outFile:   cfg.OutDir + "/.cur_input",
		state:     stateValidated,
	}
	return e, nil
}

// Close releases the shared label table, when the Engine owns a
// mapped one.
func (e *Engine) Close() {
	if closer, ok := e.cfg.LabelTable.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			elog.Errorf("engine: closing label table: %v", err)
		}
	}
	if e.cfg.TargetBin != "" {
		if err := os.Remove(e.outFile); err != nil && !os.IsNotExist(err) {
			elog.Debugf("engine: removing scratch file: %v", err)
		}
	}
}

// SpliceOptout reports that this mutator never wants its output
// spliced against another input, matching
// afl_custom_splice_optout's empty body.
func (e *Engine) SpliceOptout() {}

// NoteCurrentSeed records the filename of the queue entry about to be
// passed to FuzzCount, the Go analogue of the host's
// afl_custom_queue_get callback firing before afl_custom_fuzz_count.
// QueueNewEntry's parentName argument is later compared against this.
func (e *Engine) NoteCurrentSeed(name string) {
	e.currentSeedName = name
}

// QueueNewEntry implements the validation callback: the host always
// passes the seed it is currently fuzzing as parentName (AFL++'s
// queue_cur->fname). If that matches the seed FuzzCount was told about
// via NoteCurrentSeed and we are awaiting validation, the last
// mutation is considered to have produced covered, solved output.
func (e *Engine) QueueNewEntry(parentName string) {
	if e.state == stateInValidation && parentName == e.currentSeedName {
		e.state = stateValidated
		if e.curTask != nil {
			e.curTask.Solved = true
		}
	}
}

// Metrics exposes the Prometheus registry an HTTP handler can scrape.
func (e *Engine) Metrics() *metrics { return e.m }
