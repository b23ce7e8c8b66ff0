// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Command symsan-mutate drives one Engine over a single seed file and
// optionally serves its Prometheus metrics, standing in for the AFL++
// custom mutator C shim that would otherwise call
// Init/FuzzCount/Fuzz/Close directly.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/symsan-go/taintmut/internal/elog"
	"github.com/symsan-go/taintmut/internal/procutil"
	"github.com/symsan-go/taintmut/pkg/engine"
	"github.com/symsan-go/taintmut/pkg/solver"
)

func main() {
	var (
		seedFile    = flag.String("seed", "", "path to the seed input to drive through the engine")
		shmID       = flag.Int("shm_id", 0, "System V shared memory id backing the target's label table")
		shmSize     = flag.Uint64("shm_size", 0, "size in bytes of the label table shared-memory segment")
		useStdin    = flag.Bool("use_stdin", false, "pass the staged input to the target over stdin")
		debug       = flag.Bool("debug", false, "enable debug logging and forward the target's stdout/stderr")
		metricsAddr = flag.String("metrics_addr", "", "if set, serve Prometheus metrics on this address")
	)
	flag.Parse()

	if *seedFile == "" {
		fmt.Fprintln(os.Stderr, "symsan-mutate: -seed is required")
		os.Exit(2)
	}
	if *debug {
		elog.Verbose = 1
	}

	buf, err := os.ReadFile(*seedFile)
	if err != nil {
		elog.Fatalf("symsan-mutate: reading seed: %v", err)
	}

	table, err := procutil.NewLabelTable(*shmID, uintptr(*shmSize))
	if err != nil {
		elog.Fatalf("symsan-mutate: mapping label table: %v", err)
	}
	defer table.Close()

	e, err := engine.NewFromEnv("./symsan-out", engine.Config{
		ShmID:      *shmID,
		UseStdin:   *useStdin,
		Debug:      *debug,
		LabelTable: table,
		Solvers:    []solver.Solver{&solver.GradientSolver{}},
	})
	if err != nil {
		elog.Fatalf("symsan-mutate: %v", err)
	}
	defer e.Close()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(e.Metrics().Registry, promhttp.HandlerOpts{}))
		go func() {
			elog.Logf("symsan-mutate: serving metrics on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, handlers.LoggingHandler(os.Stdout, mux)); err != nil {
				elog.Errorf("symsan-mutate: metrics server: %v", err)
			}
		}()
	}

	e.NoteCurrentSeed(*seedFile)
	upperBound, err := e.FuzzCount(buf)
	if err != nil {
		elog.Fatalf("symsan-mutate: %v", err)
	}
	elog.Logf("symsan-mutate: %d candidate mutation(s) available", upperBound)

	for i := uint32(0); i < upperBound; i++ {
		out, err := e.Fuzz(buf)
		if err != nil {
			elog.Errorf("symsan-mutate: mutation %d: %v", i, err)
			continue
		}
		if string(out) == string(buf) {
			continue
		}
		name := fmt.Sprintf("mutation-%d", i)
		if err := os.WriteFile(name, out, 0644); err != nil {
			elog.Errorf("symsan-mutate: writing %s: %v", name, err)
			continue
		}
		elog.Logf("symsan-mutate: wrote %s", name)
	}
}
