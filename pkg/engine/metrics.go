// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics mirrors syz-manager/html.go's promhttp.HandlerFor(registry, ...)
// convention, but registers against a private Registry rather than
// prometheus.DefaultGatherer so that more than one Engine (as in
// this package's own tests) can coexist in a process without a
// duplicate-registration panic. cmd/symsan-mutate exposes Registry via
// promhttp.HandlerFor directly.
type metrics struct {
	Registry *prometheus.Registry

	tasksAdded       prometheus.Counter
	tasksDropped     prometheus.Counter
	mutationsSAT     prometheus.Counter
	mutationsUNSAT   prometheus.Counter
	mutationsTimeout prometheus.Counter
	solverCalls      *prometheus.CounterVec
	inputsFuzzed     prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &metrics{
		Registry: reg,
		tasksAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "taintmut_tasks_added_total",
			Help: "Search tasks enqueued by the driver loop.",
		}),
		tasksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "taintmut_tasks_dropped_total",
			Help: "Search tasks dropped after an UNSAT verdict.",
		}),
		mutationsSAT: f.NewCounter(prometheus.CounterOpts{
			Name: "taintmut_mutations_sat_total",
			Help: "Mutation attempts whose solver call returned SAT.",
		}),
		mutationsUNSAT: f.NewCounter(prometheus.CounterOpts{
			Name: "taintmut_mutations_unsat_total",
			Help: "Mutation attempts whose solver call returned UNSAT.",
		}),
		mutationsTimeout: f.NewCounter(prometheus.CounterOpts{
			Name: "taintmut_mutations_timeout_total",
			Help: "Mutation attempts whose solver call timed out.",
		}),
		solverCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taintmut_solver_calls_total",
			Help: "Solver invocations by solver index.",
		}, []string{"solver"}),
		inputsFuzzed: f.NewCounter(prometheus.CounterOpts{
			Name: "taintmut_inputs_fuzzed_total",
			Help: "Inputs run through the driver loop.",
		}),
	}
}
