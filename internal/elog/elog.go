// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package elog is a thin leveled wrapper over the standard log package.
// It exists so the engine's warn-and-drop error paths (one malformed
// label subtree must not bring down a fuzz_count call) read the same
// way throughout the module, without pulling in a logging framework
// the rest of the dependency graph never needed.
package elog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Verbose controls whether debug messages are printed: Debugf is silent
// unless Verbose is non-zero, matching the target's own TAINT_OPTIONS
// debug flag.
var Verbose int32

func init() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
}

// Debugf logs a debug-level message, printed only when Verbose != 0.
func Debugf(format string, args ...interface{}) {
	if atomic.LoadInt32(&Verbose) == 0 {
		return
	}
	log.Output(2, "DEBUG: "+fmt.Sprintf(format, args...))
}

// Logf logs an informational message.
func Logf(format string, args ...interface{}) {
	log.Output(2, "INFO: "+fmt.Sprintf(format, args...))
}

// Errorf logs a warn-and-drop error: the caller continues, but the
// current branch/constraint/task is being discarded.
func Errorf(format string, args ...interface{}) {
	log.Output(2, "WARN: "+fmt.Sprintf(format, args...))
}

// Fatalf logs a fatal error and terminates the process. Reserved for
// init-time failures: missing SYMSAN_TARGET, failed shmget/shmat, failed
// scratch file allocation.
func Fatalf(format string, args ...interface{}) {
	log.Output(2, "FATAL: "+fmt.Sprintf(format, args...))
	os.Exit(1)
}
