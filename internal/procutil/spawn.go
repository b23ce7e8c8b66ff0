// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package procutil spawns the instrumented target and plumbs its
// notification pipe, fork/setenv/exec and all, for the single
// taint-tracking child the engine drives per run.
package procutil

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/symsan-go/taintmut/internal/elog"
	"github.com/symsan-go/taintmut/pkg/wire"
)

// Child owns one spawned target process and its notification pipe.
type Child struct {
	cmd      *exec.Cmd
	notifyRd *os.File
	devNull  *os.File
	exited   chan error
}

// Options configures Spawn.
type Options struct {
	Bin      []string
	OutFile  string
	UseStdin bool
	ShmID    int
	Debug    bool
	ExtraEnv []string
	Timeout  time.Duration
}

// Spawn starts the target binary with TAINT_OPTIONS pointing it at the
// shared label table (ShmID) and a freshly created notification pipe.
func Spawn(opts Options) (*Child, error) {
	if len(opts.Bin) == 0 {
		return nil, fmt.Errorf("procutil: no target binary configured")
	}

	notifyRd, notifyWr, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("procutil: creating notification pipe: %w", err)
	}

	taintFile := opts.OutFile
	if opts.UseStdin {
		taintFile = "stdin"
	}
	options := wire.TaintOptions(taintFile, opts.ShmID, int(notifyWr.Fd()), opts.Debug)

	cmd := exec.Command(opts.Bin[0], opts.Bin[1:]...)
	cmd.Env = append(append([]string{}, os.Environ()...), "TAINT_OPTIONS="+options)
	cmd.Env = append(cmd.Env, opts.ExtraEnv...)
	cmd.ExtraFiles = []*os.File{notifyWr}
	if opts.UseStdin {
		f, err := os.Open(opts.OutFile)
		if err != nil {
			notifyRd.Close()
			notifyWr.Close()
			return nil, fmt.Errorf("procutil: opening input file: %w", err)
		}
		defer f.Close()
		cmd.Stdin = f
	}
	// the target's stdout/stderr are suppressed unless debugging, the
	// same dup2-onto-/dev/null gating the instrumented runtime itself
	// applies around its own fds.
	var devNull *os.File
	if opts.Debug {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		devNull, err = os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			notifyRd.Close()
			notifyWr.Close()
			return nil, fmt.Errorf("procutil: opening %s: %w", os.DevNull, err)
		}
		cmd.Stdout = devNull
		cmd.Stderr = devNull
	}

	if err := cmd.Start(); err != nil {
		notifyRd.Close()
		notifyWr.Close()
		if devNull != nil {
			devNull.Close()
		}
		return nil, fmt.Errorf("procutil: starting target: %w", err)
	}
	// the child holds its own dup of notifyWr via ExtraFiles; close our
	// copy so notifyRd's reads observe EOF once the child exits.
	notifyWr.Close()

	c := &Child{cmd: cmd, notifyRd: notifyRd, devNull: devNull, exited: make(chan error, 1)}
	go func() {
		err := cmd.Wait()
		c.exited <- err
		close(c.exited)
	}()
	return c, nil
}

// NotifyPipe returns the read end of the child's notification pipe.
func (c *Child) NotifyPipe() *os.File { return c.notifyRd }

// Wait blocks until the child exits. Callers read notifications from
// the pipe to EOF before calling Wait.
func (c *Child) Wait() error {
	err := <-c.exited
	c.notifyRd.Close()
	if c.devNull != nil {
		c.devNull.Close()
	}
	return err
}

// Kill terminates the child if still running.
func (c *Child) Kill() {
	if c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil {
			elog.Debugf("procutil: kill target: %v", err)
		}
	}
}
