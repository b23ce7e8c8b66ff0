// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package procutil

import (
	"os"
	"testing"
)

func writeEmptyOutFile(t *testing.T) string {
	t.Helper()
	path := t.TempDir() + "/out"
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("writing scratch out file: %v", err)
	}
	return path
}

func TestSpawnSuppressesOutputWhenNotDebugging(t *testing.T) {
	c, err := Spawn(Options{Bin: []string{"true"}, OutFile: writeEmptyOutFile(t)})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if c.devNull == nil {
		t.Error("devNull should be opened and wired to Stdout/Stderr when Debug is false")
	}
	if c.cmd.Stdout != c.devNull || c.cmd.Stderr != c.devNull {
		t.Error("cmd.Stdout/Stderr should both be devNull when Debug is false")
	}
	if err := c.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestSpawnInheritsOutputWhenDebugging(t *testing.T) {
	c, err := Spawn(Options{Bin: []string{"true"}, OutFile: writeEmptyOutFile(t), Debug: true})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if c.devNull != nil {
		t.Error("devNull should not be opened when Debug is true")
	}
	if c.cmd.Stdout != os.Stdout || c.cmd.Stderr != os.Stderr {
		t.Error("cmd.Stdout/Stderr should be inherited from the parent process when Debug is true")
	}
	if err := c.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
