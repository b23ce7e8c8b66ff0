// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package label provides a read-only, bounds-checked view over the
// shared-memory table of taint labels written by an instrumented
// target's runtime. Labels are never materialized as owned pointers:
// every lookup goes through Table.Get, which indexes into the backing
// arena.
package label

import "fmt"

// Label is a 32-bit handle into the shared-memory Info table.
type Label uint32

// ConstOffset is the threshold below which a Label denotes "no label" /
// a literal operand rather than a symbolic value.
const ConstOffset Label = 1

// Init is the sentinel for an uninitialized table slot. Encountering it
// in a live expression is a soft error.
const Init Label = 0xffffffff

// Op encodes either a pure opcode or ICmp|(predicate<<8).
type Op uint16

// Pure opcodes, mirroring __dfsan's op enum.
const (
	OpLoad Op = iota + 1
	OpConcat
	OpZExt
	OpSExt
	OpExtract
	OpTrunc
	OpAdd
	OpSub
	OpUDiv
	OpSDiv
	OpSRem
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor
	// OpICmp is tagged in the low byte and carries its Predicate in the
	// byte above; 0x80 sits well clear of the pure-opcode range above so
	// op&0xff can never alias one of them.
	OpICmp Op = 0x80
)

// Predicate is the comparison kind packed into the high byte of an
// ICmp-tagged Op.
type Predicate uint8

const (
	PredEQ Predicate = iota
	PredNE
	PredUGT
	PredUGE
	PredULT
	PredULE
	PredSGT
	PredSGE
	PredSLT
	PredSLE
)

// IsICmp reports whether op is an ICmp-tagged opcode, and if so its
// predicate.
func (op Op) IsICmp() (Predicate, bool) {
	if op&0xff != OpICmp {
		return 0, false
	}
	return Predicate(op >> 8), true
}

// Info is a read-only record in the shared-memory table, written by the
// target's taint runtime.
type Info struct {
	L1, L2   Label
	Op       Op
	Size     uint16 // bit-width of the value
	Op1, Op2 uint64 // immediate constants / operand offsets
}

// Table is a bounds-checked, read-only view over the label arena. It is
// process-global for the duration of one child run and is reset by the
// child per execution.
type Table struct {
	infos []Info
	// closer tears down the backing mapping, when Table owns one
	// (internal/procutil.NewLabelTable sets this; NewTable leaves it nil).
	closer func() error
}

// NewTable wraps an already-mapped slice of Info records. Production
// callers obtain that slice from internal/procutil's shared-memory
// mapping; tests construct it directly.
func NewTable(infos []Info) *Table {
	return &Table{infos: infos}
}

// NewMappedTable wraps infos together with a teardown func, used by
// internal/procutil.NewLabelTable to attach the shmctl(IPC_RMID)
// unmap behind Table.Close.
func NewMappedTable(infos []Info, closer func() error) *Table {
	return &Table{infos: infos, closer: closer}
}

// Close tears down the backing mapping, if this Table owns one.
func (t *Table) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer()
}

// Get returns the Info for label, or an error if the label is out of
// bounds, below ConstOffset, or the Init sentinel.
func (t *Table) Get(l Label) (*Info, error) {
	if l == Init {
		return nil, fmt.Errorf("label: encountered uninitialized label slot")
	}
	if l < ConstOffset {
		return nil, fmt.Errorf("label: invalid label %d (below const offset)", l)
	}
	idx := int(l)
	if idx >= len(t.infos) {
		return nil, fmt.Errorf("label: label %d out of bounds (table size %d)", l, len(t.infos))
	}
	return &t.infos[idx], nil
}

// Len reports the number of label slots currently backing the table.
func (t *Table) Len() int {
	return len(t.infos)
}

// Reader is the read-only accessor both the expression builder
// (pkg/constraint) and the boolean root finder (pkg/boolexpr) need.
// *Table satisfies it; tests substitute small map-backed fakes.
type Reader interface {
	Get(Label) (*Info, error)
}
