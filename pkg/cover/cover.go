// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package cover defines the BranchContext abstract collaborator, and
// Manager, which decides whether a branch's negated direction is
// worth exploring.
package cover

import "sync"

// BranchContext identifies one observed conditional branch. Two
// contexts are equal iff every field matches.
type BranchContext struct {
	Address      uint64
	ID           uint32
	Direction    bool
	CallContext  uint32
	IsLoop       bool
	IsUnreachable bool
}

// Negated returns a copy of ctx with Direction flipped, the context
// the engine asks the Manager about before deciding to spend effort
// building tasks for it.
func (ctx BranchContext) Negated() BranchContext {
	ctx.Direction = !ctx.Direction
	return ctx
}

// Manager decides which branches are worth constructing tasks for.
type Manager interface {
	AddBranch(addr uint64, id uint32, direction bool, callContext uint32, isLoop, isUnreachable bool) BranchContext
	IsBranchInteresting(ctx BranchContext) bool
}

// EdgeManager is the default Manager: it indexes by edge (prevID,
// thisID) modulo a fixed bitmap size, the same scheme AFL itself uses
// for its coverage bitmap.
type EdgeManager struct {
	bitmapSize uint32
	prevID     uint32

	mu   sync.Mutex
	seen map[uint64]struct{}
}

// NewEdgeManager returns an EdgeManager with the given AFL-style
// bitmap size (must be a power of two; 1<<16 matches AFL's default).
func NewEdgeManager(bitmapSize uint32) *EdgeManager {
	return &EdgeManager{
		bitmapSize: bitmapSize,
		seen:       make(map[uint64]struct{}),
	}
}

func (m *EdgeManager) edgeID(prevID, thisID uint32) uint64 {
	return (uint64(prevID>>1) ^ uint64(thisID)) % uint64(m.bitmapSize)
}

// AddBranch records an observed branch and returns its BranchContext.
// It does not itself advance the edge's "previous id" side: that only
// happens once IsBranchInteresting has had a chance to score the edge
// leading into ctx, so a caller that checks ctx.Negated() still sees
// the edge coming from the branch actually executed before ctx.
func (m *EdgeManager) AddBranch(addr uint64, id uint32, direction bool, callContext uint32, isLoop, isUnreachable bool) BranchContext {
	return BranchContext{
		Address: addr, ID: id, Direction: direction,
		CallContext: callContext, IsLoop: isLoop, IsUnreachable: isUnreachable,
	}
}

// IsBranchInteresting reports whether ctx's edge has not been seen
// before, marking it seen and advancing the edge cursor as a side
// effect.
func (m *EdgeManager) IsBranchInteresting(ctx BranchContext) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.edgeID(m.prevID, ctx.ID)
	m.prevID = ctx.ID
	if _, ok := m.seen[id]; ok {
		return false
	}
	m.seen[id] = struct{}{}
	return true
}
