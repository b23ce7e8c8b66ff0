// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package cover

import "testing"

func TestNegatedFlipsDirectionOnly(t *testing.T) {
	ctx := BranchContext{Address: 0x1000, ID: 7, Direction: true, CallContext: 3}
	neg := ctx.Negated()
	if neg.Direction == ctx.Direction {
		t.Error("Negated() did not flip Direction")
	}
	neg.Direction = ctx.Direction
	if neg != ctx {
		t.Errorf("Negated() changed a field other than Direction: got %+v, want %+v", neg, ctx)
	}
}

func TestEdgeManagerFirstSightingIsInteresting(t *testing.T) {
	m := NewEdgeManager(1 << 16)
	ctx := m.AddBranch(0x1000, 1, true, 0, false, false)
	if !m.IsBranchInteresting(ctx) {
		t.Error("first sighting of an edge should be interesting")
	}
}

func TestEdgeManagerRepeatedEdgeIsNotInteresting(t *testing.T) {
	m := NewEdgeManager(1 << 16)

	// An edge is (previous id, this id). After a first sighting of id 2
	// (edge 0->2), two more sightings of id 2 both form edge 2->2: the
	// second of those recreates the exact same edge and must return false.
	prime := m.AddBranch(0x1000, 2, true, 0, false, false)
	m.IsBranchInteresting(prime)
	same := m.AddBranch(0x1000, 2, true, 0, false, false)
	first := m.IsBranchInteresting(same)
	if !first {
		t.Fatal("new edge should be interesting on its first sighting")
	}
	repeat := m.AddBranch(0x1000, 2, true, 0, false, false)
	if m.IsBranchInteresting(repeat) {
		t.Error("revisiting the exact same edge twice in a row must not be interesting the second time")
	}
}

func TestEdgeManagerDistinctIDsProduceDistinctEdges(t *testing.T) {
	m := NewEdgeManager(1 << 16)
	a := m.AddBranch(0x1000, 10, true, 0, false, false)
	if !m.IsBranchInteresting(a) {
		t.Fatal("first edge should be interesting")
	}
	b := m.AddBranch(0x2000, 20, true, 0, false, false)
	if !m.IsBranchInteresting(b) {
		t.Error("an edge arriving at a different id should be a distinct, interesting edge")
	}
}
