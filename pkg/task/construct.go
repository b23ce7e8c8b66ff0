// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package task

import (
	"github.com/symsan-go/taintmut/pkg/boolexpr"
	"github.com/symsan-go/taintmut/pkg/constraint"
	"github.com/symsan-go/taintmut/pkg/label"
)

// ExprCache is the per-input label -> Constraint cache shared across
// every task constructed while processing one fuzzer-selected input.
// The engine owns one instance and clears it at input boundaries.
type ExprCache map[label.Label]*constraint.Constraint

// Construct turns one DNF clause into a finalized SearchTask. For each
// relational leaf it reuses a
// cached Constraint when available, else runs constraint.Build with a
// fresh visited-set and caches the result — noting that the leaf's
// comparison kind may differ from the cached constraint's natural root
// kind because NNF may have negated it, which is why Comparison is
// tracked separately from the AST's own Kind.
func Construct(r label.Reader, clause boolexpr.Clause, buf []byte, cache ExprCache) (*SearchTask, error) {
	t := New()
	for _, leaf := range clause {
		comparison := leaf.Kind
		c, ok := cache[leaf.Label]
		if !ok {
			var err error
			c, err = constraint.Build(r, leaf.Label, buf)
			if err != nil {
				return nil, err
			}
			c.Comparison = comparison
			c.Root.Kind = comparison
			cache[leaf.Label] = c
		}
		t.Constraints = append(t.Constraints, c)
		t.Comparisons = append(t.Comparisons, comparison)
	}
	if err := t.Finalize(); err != nil {
		return nil, err
	}
	return t, nil
}

// ConstructAll parses label into a boolean skeleton, negates it to the
// requested direction, converts to DNF, and constructs one SearchTask
// per clause.
func ConstructAll(r label.Reader, l label.Label, targetDirection bool, buf []byte, cache ExprCache) ([]*SearchTask, error) {
	root, added := boolexpr.FindRoots(r, l)
	if !added {
		// the simplified formula is a boolean constant: nothing to do.
		return nil, nil
	}

	boolexpr.ToNNF(targetDirection, root)
	clauses := boolexpr.ToDNF(root)

	var tasks []*SearchTask
	for _, clause := range clauses {
		t, err := Construct(r, clause, buf, cache)
		if err != nil {
			// a single malformed clause must not abort the others.
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
