// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package boolexpr

import "github.com/symsan-go/taintmut/pkg/ast"

// ToNNF pushes negation down to the relational leaves. When a leaf is
// reached with expected == false, its relational
// kind is replaced by its logical negation; when expected == true, the
// leaf is left untouched, but LNot flips expected for the recursion.
// Every LNot node reached is replaced by its rewritten child.
func ToNNF(expected bool, node *ast.Node) {
	if !expected {
		switch node.Kind {
		case ast.LNot:
			child := node.Children[0]
			ToNNF(true, child)
			*node = *child
		case ast.LAnd:
			node.Kind = ast.LOr
			ToNNF(false, node.Children[0])
			ToNNF(false, node.Children[1])
		case ast.LOr:
			node.Kind = ast.LAnd
			ToNNF(false, node.Children[0])
			ToNNF(false, node.Children[1])
		default:
			node.Kind = node.Kind.Negate()
		}
		return
	}

	if node.Kind == ast.LNot {
		child := node.Children[0]
		ToNNF(false, child)
		*node = *child
		return
	}
	for _, child := range node.Children {
		ToNNF(true, child)
	}
}

// Clause is one conjunction of relational leaves: a single SearchTask
// is constructed per clause.
type Clause []*ast.Node

// ToDNF converts a boolean formula already in NNF into disjunctive
// normal form. LAnd takes the cartesian product of
// its children's clause lists; LOr concatenates them; a leaf is a
// singleton clause. A pure-constant side of an LAnd (empty clause list)
// is dropped, leaving the other side's clauses unchanged.
func ToDNF(node *ast.Node) []Clause {
	switch node.Kind {
	case ast.LAnd:
		left := ToDNF(node.Children[0])
		right := ToDNF(node.Children[1])
		if len(left) == 0 {
			return right
		}
		if len(right) == 0 {
			return left
		}
		formula := make([]Clause, 0, len(left)*len(right))
		for _, l := range left {
			for _, rr := range right {
				clause := make(Clause, 0, len(l)+len(rr))
				clause = append(clause, l...)
				clause = append(clause, rr...)
				formula = append(formula, clause)
			}
		}
		return formula
	case ast.LOr:
		left := ToDNF(node.Children[0])
		right := ToDNF(node.Children[1])
		return append(left, right...)
	default:
		return []Clause{{node}}
	}
}
