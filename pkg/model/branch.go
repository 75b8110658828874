// Package model implements a reactive data-model layer: typed models
// composed of named attributes, organized into ordered collections, backed
// by pluggable persistence, with automatic derived-value recomputation and
// change notification.
package model

import "reflect"

// Value is the dynamic payload held by an attribute.
type Value = any

// Branch names a snapshot slot holding a previously committed value, used
// for change detection and rollback. Branch stores are per attribute and
// per collection, so two models may reuse the same branch name without
// interference.
type Branch string

// DefaultBranch always exists after construction and reflects the last
// committed value on the default branch.
const DefaultBranch Branch = "default"

// PreviousBranch is committed by every structural collection mutation so
// the most recent membership change can be undone.
const PreviousBranch Branch = "previous"

// Model-internal branches. Uniqueness is scoped to the owning instance
// because every attribute carries its own branch map.
const (
	changeBranch Branch = "#change"
	calcBranch   Branch = "#calc"
)

func defaultEqual(a, b Value) bool {
	return reflect.DeepEqual(a, b)
}

// branchStore tracks an attribute's current value plus named snapshots.
// It is the primitive commit, revert and isChanged operate on.
type branchStore struct {
	current  Value
	branches map[Branch]Value
	equal    func(a, b Value) bool
}

func newBranchStore(initial Value, equal func(a, b Value) bool) *branchStore {
	if equal == nil {
		equal = defaultEqual
	}
	return &branchStore{
		current:  initial,
		branches: map[Branch]Value{DefaultBranch: initial},
		equal:    equal,
	}
}

func (s *branchStore) get() Value {
	return s.current
}

// set mutates the current value only; branches are untouched.
func (s *branchStore) set(v Value) {
	s.current = v
}

// commit copies the current value into the named branch, creating it on
// first use, and reports whether the stored value actually differed.
func (s *branchStore) commit(b Branch) bool {
	prev, ok := s.branches[b]
	s.branches[b] = s.current
	return !ok || !s.equal(prev, s.current)
}

// previous reads the branch value without mutating current. A branch that
// was never committed resolves to the default branch, which always exists.
func (s *branchStore) previous(b Branch) Value {
	if v, ok := s.branches[b]; ok {
		return v
	}
	return s.branches[DefaultBranch]
}

// revert discards uncommitted edits, restoring current from the branch.
func (s *branchStore) revert(b Branch) {
	s.current = s.previous(b)
}

func (s *branchStore) isChanged(b Branch) bool {
	return !s.equal(s.current, s.previous(b))
}
