package job

import (
	"errors"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/security"
)

// SkipChildren may be returned by a Walk callback to skip a subtree.
var SkipChildren = errors.New("skip children")

// Walk visits root and its descendants depth-first in pre-order. parent is
// nil for root. A non-nil error other than SkipChildren aborts the walk.
func Walk(root *Node, fn func(n, parent *Node) error) error {
	if root == nil {
		return nil
	}
	err := walk(root, nil, fn)
	if errors.Is(err, SkipChildren) {
		return nil
	}
	return err
}

func walk(n, parent *Node, fn func(n, parent *Node) error) error {
	if err := fn(n, parent); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	for _, c := range n.children {
		if err := walk(c, n, fn); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the node with the given id, or nil.
func Find(root *Node, id string) *Node {
	var found *Node
	_ = Walk(root, func(n, _ *Node) error {
		if n.id == id {
			found = n
			return errFound
		}
		return nil
	})
	return found
}

var errFound = errors.New("found")

// IDs returns every job id of the tree in pre-order.
func IDs(root *Node) []string {
	var ids []string
	_ = Walk(root, func(n, _ *Node) error {
		ids = append(ids, n.id)
		return nil
	})
	return ids
}

// Validate checks that a tree can be executed. Problems are reported as
// *core.ConfigurationError.
func Validate(root *Node) error {
	if root == nil {
		return &core.ConfigurationError{Err: core.ErrNilExecutor}
	}
	seen := make(map[string]struct{})
	return Walk(root, func(n, _ *Node) error {
		if n == nil {
			return &core.ConfigurationError{Err: core.ErrNilExecutor}
		}
		if err := security.ValidateJobID(n.id); err != nil {
			return &core.ConfigurationError{JobID: n.id, Err: err}
		}
		if _, dup := seen[n.id]; dup {
			return &core.ConfigurationError{JobID: n.id, Err: core.ErrDuplicateJobID}
		}
		seen[n.id] = struct{}{}

		switch n.kind {
		case KindLeaf:
			if n.exec == nil {
				return &core.ConfigurationError{JobID: n.id, Err: core.ErrNilExecutor}
			}
		case KindSync, KindAsync:
			if len(n.children) == 0 {
				return &core.ConfigurationError{JobID: n.id, Err: core.ErrEmptyGroup}
			}
			for _, c := range n.children {
				if c == nil {
					return &core.ConfigurationError{JobID: n.id, Err: core.ErrNilExecutor}
				}
			}
		}
		return nil
	})
}
