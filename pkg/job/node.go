package job

import (
	"context"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/jobctx"
	"github.com/jdziat/jobsuite/pkg/security"
)

// Kind tags the variant of a Node.
type Kind int

const (
	KindLeaf Kind = iota
	KindSync
	KindAsync
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	}
	return "unknown"
}

// Executor is the body of a leaf job.
//
// Execute runs on the calling goroutine and returns only once the work has
// finished, failed, or honored a stop request.
type Executor interface {
	Execute(ctx context.Context, u Updater) error
}

// Resumer is implemented by executors with a distinct entry point for
// continuing a previously interrupted attempt.
type Resumer interface {
	Resume(ctx context.Context, u Updater) error
}

// Stopper is implemented by executors that want to be told about a stop
// request. Stop is called from another goroutine and must not block.
type Stopper interface {
	Stop(snapshot core.Status, rc jobctx.RunContext)
}

// Func adapts a plain function to Executor.
type Func func(ctx context.Context, u Updater) error

// Execute calls f(ctx, u).
func (f Func) Execute(ctx context.Context, u Updater) error {
	return f(ctx, u)
}

// Node is one job in a tree. Nodes are immutable once constructed.
type Node struct {
	id             string
	kind           Kind
	exec           Executor
	children       []*Node
	maxConcurrency int
}

// Leaf creates a leaf job running exec.
func Leaf(id string, exec Executor) *Node {
	return &Node{id: id, kind: KindLeaf, exec: exec}
}

// Sync creates a group running children strictly in order.
func Sync(id string, children ...*Node) *Node {
	return &Node{id: id, kind: KindSync, children: append([]*Node(nil), children...)}
}

// Async creates a group running children concurrently on at most
// maxConcurrency workers. A non-positive maxConcurrency means one worker per
// child.
func Async(id string, maxConcurrency int, children ...*Node) *Node {
	return &Node{
		id:             id,
		kind:           KindAsync,
		children:       append([]*Node(nil), children...),
		maxConcurrency: security.ClampConcurrency(maxConcurrency, len(children)),
	}
}

func (n *Node) ID() string { return n.id }

func (n *Node) Kind() Kind { return n.kind }

// Executor returns the body of a leaf, or nil for groups.
func (n *Node) Executor() Executor { return n.exec }

// IsGroup reports whether n is a Sync or Async group.
func (n *Node) IsGroup() bool { return n.kind != KindLeaf }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// Len returns the number of children.
func (n *Node) Len() int { return len(n.children) }

// Child returns the i-th child.
func (n *Node) Child(i int) *Node { return n.children[i] }

// MaxConcurrency returns the worker count of an async group, 1 for a sync
// group and 0 for a leaf.
func (n *Node) MaxConcurrency() int {
	switch n.kind {
	case KindAsync:
		return n.maxConcurrency
	case KindSync:
		return 1
	}
	return 0
}

// Resumable reports whether the leaf body has a dedicated resume path.
func (n *Node) Resumable() bool {
	_, ok := n.exec.(Resumer)
	return ok
}

// Stoppable reports whether the leaf body accepts stop callbacks.
func (n *Node) Stoppable() bool {
	_, ok := n.exec.(Stopper)
	return ok
}
