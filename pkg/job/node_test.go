package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/jobctx"
)

func noop() Func {
	return func(context.Context, Updater) error { return nil }
}

type resumableStopper struct{ stopped bool }

func (r *resumableStopper) Execute(context.Context, Updater) error { return nil }
func (r *resumableStopper) Resume(context.Context, Updater) error { return nil }
func (r *resumableStopper) Stop(core.Status, jobctx.RunContext) { r.stopped = true }

func TestKind_String(t *testing.T) {
	assert.Equal(t, "leaf", KindLeaf.String())
	assert.Equal(t, "sync", KindSync.String())
	assert.Equal(t, "async", KindAsync.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestLeaf(t *testing.T) {
	n := Leaf("extract", noop())

	assert.Equal(t, "extract", n.ID())
	assert.Equal(t, KindLeaf, n.Kind())
	assert.False(t, n.IsGroup())
	assert.NotNil(t, n.Executor())
	assert.Equal(t, 0, n.MaxConcurrency())
	assert.False(t, n.Resumable())
	assert.False(t, n.Stoppable())
}

func TestLeaf_Capabilities(t *testing.T) {
	n := Leaf("load", &resumableStopper{})

	assert.True(t, n.Resumable())
	assert.True(t, n.Stoppable())
}

func TestSync_ChildrenAreCopied(t *testing.T) {
	a, b := Leaf("a", noop()), Leaf("b", noop())
	children := []*Node{a, b}
	g := Sync("g", children...)

	children[0] = Leaf("x", noop())
	got := g.Children()
	got[1] = nil

	assert.Equal(t, KindSync, g.Kind())
	assert.True(t, g.IsGroup())
	assert.Equal(t, 2, g.Len())
	assert.Same(t, a, g.Child(0))
	assert.Same(t, b, g.Child(1))
	assert.Equal(t, 1, g.MaxConcurrency())
}

func TestAsync_ClampsConcurrency(t *testing.T) {
	kids := []*Node{Leaf("a", noop()), Leaf("b", noop()), Leaf("c", noop())}

	tests := []struct {
		name string
		max  int
		want int
	}{
		{"zero means one per child", 0, 3},
		{"negative means one per child", -1, 3},
		{"larger than child count", 10, 3},
		{"within bounds", 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Async("g", tt.max, kids...)
			assert.Equal(t, tt.want, g.MaxConcurrency())
		})
	}
}

func TestFunc_Execute(t *testing.T) {
	called := false
	f := Func(func(context.Context, Updater) error {
		called = true
		return nil
	})

	assert.NoError(t, f.Execute(context.Background(), nil))
	assert.True(t, called)
}
