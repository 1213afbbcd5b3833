// Package index reads and writes the status index, a JSON snapshot of a
// suite's job tree.
//
// The index lets external tooling answer "what is this suite doing" without
// opening individual status records. The shutdown protocol also reads it to
// check that a suite is running before signalling it.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/internal/fsutil"
	"github.com/jdziat/jobsuite/pkg/job"
)

// Ext is the file extension of status indexes.
const Ext = ".json"

// Node mirrors one job of the tree.
type Node struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	State         core.State      `json:"state"`
	Progress      float64         `json:"progress"`
	Note          string          `json:"note,omitempty"`
	StartTime     *time.Time      `json:"startTime,omitempty"`
	EndTime       *time.Time      `json:"endTime,omitempty"`
	LastActivity  *time.Time      `json:"lastActivity,omitempty"`
	StopRequested bool            `json:"stopRequested"`
	Error         string          `json:"error,omitempty"`
	Attempt       int             `json:"attempt"`
	Properties    core.Properties `json:"properties"`
	Children      []*Node         `json:"children,omitempty"`
}

// Snapshot is the whole index document.
type Snapshot struct {
	Namespace string     `json:"namespace"`
	RunID     string     `json:"runId"`
	PID       int        `json:"pid"`
	Host      string     `json:"host"`
	State     core.State `json:"state"`
	StartTime time.Time  `json:"startTime"`
	Updated   time.Time  `json:"updated"`
	Root      *Node      `json:"root"`
}

// DefaultPath returns the conventional index location for namespace.
func DefaultPath(dir, namespace string) string {
	return filepath.Join(dir, namespace+Ext)
}

// Build mirrors the tree rooted at root. lookup returns the status of a job
// id; a nil result is shown as IDLE.
func Build(root *job.Node, lookup func(id string) *core.Status) *Node {
	if root == nil {
		return nil
	}
	n := FromStatus(root.ID(), root.Kind(), lookup(root.ID()))
	for _, c := range root.Children() {
		n.Children = append(n.Children, Build(c, lookup))
	}
	return n
}

// FromStatus renders one node without children.
func FromStatus(id string, kind job.Kind, s *core.Status) *Node {
	n := &Node{ID: id, Kind: kind.String(), State: core.StateIdle, Attempt: 1}
	if s == nil {
		return n
	}
	n.State = s.State
	n.Progress = s.Progress
	n.Note = s.Note
	n.StartTime = timePtr(s.StartTime)
	n.EndTime = timePtr(s.EndTime)
	n.LastActivity = timePtr(s.LastActivity)
	n.StopRequested = s.StopRequested
	n.Error = s.Error
	n.Attempt = s.Attempt()
	n.Properties = s.Properties.Clone()
	return n
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Walk visits the tree in pre-order with each node's depth.
func (s *Snapshot) Walk(fn func(n *Node, depth int)) {
	if s == nil || s.Root == nil {
		return
	}
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	visit(s.Root, 0)
}

// Find returns the node with id, or nil.
func (s *Snapshot) Find(id string) *Node {
	var found *Node
	s.Walk(func(n *Node, _ int) {
		if found == nil && n.ID == id {
			found = n
		}
	})
	return found
}

// OwnerAlive reports whether the process that wrote s may still be running.
// An owner on another host cannot be checked and counts as alive.
func (s *Snapshot) OwnerAlive() bool {
	if host, _ := os.Hostname(); s.Host != host {
		return true
	}
	return fsutil.ProcessAlive(s.PID)
}

// Write stores s at path atomically.
func Write(path string, s *Snapshot) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status index: %w", err)
	}
	b = append(b, '\n')
	if err := fsutil.WriteAtomic(path, b, 0o644); err != nil {
		return fmt.Errorf("write status index: %w", err)
	}
	return nil
}

// Read loads the index at path. Every failure wraps core.ErrInvalidIndex.
func Read(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidIndex, err)
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", core.ErrInvalidIndex, path, err)
	}
	if s.Namespace == "" || s.Root == nil {
		return nil, fmt.Errorf("%w: %s is not a status index", core.ErrInvalidIndex, path)
	}
	return &s, nil
}
