package server

import (
	"errors"
	"fmt"
	"sort"

	"github.com/qaboard/qaboard/pkg/protocol"
)

// ErrParentNotFound indicates a reply named a parent id that does not
// exist in the tree. The tree is never mutated in that case.
var ErrParentNotFound = errors.New("parent message not found")

// MessageNode is one posted item in a topic's thread. Immutable once
// created; the author handle is captured at post time, not a live
// reference to the session.
type MessageNode struct {
	ID       int64
	Author   string
	Text     string
	ParentID int64
	TopicID  int64
	PostTime int64 // milliseconds since epoch
}

// MessageTree holds the threaded messages of one topic as a forest:
// root ids in display order, per-node child ids in arrival order, and a
// node lookup map. Nodes can only reference an already-existing parent
// (or the root sentinel), so cycles are impossible by construction.
type MessageTree struct {
	rootNodes []int64
	children  map[int64][]int64
	nodes     map[int64]*MessageNode
}

// NewMessageTree creates an empty tree.
func NewMessageTree() *MessageTree {
	return &MessageTree{
		rootNodes: make([]int64, 0),
		children:  make(map[int64][]int64),
		nodes:     make(map[int64]*MessageNode),
	}
}

// AddNode inserts a node into the tree. The node's parent must be the
// root sentinel or an id already present in the tree; anything else is a
// referential error and leaves the tree untouched.
func (t *MessageTree) AddNode(node *MessageNode) error {
	if node.ParentID == protocol.RootParentID {
		t.rootNodes = append(t.rootNodes, node.ID)
	} else {
		if _, ok := t.children[node.ParentID]; !ok {
			return fmt.Errorf("%w: %d", ErrParentNotFound, node.ParentID)
		}
		t.children[node.ParentID] = append(t.children[node.ParentID], node.ID)
	}
	t.children[node.ID] = make([]int64, 0)
	t.nodes[node.ID] = node
	return nil
}

// HasNode reports whether the given message id exists in the tree.
func (t *MessageTree) HasNode(id int64) bool {
	_, ok := t.nodes[id]
	return ok
}

// Len returns the number of nodes in the tree.
func (t *MessageTree) Len() int {
	return len(t.nodes)
}

// MaxID returns the largest message id in the tree, or -1 if empty.
// Used to seed the id allocator after hydration from the store.
func (t *MessageTree) MaxID() int64 {
	max := int64(-1)
	for id := range t.nodes {
		if id > max {
			max = id
		}
	}
	return max
}

// Snapshot returns the full tree in wire form. O(n) in the number of
// nodes; sent wholesale on every join (no delta variant exists).
func (t *MessageTree) Snapshot() protocol.TreeJSON {
	snap := protocol.TreeJSON{
		RootNodes: make([]int64, len(t.rootNodes)),
		Children:  make(map[int64][]int64, len(t.children)),
		Messages:  make(map[int64]protocol.MessageJSON, len(t.nodes)),
	}
	copy(snap.RootNodes, t.rootNodes)
	for id, kids := range t.children {
		list := make([]int64, len(kids))
		copy(list, kids)
		snap.Children[id] = list
	}
	for id, node := range t.nodes {
		snap.Messages[id] = protocol.MessageJSON{
			User:     node.Author,
			Message:  node.Text,
			ID:       node.ID,
			ParentID: node.ParentID,
			PostTime: node.PostTime,
		}
	}
	return snap
}

// Hydrate rebuilds the tree from stored nodes. Nodes are inserted in id
// order so every parent exists before its children; a node whose parent
// is missing from the batch is skipped rather than silently rooted.
func (t *MessageTree) Hydrate(nodes []*MessageNode) error {
	sorted := make([]*MessageNode, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var firstErr error
	for _, node := range sorted {
		if err := t.AddNode(node); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IDAllocator issues monotonically increasing ids. Each registry owns
// its own allocator, so tests can run with isolated counters. Not safe
// for concurrent use; all allocation happens on the event loop.
type IDAllocator struct {
	next int64
}

// NewIDAllocator returns an allocator whose first id is 0.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// Next returns the next id.
func (a *IDAllocator) Next() int64 {
	id := a.next
	a.next++
	return id
}

// Reserve ensures all future ids are strictly greater than id.
func (a *IDAllocator) Reserve(id int64) {
	if id >= a.next {
		a.next = id + 1
	}
}
