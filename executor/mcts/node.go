package mcts

import (
	"fmt"

	"github.com/brensch/gomoku/game"
)

// NodeID addresses a node inside a Tree. IDs are only stable until the next
// Promote or Reset.
type NodeID int32

const nilNode NodeID = -1

// node is one position in the tree, reached by a specific move sequence from
// the root. parent is a plain index, not an ownership edge: the Tree owns
// every node.
type node struct {
	parent NodeID
	prior  float32
	visits int32
	// value is the running mean of the values folded into this node, from the
	// perspective of the player who moved into it (the parent's toMove).
	value  float32
	toMove game.Player

	// expanded separates an unexpanded leaf from a node whose expansion
	// produced no children (full board).
	expanded bool
	actions  []game.Action
	children []NodeID
}

// Tree is an arena of nodes with a single root.
type Tree struct {
	nodes []node
	root  NodeID
}

// NewTree returns a tree holding a fresh root for a position where toMove acts.
func NewTree(toMove game.Player) *Tree {
	t := &Tree{}
	t.Reset(toMove)
	return t
}

// Reset discards every node and starts over from a fresh root.
func (t *Tree) Reset(toMove game.Player) {
	clear(t.nodes)
	t.nodes = t.nodes[:0]
	t.root = t.newNode(nilNode, 1, toMove)
}

func (t *Tree) newNode(parent NodeID, prior float32, toMove game.Player) NodeID {
	t.nodes = append(t.nodes, node{
		parent: parent,
		prior:  prior,
		toMove: toMove,
	})
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) Root() NodeID { return t.root }

// Len is the number of live nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// IsLeaf reports whether the node has no children, either because it was
// never expanded or because it has no legal moves.
func (t *Tree) IsLeaf(id NodeID) bool { return len(t.nodes[id].children) == 0 }

func (t *Tree) IsExpanded(id NodeID) bool { return t.nodes[id].expanded }

func (t *Tree) Visits(id NodeID) int { return int(t.nodes[id].visits) }

// Value is the mean backed-up value from the perspective of the player who
// made the move into id.
func (t *Tree) Value(id NodeID) float32 { return t.nodes[id].value }

func (t *Tree) Prior(id NodeID) float32 { return t.nodes[id].prior }

func (t *Tree) ToMove(id NodeID) game.Player { return t.nodes[id].toMove }

// Parent returns the parent id, or -1 for the root.
func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].parent }

func (t *Tree) Actions(id NodeID) []game.Action { return t.nodes[id].actions }

func (t *Tree) Children(id NodeID) []NodeID { return t.nodes[id].children }

func (t *Tree) IsRoot(id NodeID) bool { return t.nodes[id].parent == nilNode }

// Child looks up the child reached by action.
func (t *Tree) Child(id NodeID, action game.Action) (NodeID, bool) {
	n := &t.nodes[id]
	for i, a := range n.actions {
		if a == action {
			return n.children[i], true
		}
	}
	return nilNode, false
}

// Depth is the number of edges between id and the root.
func (t *Tree) Depth(id NodeID) int {
	d := 0
	for p := t.nodes[id].parent; p != nilNode; p = t.nodes[p].parent {
		d++
	}
	return d
}

// Expand allocates one child per action in a single step, each with the
// opposite player to move and prior priors[i]. An empty action list is valid
// and leaves the node permanently terminal.
func (t *Tree) Expand(id NodeID, actions []game.Action, priors []float32) error {
	if t.nodes[id].expanded || len(t.nodes[id].children) > 0 {
		return &AlreadyExpandedError{Node: id, Depth: t.Depth(id)}
	}
	if len(actions) != len(priors) {
		return fmt.Errorf("expand node %d: %d actions but %d priors", id, len(actions), len(priors))
	}
	for i, p := range priors {
		if p < 0 {
			return fmt.Errorf("expand node %d: negative prior %f for action %d", id, p, actions[i])
		}
	}

	next := t.nodes[id].toMove.Opponent()
	children := make([]NodeID, len(actions))
	for i := range actions {
		children[i] = t.newNode(id, priors[i], next)
	}

	// newNode may have moved the arena; index again.
	n := &t.nodes[id]
	n.actions = append([]game.Action(nil), actions...)
	n.children = children
	n.expanded = true
	return nil
}

// record folds one backed-up value into the node's running mean and counts
// the visit. The mean uses the pre-increment visit count.
func (t *Tree) record(id NodeID, v float32) {
	n := &t.nodes[id]
	n.value = (n.value*float32(n.visits) + v) / float32(n.visits+1)
	n.visits++
}

// Promote makes id the new root: its parent link is severed and every node
// outside its subtree is released. Surviving nodes are renumbered; statistics
// are preserved.
func (t *Tree) Promote(id NodeID) {
	if id == t.root {
		t.nodes[id].parent = nilNode
		return
	}

	nodes := make([]node, 0, t.subtreeSizeHint(id))
	top := t.nodes[id]
	top.parent = nilNode
	nodes = append(nodes, top)

	for i := 0; i < len(nodes); i++ {
		old := nodes[i].children
		if len(old) == 0 {
			continue
		}
		kids := make([]NodeID, len(old))
		for j, oldID := range old {
			c := t.nodes[oldID]
			c.parent = NodeID(i)
			kids[j] = NodeID(len(nodes))
			nodes = append(nodes, c)
		}
		nodes[i].children = kids
	}

	t.nodes = nodes
	t.root = 0
}

// subtreeSizeHint bounds the allocation for Promote without walking the subtree.
func (t *Tree) subtreeSizeHint(id NodeID) int {
	n := int(t.nodes[id].visits)*2 + len(t.nodes[id].children) + 1
	if n > len(t.nodes) {
		n = len(t.nodes)
	}
	return n
}
