package mcts

import (
	"math"

	"github.com/brensch/gomoku/game"
)

// score is the PUCT value of a child:
//
//	U(s,a) = Q(s,a) + C_puct * P(s,a) * sqrt(N(s)) / (1 + N(s,a))
//
// Q is stored from the perspective of the player choosing at s, so no sign
// flip is needed here.
func score(q, prior float32, parentVisits, childVisits int, cpuct float32) float64 {
	sqrtN := math.Sqrt(float64(parentVisits))
	return float64(q) + float64(cpuct)*float64(prior)*sqrtN/(1+float64(childVisits))
}

// selectChild returns the child of id with the highest PUCT score. Ties go to
// the first child in action order. id must have children.
func (t *Tree) selectChild(id NodeID, cpuct float32) (game.Action, NodeID) {
	n := &t.nodes[id]
	parentVisits := int(n.visits)

	best := 0
	bestScore := math.Inf(-1)
	for i, c := range n.children {
		child := &t.nodes[c]
		s := score(child.value, child.prior, parentVisits, int(child.visits), cpuct)
		if s > bestScore {
			bestScore = s
			best = i
		}
	}
	return n.actions[best], n.children[best]
}
