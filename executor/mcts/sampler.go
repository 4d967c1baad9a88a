package mcts

import (
	"math"
	"math/rand/v2"

	"github.com/brensch/gomoku/game"
)

// ChooseMove picks a move at the root of t from the visit distribution
//
//	pi[a] = N_a^(1/T) / sum_b N_b^(1/T)
//
// and returns the move, its child and pi over all cells of the board. The
// distribution is computed in log space. If no child has been visited the
// priors are used instead. A temperature <= 0 gives a one-hot pi on the argmax.
func ChooseMove(t *Tree, cells int, temperature float64, strategy Strategy, rng *rand.Rand) (game.Action, NodeID, []float32, error) {
	root := t.Root()
	if !t.IsExpanded(root) || t.IsLeaf(root) {
		return game.NoAction, nilNode, nil, ErrNoLegalMoves
	}

	actions := t.Actions(root)
	children := t.Children(root)

	weights := make([]float64, len(children))
	total := 0
	for i, c := range children {
		n := t.Visits(c)
		weights[i] = float64(n)
		total += n
	}
	if total == 0 {
		for i, c := range children {
			weights[i] = float64(t.Prior(c))
		}
	}

	best := 0
	for i := range weights {
		if weights[i] > weights[best] {
			best = i
		}
	}

	pi := make([]float32, cells)
	if temperature <= 0 || weights[best] <= 0 {
		pi[actions[best]] = 1
		return actions[best], children[best], pi, nil
	}

	// exp((ln w - ln w_max) / T) keeps the largest term at 1.
	logMax := math.Log(weights[best])
	probs := make([]float64, len(weights))
	var sum float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		probs[i] = math.Exp((math.Log(w) - logMax) / temperature)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
		pi[actions[i]] = float32(probs[i])
	}

	if strategy == Deterministic {
		return actions[best], children[best], pi, nil
	}

	r := rng.Float64()
	var cumulative float64
	pick := best
	for i, p := range probs {
		if p == 0 {
			continue
		}
		cumulative += p
		pick = i
		if r < cumulative {
			break
		}
	}
	return actions[pick], children[pick], pi, nil
}
