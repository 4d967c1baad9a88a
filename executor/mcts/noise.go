package mcts

import (
	"math/rand/v2"

	"github.com/brensch/gomoku/game"
	"gonum.org/v1/gonum/stat/distmv"
)

// mixNoise blends Dirichlet noise into normalised priors in place:
// p' = (1-eps)*p + eps*eta. The result still sums to 1.
func mixNoise(priors []float32, alpha, eps float64, src rand.Source) {
	if len(priors) < 2 || eps == 0 {
		return
	}
	alphas := make([]float64, len(priors))
	for i := range alphas {
		alphas[i] = alpha
	}
	eta := distmv.NewDirichlet(alphas, src).Rand(nil)
	for i := range priors {
		priors[i] = float32((1-eps)*float64(priors[i]) + eps*eta[i])
	}
}

// normalizePriors restricts a full-board policy to actions and renormalises.
// A policy with no mass on any legal action falls back to uniform.
func normalizePriors(policy []float32, actions []game.Action) []float32 {
	priors := make([]float32, len(actions))
	var sum float32
	for i, a := range actions {
		p := policy[a]
		if p < 0 || p != p {
			p = 0
		}
		priors[i] = p
		sum += p
	}
	if sum <= 0 {
		u := 1 / float32(len(actions))
		for i := range priors {
			priors[i] = u
		}
		return priors
	}
	inv := 1 / sum
	for i := range priors {
		priors[i] *= inv
	}
	return priors
}
