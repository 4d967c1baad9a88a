package mcts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brensch/gomoku/game"
)

// Prediction is the oracle's output for one position. Policy covers every
// board cell (Size*Size entries, including illegal ones) and Value is in
// [-1, 1] from the perspective of the player to move.
type Prediction struct {
	Policy []float32
	Value  float32
}

// Predictor evaluates positions.
type Predictor interface {
	Predict(ctx context.Context, state *game.State) (Prediction, error)
}

// GameRules is the subset of the game rules the search needs.
type GameRules interface {
	LegalActions(state *game.State) []game.Action
	ApplyMove(state *game.State, action game.Action, player game.Player) (*game.State, error)
	IsWinningMove(state *game.State, action game.Action) bool
}

// Strategy selects how the final move is drawn from the visit distribution.
type Strategy int

const (
	Stochastic Strategy = iota
	Deterministic
)

func (s Strategy) String() string {
	switch s {
	case Stochastic:
		return "stochastic"
	case Deterministic:
		return "deterministic"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stochastic", "sample":
		return Stochastic, nil
	case "deterministic", "argmax", "greedy":
		return Deterministic, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", s)
	}
}

type Config struct {
	// Cpuct weights the exploration term of the PUCT score.
	Cpuct float32
	// Simulations per move.
	Simulations int
	// Temperature for the visit distribution. <= 0 means argmax.
	Temperature float64
	Strategy    Strategy
	// StrategyChangePly switches to Deterministic from this ply on. 0 disables.
	StrategyChangePly int

	// AddNoise mixes Dirichlet(DirichletAlpha) noise into the priors of
	// every newly expanded node with weight NoiseEps.
	AddNoise       bool
	DirichletAlpha float64
	NoiseEps       float64

	// MoveTime caps the wall time of one ChooseMove. 0 means unlimited.
	MoveTime time.Duration

	// Seed for the search RNG. 0 picks a random seed.
	Seed uint64
}

func DefaultConfig() Config {
	return Config{
		Cpuct:             5,
		Simulations:       400,
		Temperature:       1,
		Strategy:          Stochastic,
		StrategyChangePly: 10,
		DirichletAlpha:    0.3,
		NoiseEps:          0.25,
	}
}

func (c Config) Validate() error {
	if c.Cpuct < 0 {
		return fmt.Errorf("cpuct must be non-negative, got %f", c.Cpuct)
	}
	if c.Simulations < 1 {
		return fmt.Errorf("simulations must be at least 1, got %d", c.Simulations)
	}
	if c.Strategy != Stochastic && c.Strategy != Deterministic {
		return fmt.Errorf("invalid strategy %d", int(c.Strategy))
	}
	if c.AddNoise {
		if c.DirichletAlpha <= 0 {
			return fmt.Errorf("dirichlet alpha must be positive, got %f", c.DirichletAlpha)
		}
		if c.NoiseEps < 0 || c.NoiseEps > 1 {
			return fmt.Errorf("noise eps must be in [0, 1], got %f", c.NoiseEps)
		}
	}
	if c.MoveTime < 0 {
		return fmt.Errorf("move time must be non-negative, got %s", c.MoveTime)
	}
	return nil
}

// strategyAt returns the strategy in effect for a move at ply.
func (c Config) strategyAt(ply int) Strategy {
	if c.StrategyChangePly > 0 && ply >= c.StrategyChangePly {
		return Deterministic
	}
	return c.Strategy
}
