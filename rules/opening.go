package rules

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"

	"github.com/brensch/gomoku/game"
)

// OpeningSettings controls randomized openings for self-play diversity:
// - Stones: number of stones placed before search takes over (alternating, Black first)
// - Radius: stones land within this Chebyshev distance of the centre (0 = whole board)
//
// A winning opening is never produced; placements that would complete a line
// are skipped.
type OpeningSettings struct {
	Stones int
	Radius int
}

var DefaultOpeningSettings = OpeningSettings{Stones: 0, Radius: 2}

// ApplyOpening plays settings.Stones random moves onto state and returns the
// resulting position. If rng is nil the placement is a deterministic function
// of the board, which keeps tests reproducible.
func (g Gomoku) ApplyOpening(state *game.State, rng *rand.Rand, settings OpeningSettings) *game.State {
	if state == nil || settings.Stones <= 0 {
		return state
	}
	if rng == nil {
		seed := deterministicU64(state, 0x4F50454E494E4721) // "OPENING!" salt
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}

	center := state.Size / 2
	out := state
	for placed := 0; placed < settings.Stones; placed++ {
		available := make([]game.Action, 0, len(out.Cells))
		for _, a := range g.LegalActions(out) {
			p := a.Point(out.Size)
			if settings.Radius > 0 && (abs(int(p.Row)-center) > settings.Radius || abs(int(p.Col)-center) > settings.Radius) {
				continue
			}
			available = append(available, a)
		}

		var next *game.State
		for len(available) > 0 {
			i := rng.IntN(len(available))
			candidate, err := g.ApplyMove(out, available[i], out.ToMove)
			if err == nil && !g.IsWinningMove(candidate, available[i]) {
				next = candidate
				break
			}
			available[i] = available[len(available)-1]
			available = available[:len(available)-1]
		}
		if next == nil {
			break
		}
		out = next
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func deterministicU64(state *game.State, salt uint64) uint64 {
	h := fnv.New64a()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(state.Size))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], salt)
	_, _ = h.Write(buf[:])
	for _, m := range state.History {
		binary.LittleEndian.PutUint64(buf[:], uint64(uint32(m.Action))|uint64(m.Player)<<32)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
