// Package convert encodes board states into the float planes consumed by the
// policy/value oracle.
package convert

import (
	"sync"

	"github.com/brensch/gomoku/game"
)

// DefaultHistory is the number of positions (current + previous) encoded per player.
const DefaultHistory = 2

// Channel layout for history H (2H+2 total), all from the side to move:
//
//	0 .. H-1:   own stones, now and 1..H-1 plies ago
//	H .. 2H-1:  opponent stones, now and 1..H-1 plies ago
//	2H:         last move (single 1.0)
//	2H+1:       colour plane (all 1.0 when Black is to move)
func Channels(history int) int {
	return 2*history + 2
}

// Encoder turns states of one board size into pooled float32 planes.
type Encoder struct {
	Size    int
	History int

	pool sync.Pool
}

func NewEncoder(size, history int) *Encoder {
	if history <= 0 {
		history = DefaultHistory
	}
	e := &Encoder{Size: size, History: history}
	floats := e.FloatSize()
	e.pool.New = func() interface{} {
		b := make([]float32, floats)
		return &b
	}
	return e
}

// Channels is the number of planes this encoder emits.
func (e *Encoder) Channels() int {
	return Channels(e.History)
}

// FloatSize is the length of one encoded state: [Channels, Size, Size].
func (e *Encoder) FloatSize() int {
	return e.Channels() * e.Size * e.Size
}

// GetBuffer returns a zeroed buffer from the pool.
func (e *Encoder) GetBuffer() *[]float32 {
	b := e.pool.Get().(*[]float32)
	clear(*b)
	return b
}

// PutBuffer returns a buffer to the pool.
func (e *Encoder) PutBuffer(b *[]float32) {
	e.pool.Put(b)
}

// Encode writes the planes for state into a pooled buffer.
// Output shape: [Channels, Size, Size] (C, H, W).
// Caller must return the buffer with PutBuffer.
func (e *Encoder) Encode(state *game.State) *[]float32 {
	dataPtr := e.GetBuffer()
	EncodeInto(*dataPtr, state, e.History)
	return dataPtr
}

// EncodeInto writes the planes for state into dst, which must hold
// Channels(history)*Size*Size floats and be zeroed.
func EncodeInto(dst []float32, state *game.State, history int) {
	cells := state.NumCells()
	me := state.ToMove
	opp := me.Opponent()

	for i, c := range state.Cells {
		switch c {
		case me:
			dst[i] = 1
		case opp:
			dst[history*cells+i] = 1
		}
	}

	// Older positions: undo the most recent moves one at a time.
	for h := 1; h < history; h++ {
		ownBase := h * cells
		oppBase := (history + h) * cells
		copy(dst[ownBase:ownBase+cells], dst[(h-1)*cells:h*cells])
		copy(dst[oppBase:oppBase+cells], dst[(history+h-1)*cells:(history+h)*cells])

		idx := len(state.History) - h
		if idx < 0 {
			continue
		}
		undo := state.History[idx]
		if undo.Player == me {
			dst[ownBase+int(undo.Action)] = 0
		} else {
			dst[oppBase+int(undo.Action)] = 0
		}
	}

	if last := state.LastMove(); last != game.NoAction {
		dst[2*history*cells+int(last)] = 1
	}

	if me == game.Black {
		colour := dst[(2*history+1)*cells : (2*history+2)*cells]
		for i := range colour {
			colour[i] = 1
		}
	}
}
