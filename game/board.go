package game

import (
	"fmt"
	"strings"
)

// Render draws the board top-to-bottom: 'X' black, 'O' white, '.' empty.
// The last move is shown in lower case.
func (s *State) Render() string {
	var b strings.Builder
	last := s.LastMove()
	for row := 0; row < s.Size; row++ {
		for col := 0; col < s.Size; col++ {
			if col > 0 {
				b.WriteByte(' ')
			}
			a := Action(row*s.Size + col)
			switch s.Cells[a] {
			case Black:
				if a == last {
					b.WriteByte('x')
				} else {
					b.WriteByte('X')
				}
			case White:
				if a == last {
					b.WriteByte('o')
				} else {
					b.WriteByte('O')
				}
			default:
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseBoard builds a state from rows of 'X', 'O' and '.' characters
// (whitespace ignored). The history lists black stones and white stones
// interleaved in reading order, so it is only meaningful for the stone
// counts; ToMove is Black when the counts are equal, otherwise White.
func ParseBoard(rows ...string) (*State, error) {
	size := len(rows)
	if size == 0 {
		return nil, fmt.Errorf("empty board")
	}
	s := NewState(size)
	var blacks, whites []Action
	for r, row := range rows {
		cells := strings.Join(strings.Fields(row), "")
		if len(cells) != size {
			return nil, fmt.Errorf("row %d has %d cells, want %d", r, len(cells), size)
		}
		for c, ch := range cells {
			a := Action(r*size + c)
			switch ch {
			case 'X', 'x':
				s.Cells[a] = Black
				blacks = append(blacks, a)
			case 'O', 'o':
				s.Cells[a] = White
				whites = append(whites, a)
			case '.':
			default:
				return nil, fmt.Errorf("row %d: unexpected %q", r, ch)
			}
		}
	}
	if len(blacks) != len(whites) && len(blacks) != len(whites)+1 {
		return nil, fmt.Errorf("stone counts black=%d white=%d cannot alternate", len(blacks), len(whites))
	}

	for i := range blacks {
		s.History = append(s.History, Move{Action: blacks[i], Player: Black})
		if i < len(whites) {
			s.History = append(s.History, Move{Action: whites[i], Player: White})
		}
	}
	s.ToMove = Black
	if len(blacks) > len(whites) {
		s.ToMove = White
	}
	return s, nil
}
