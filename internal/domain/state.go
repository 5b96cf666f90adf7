package domain

import (
	"encoding/json"
	"fmt"
)

// HistoryEntry is one board snapshot plus the cell filled to reach it.
type HistoryEntry struct {
	Board    Board `json:"board"`
	LastMove int   `json:"last_move"`
}

// HasMove reports whether the entry was produced by a move.
func (e HistoryEntry) HasMove() bool { return e.LastMove != NoMove }

// State is the full game: history, the selected step and the move-list order.
// Values are immutable; every operation returns a new State.
type State struct {
	history   []HistoryEntry
	step      int
	ascending bool
}

// New returns a game at its start with X to move.
func New() State {
	return State{
		history:   []HistoryEntry{{LastMove: NoMove}},
		ascending: true,
	}
}

// ApplyMove plays the active mark at cell. Moves after a jump back discard
// the history beyond the current step.
func (s State) ApplyMove(cell int) (State, error) {
	if cell < 0 || cell >= len(Board{}) {
		return s, ErrOutOfBounds
	}
	board := s.CurrentBoard()
	if DetectWinner(board) != nil {
		return s, ErrGameOver
	}
	if board[cell] != Empty {
		return s, ErrOccupied
	}
	board[cell] = s.Turn()

	history := make([]HistoryEntry, s.step+2)
	copy(history, s.history[:s.step+1])
	history[s.step+1] = HistoryEntry{Board: board, LastMove: cell}

	return State{history: history, step: s.step + 1, ascending: s.ascending}, nil
}

// JumpTo selects a past (or previously abandoned future) step without
// modifying history.
func (s State) JumpTo(step int) (State, error) {
	if step < 0 || step >= len(s.history) {
		return s, ErrStepOutOfRange
	}
	s.step = step
	return s, nil
}

// ToggleSort flips the move-list display order.
func (s State) ToggleSort() State {
	s.ascending = !s.ascending
	return s
}

// Step is the index of the selected history entry.
func (s State) Step() int { return s.step }

// Len is the number of history entries.
func (s State) Len() int { return len(s.history) }

// Ascending reports the move-list order.
func (s State) Ascending() bool { return s.ascending }

// Entry returns the history entry at i.
func (s State) Entry(i int) (HistoryEntry, bool) {
	if i < 0 || i >= len(s.history) {
		return HistoryEntry{}, false
	}
	return s.history[i], true
}

// History returns a copy of the history.
func (s State) History() []HistoryEntry {
	return append([]HistoryEntry(nil), s.history...)
}

// Turn is the mark to play next: X on even steps, O on odd ones.
func (s State) Turn() Cell {
	if s.step%2 == 0 {
		return X
	}
	return O
}

func (s State) CurrentBoard() Board { return s.history[s.step].Board }

func (s State) WinningCells() []int { return DetectWinner(s.CurrentBoard()) }

// Status is the line shown above the move list.
func (s State) Status() string {
	board := s.CurrentBoard()
	if w := DetectWinner(board); w != nil {
		return "Winner: " + board[w[0]].String()
	}
	return "Next player: " + s.Turn().String()
}

// SortLabel names the current move-list order.
func (s State) SortLabel() string {
	if s.ascending {
		return "asc"
	}
	return "desc"
}

// Move is one line of the rendered move list.
type Move struct {
	Step     int
	Label    string
	Selected bool
}

// Moves lists every history entry in display order.
func (s State) Moves() []Move {
	out := make([]Move, len(s.history))
	for i, e := range s.history {
		m := Move{Step: i, Label: "Go to game start", Selected: i == s.step}
		if i > 0 {
			row, col := RowCol(e.LastMove)
			m.Label = fmt.Sprintf("Go to move #%d (%d,%d)", i, col, row)
		}
		if s.ascending {
			out[i] = m
		} else {
			out[len(out)-1-i] = m
		}
	}
	return out
}

type stateJSON struct {
	History   []HistoryEntry `json:"history"`
	Step      int            `json:"step"`
	Ascending bool           `json:"ascending"`
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{History: s.history, Step: s.step, Ascending: s.ascending})
}

// UnmarshalJSON decodes and validates a stored state.
func (s *State) UnmarshalJSON(b []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.History) == 0 {
		return fmt.Errorf("decode state: empty history")
	}
	if raw.History[0].LastMove != NoMove {
		return fmt.Errorf("decode state: first entry has a move")
	}
	for i, e := range raw.History[1:] {
		if e.LastMove < 0 || e.LastMove >= len(Board{}) {
			return fmt.Errorf("decode state: entry %d: %w", i+1, ErrOutOfBounds)
		}
	}
	if raw.Step < 0 || raw.Step >= len(raw.History) {
		return fmt.Errorf("decode state: %w", ErrStepOutOfRange)
	}
	*s = State{history: raw.History, step: raw.Step, ascending: raw.Ascending}
	return nil
}
