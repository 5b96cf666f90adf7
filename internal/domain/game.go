package domain

import "errors"

// Cell represents a board cell state.
type Cell uint8

const (
	Empty Cell = iota
	X
	O
)

// Size is the board edge length.
const Size = 3

// NoMove marks the initial history entry, which fills no cell.
const NoMove = -1

// Board is a fixed 3x3 board stored row-major.
type Board [Size * Size]Cell

// Errors returned by state operations. The receiver state is always returned
// unchanged alongside them.
var (
	ErrOutOfBounds    = errors.New("out of bounds")
	ErrOccupied       = errors.New("cell occupied")
	ErrGameOver       = errors.New("game over")
	ErrStepOutOfRange = errors.New("step out of range")
	ErrInvalidCell    = errors.New("invalid cell value")
)

var lines = [8][3]int{
	// rows
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	// cols
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	// diags
	{0, 4, 8}, {2, 4, 6},
}

func (c Cell) String() string {
	switch c {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return ""
	}
}

func (c Cell) MarshalText() ([]byte, error) {
	if c > O {
		return nil, ErrInvalidCell
	}
	return []byte(c.String()), nil
}

func (c *Cell) UnmarshalText(b []byte) error {
	switch string(b) {
	case "":
		*c = Empty
	case "X":
		*c = X
	case "O":
		*c = O
	default:
		return ErrInvalidCell
	}
	return nil
}

// DetectWinner returns the first winning line on b in row, column, diagonal
// order, or nil when there is none.
func DetectWinner(b Board) []int {
	for _, ln := range lines {
		a := b[ln[0]]
		if a != Empty && a == b[ln[1]] && a == b[ln[2]] {
			return []int{ln[0], ln[1], ln[2]}
		}
	}
	return nil
}

// Winner returns the mark holding a winning line, or Empty.
func (b Board) Winner() Cell {
	if w := DetectWinner(b); w != nil {
		return b[w[0]]
	}
	return Empty
}

// RowCol splits a cell index into its row and column.
func RowCol(idx int) (row, col int) {
	return idx / Size, idx % Size
}
