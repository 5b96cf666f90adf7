package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectWinnerNoLine(t *testing.T) {
	boards := []Board{
		{},
		{X, O, X, X, O, O, O, X, X},
		{X, O, Empty, Empty, X, Empty, Empty, Empty, O},
		{X, X, O, O, O, X, X, Empty, Empty},
	}
	for _, b := range boards {
		assert.Nil(t, DetectWinner(b), "board %v", b)
		assert.Equal(t, Empty, b.Winner())
	}
}

func TestDetectWinnerEachLine(t *testing.T) {
	for _, mark := range []Cell{X, O} {
		for _, ln := range lines {
			var b Board
			for _, i := range ln {
				b[i] = mark
			}
			require.Equal(t, []int{ln[0], ln[1], ln[2]}, DetectWinner(b))
			require.Equal(t, mark, b.Winner())
		}
	}
}

func TestDetectWinnerFirstLineWins(t *testing.T) {
	// top row and left column both complete
	b := Board{X, X, X, X, O, O, X, O, O}
	assert.Equal(t, []int{0, 1, 2}, DetectWinner(b))

	// only the anti-diagonal
	b = Board{O, X, O, Empty, O, Empty, O, X, X}
	assert.Equal(t, []int{2, 4, 6}, DetectWinner(b))
}

func TestDetectWinnerIgnoresEmptyLines(t *testing.T) {
	b := Board{Empty, Empty, Empty, X, O, X, O, X, O}
	assert.Nil(t, DetectWinner(b))
}

func TestCellText(t *testing.T) {
	for _, c := range []Cell{Empty, X, O} {
		b, err := c.MarshalText()
		require.NoError(t, err)
		var back Cell
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, c, back)
	}
	var c Cell
	assert.ErrorIs(t, c.UnmarshalText([]byte("Z")), ErrInvalidCell)
	_, err := Cell(7).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidCell)
}

func TestRowCol(t *testing.T) {
	row, col := RowCol(5)
	assert.Equal(t, 1, row)
	assert.Equal(t, 2, col)
	row, col = RowCol(6)
	assert.Equal(t, 2, row)
	assert.Equal(t, 0, col)
}
