// Package term plays the game in a terminal with tcell.
package term

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"

	"github.com/jaminalder/timetravel-tic-tac-toe/internal/domain"
)

// Screen layout. The board occupies rows boardTop..boardTop+4; squares are
// three columns wide with a one-column separator.
const (
	boardLeft = 2
	boardTop  = 2
	cellWidth = 4
	statusRow = boardTop + 2*domain.Size
	sortRow   = statusRow + 1
	movesTop  = sortRow + 2
)

const help = "1-9 play  arrows+enter  [ ] history  s sort  q quit"

var (
	styleDefault  = tcell.StyleDefault
	styleWinner   = tcell.StyleDefault.Bold(true).Foreground(tcell.ColorYellow)
	styleSelected = tcell.StyleDefault.Bold(true)
	styleDim      = tcell.StyleDefault.Dim(true)
)

// View holds a local game and draws it on a tcell screen.
type View struct {
	screen tcell.Screen
	log    zerolog.Logger
	state  domain.State
	cursor int
}

// New returns a view of a fresh game.
func New(screen tcell.Screen, log zerolog.Logger) *View {
	return &View{
		screen: screen,
		log:    log.With().Str("component", "term").Logger(),
		state:  domain.New(),
		cursor: len(domain.Board{}) / 2,
	}
}

// State returns the current game.
func (v *View) State() domain.State { return v.state }

// Run draws and handles events until the player quits or the screen is
// finalized.
func (v *View) Run() error {
	for {
		v.Draw()
		ev := v.screen.PollEvent()
		if ev == nil {
			return nil
		}
		if !v.Handle(ev) {
			return nil
		}
	}
}

// Handle applies one event and reports whether the view should keep running.
func (v *View) Handle(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		v.screen.Sync()
	case *tcell.EventKey:
		return v.handleKey(ev)
	case *tcell.EventMouse:
		v.handleMouse(ev)
	}
	return true
}

func (v *View) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyUp:
		v.moveCursor(-1, 0)
	case tcell.KeyDown:
		v.moveCursor(1, 0)
	case tcell.KeyLeft:
		v.moveCursor(0, -1)
	case tcell.KeyRight:
		v.moveCursor(0, 1)
	case tcell.KeyEnter:
		v.play(v.cursor)
	case tcell.KeyRune:
		r := ev.Rune()
		switch {
		case r >= '1' && r <= '9':
			v.play(int(r - '1'))
		case r == '[':
			v.jump(v.state.Step() - 1)
		case r == ']':
			v.jump(v.state.Step() + 1)
		case r == 's':
			v.state = v.state.ToggleSort()
		case r == 'q':
			return false
		}
	}
	return true
}

func (v *View) handleMouse(ev *tcell.EventMouse) {
	if ev.Buttons()&tcell.Button1 == 0 {
		return
	}
	x, y := ev.Position()
	if cell, ok := cellAt(x, y); ok {
		v.cursor = cell
		v.play(cell)
		return
	}
	moves := v.state.Moves()
	if i := y - movesTop; i >= 0 && i < len(moves) {
		v.jump(moves[i].Step)
	}
}

func (v *View) moveCursor(dRow, dCol int) {
	row, col := domain.RowCol(v.cursor)
	row = clamp(row+dRow, 0, domain.Size-1)
	col = clamp(col+dCol, 0, domain.Size-1)
	v.cursor = row*domain.Size + col
}

func (v *View) play(cell int) {
	next, err := v.state.ApplyMove(cell)
	if err != nil {
		v.log.Debug().Int("cell", cell).Err(err).Msg("move ignored")
		return
	}
	v.state = next
}

func (v *View) jump(step int) {
	next, err := v.state.JumpTo(step)
	if err != nil {
		v.log.Debug().Int("step", step).Err(err).Msg("jump ignored")
		return
	}
	v.state = next
}

// Draw renders the whole view and shows it.
func (v *View) Draw() {
	v.screen.Clear()
	drawText(v.screen, boardLeft, 0, styleSelected, "Tic-tac-toe")

	board := v.state.CurrentBoard()
	winning := make(map[int]bool)
	for _, i := range v.state.WinningCells() {
		winning[i] = true
	}
	for i, c := range board {
		row, col := domain.RowCol(i)
		x, y := boardLeft+col*cellWidth, boardTop+row*2
		style := styleDefault
		if winning[i] {
			style = styleWinner
		}
		if i == v.cursor {
			style = style.Reverse(true)
		}
		mark := c.String()
		if mark == "" {
			mark = " "
		}
		drawText(v.screen, x, y, style, " "+mark+" ")
		if col < domain.Size-1 {
			drawText(v.screen, x+cellWidth-1, y, styleDefault, "|")
		}
		if row < domain.Size-1 && col == 0 {
			drawText(v.screen, boardLeft, y+1, styleDefault, "---+---+---")
		}
	}

	drawText(v.screen, boardLeft, statusRow, styleDefault, v.state.Status())
	drawText(v.screen, boardLeft, sortRow, styleDefault, "Sort: "+v.state.SortLabel())

	moves := v.state.Moves()
	for i, m := range moves {
		if m.Selected {
			drawText(v.screen, boardLeft, movesTop+i, styleSelected, "> "+m.Label)
			continue
		}
		drawText(v.screen, boardLeft, movesTop+i, styleDefault, "  "+m.Label)
	}
	drawText(v.screen, boardLeft, movesTop+len(moves)+1, styleDim, help)
	v.screen.Show()
}

// cellAt maps a screen position to the square drawn there.
func cellAt(x, y int) (int, bool) {
	dy, dx := y-boardTop, x-boardLeft
	if dy < 0 || dy%2 != 0 || dy/2 >= domain.Size {
		return 0, false
	}
	if dx < 0 || dx%cellWidth == cellWidth-1 || dx/cellWidth >= domain.Size {
		return 0, false
	}
	return (dy/2)*domain.Size + dx/cellWidth, true
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
