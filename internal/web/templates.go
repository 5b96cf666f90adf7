package web

import (
	"bytes"
	"html/template"

	"github.com/jaminalder/timetravel-tic-tac-toe/internal/domain"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/store"
)

type templates struct {
	page *template.Template
	game *template.Template
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Tic-tac-toe</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org@1.9.12/dist/ext/sse.js"></script>
<style>` + css + `</style>
</head><body>{{template "content" .}}</body></html>`))
	// Define the game template within the same set so the page can include it
	template.Must(base.New("game").Parse(gameTemplate))
	page := template.Must(base.New("content").Parse(`
<div hx-ext="sse" sse-connect="/events">
  <div id="live" sse-swap="game">{{template "game" .}}</div>
</div>`))
	// Standalone fragment used for htmx swaps and SSE payloads
	game := template.Must(template.New("game_only").Parse(gameTemplate))
	return &templates{page: page, game: game}
}

func renderTemplate(t *template.Template, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if name == "" {
		err = t.Execute(&buf, data)
	} else {
		err = t.ExecuteTemplate(&buf, name, data)
	}
	return buf.Bytes(), err
}

const css = `
body { font: 14px "Century Gothic", Futura, sans-serif; margin: 20px; }
.game { display: flex; flex-direction: row; }
.game-info { margin-left: 20px; }
.board-row { display: flex; }
.board-row form { margin: 0; }
.square { background: #fff; border: 1px solid #999; font-size: 24px; font-weight: bold;
  line-height: 34px; height: 34px; width: 34px; margin: -1px -1px 0 0; padding: 0; text-align: center; }
.square-winner { background: #ff0; }
.selected-move-btn { font-weight: bold; }
ol form { margin: 0; }
`

const gameTemplate = `
<div id="game" class="game">
  <div class="game-board">
    {{range .Rows}}
    <div class="board-row">
      {{range .}}
      <form hx-post="/play" hx-target="#game" hx-swap="outerHTML" method="post" action="/play">
        <input type="hidden" name="cell" value="{{.Index}}">
        <button type="submit" class="square{{if .Winner}} square-winner{{end}}">{{.Mark}}</button>
      </form>
      {{end}}
    </div>
    {{end}}
  </div>
  <div class="game-info">
    <div class="status">{{.Status}}</div>
    <div>
      <form hx-post="/sort" hx-target="#game" hx-swap="outerHTML" method="post" action="/sort" style="display:inline">
        <button type="submit">Toggle sort:</button>
      </form> {{.SortLabel}}
    </div>
    <ol>
      {{range .Moves}}
      <li>
        <form hx-post="/jump" hx-target="#game" hx-swap="outerHTML" method="post" action="/jump">
          <input type="hidden" name="step" value="{{.Step}}">
          <button type="submit"{{if .Selected}} class="selected-move-btn"{{end}}>{{.Label}}</button>
        </form>
      </li>
      {{end}}
    </ol>
  </div>
</div>
`

type square struct {
	Index  int
	Mark   string
	Winner bool
}

// gameView is everything the game fragment shows, derived fresh from the
// session state on every render.
type gameView struct {
	Rows      [][]square
	Status    string
	SortLabel string
	Moves     []domain.Move
}

func newGameView(sess store.Session) gameView {
	st := sess.State
	board := st.CurrentBoard()
	winning := make(map[int]bool)
	for _, i := range st.WinningCells() {
		winning[i] = true
	}

	rows := make([][]square, domain.Size)
	for i, c := range board {
		row, _ := domain.RowCol(i)
		rows[row] = append(rows[row], square{Index: i, Mark: c.String(), Winner: winning[i]})
	}
	return gameView{
		Rows:      rows,
		Status:    st.Status(),
		SortLabel: st.SortLabel(),
		Moves:     st.Moves(),
	}
}
