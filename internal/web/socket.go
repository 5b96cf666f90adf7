package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"

	"github.com/jaminalder/timetravel-tic-tac-toe/internal/app"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/store"
)

const (
	actionState = "state"
	actionPlay  = "play"
	actionJump  = "jump"
	actionSort  = "sort"

	typeState    = "state"
	typeRejected = "rejected"

	writeWait = 10 * time.Second
)

var errUnknownAction = errors.New("unknown action")

// command is a client message: {"action":"play","payload":{"cell":4}}.
type command struct {
	Action  string `mapstructure:"action"`
	Payload struct {
		Cell *int `mapstructure:"cell"`
		Step *int `mapstructure:"step"`
	} `mapstructure:"payload"`
}

type wsMove struct {
	Step     int    `json:"step"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

type wsState struct {
	Board        []string `json:"board"`
	WinningCells []int    `json:"winning_cells"`
	Status       string   `json:"status"`
	Step         int      `json:"step"`
	Ascending    bool     `json:"ascending"`
	Moves        []wsMove `json:"moves"`
}

type wsMessage struct {
	Type  string   `json:"type"`
	Error string   `json:"error,omitempty"`
	State *wsState `json:"state,omitempty"`
}

type outgoing struct {
	msg wsMessage
	rev uint64
}

func newWSState(sess store.Session) *wsState {
	st := sess.State
	board := st.CurrentBoard()
	out := &wsState{
		Board:        make([]string, len(board)),
		WinningCells: st.WinningCells(),
		Status:       st.Status(),
		Step:         st.Step(),
		Ascending:    st.Ascending(),
	}
	if out.WinningCells == nil {
		out.WinningCells = []int{}
	}
	for i, c := range board {
		out.Board[i] = c.String()
	}
	for _, m := range st.Moves() {
		out.Moves = append(out.Moves, wsMove{Step: m.Step, Label: m.Label, Selected: m.Selected})
	}
	return out
}

// socket serves the same game operations as the page over a websocket.
type socket struct {
	svc      *app.Service
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func decodeCommand(raw map[string]any) (command, error) {
	var cmd command
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &cmd, ErrorUnused: true})
	if err != nil {
		return cmd, err
	}
	if err = dec.Decode(raw); err != nil {
		return cmd, fmt.Errorf("%w: %v", errBadInput, err)
	}
	return cmd, nil
}

func (s *socket) serve(w http.ResponseWriter, r *http.Request) {
	id := sessionFromCookie(r)
	header := http.Header{}
	if id == "" {
		id = uuid.NewString()
		header.Add("Set-Cookie", newSessionCookie(id).String())
	}

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.log.Debug().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := s.log.With().Str("session", id).Logger()

	sess, err := s.svc.Open(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("failed to open session")
		return
	}
	updates, unsub := s.svc.Subscribe(ctx, id)
	defer unsub()

	out := make(chan outgoing, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, conn, out, updates, log)
	}()

	out <- outgoing{msg: wsMessage{Type: typeState, State: newWSState(*sess)}, rev: sess.Rev}
	for {
		var raw map[string]any
		if err = conn.ReadJSON(&raw); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("read failed")
			}
			break
		}
		o, err := s.handle(ctx, id, raw)
		if err != nil {
			log.Error().Err(err).Msg("command failed")
			break
		}
		select {
		case out <- o:
		case <-done:
		}
	}
	cancel()
	<-done
}

// handle runs one command. Rejected commands yield a "rejected" message and
// a nil error; only infrastructure failures end the connection.
func (s *socket) handle(ctx context.Context, id string, raw map[string]any) (outgoing, error) {
	cmd, err := decodeCommand(raw)
	var sess *store.Session
	if err == nil {
		switch cmd.Action {
		case actionState:
			sess, err = s.svc.Get(ctx, id)
		case actionPlay:
			if cmd.Payload.Cell == nil {
				err = fmt.Errorf("%w: missing cell", errBadInput)
				break
			}
			sess, err = s.svc.Play(ctx, id, *cmd.Payload.Cell)
		case actionJump:
			if cmd.Payload.Step == nil {
				err = fmt.Errorf("%w: missing step", errBadInput)
				break
			}
			sess, err = s.svc.JumpTo(ctx, id, *cmd.Payload.Step)
		case actionSort:
			sess, err = s.svc.ToggleSort(ctx, id)
		default:
			err = fmt.Errorf("%w: %w %q", errBadInput, errUnknownAction, cmd.Action)
		}
	}

	switch {
	case err == nil:
		o := outgoing{msg: wsMessage{Type: typeState, State: newWSState(*sess)}, rev: sess.Rev}
		if cmd.Action == actionState {
			// explicit requests are answered even when nothing changed
			o.rev = 0
		}
		return o, nil
	case rejected(err):
		if sess == nil {
			var getErr error
			if sess, getErr = s.svc.Get(ctx, id); getErr != nil {
				return outgoing{}, getErr
			}
		}
		// a rejection is always delivered, so it carries no revision
		return outgoing{msg: wsMessage{Type: typeRejected, Error: err.Error(), State: newWSState(*sess)}}, nil
	default:
		return outgoing{}, err
	}
}

// writeLoop is the only writer on conn. A state revision is written at most
// once, whether it arrives as a direct reply or as a broadcast. The loop ends
// the connection when the update stream closes.
func (s *socket) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan outgoing, updates <-chan store.Session, log zerolog.Logger) {
	var lastSent uint64
	write := func(m wsMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			log.Debug().Err(err).Msg("write failed")
			return false
		}
		return true
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case o := <-out:
			if o.rev != 0 {
				if o.rev <= lastSent {
					continue
				}
				lastSent = o.rev
			}
			if !write(o.msg) {
				return
			}
		case sess, ok := <-updates:
			if !ok {
				// dropped by the service; the client reconnects to resubscribe
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "updates ended"), time.Now().Add(writeWait))
				return
			}
			if sess.Rev <= lastSent {
				continue
			}
			lastSent = sess.Rev
			if !write(wsMessage{Type: typeState, State: newWSState(sess)}) {
				return
			}
		}
	}
}
