package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jaminalder/timetravel-tic-tac-toe/internal/app"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/domain"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/store"
)

const sessionCookie = "session_id"

var errBadInput = errors.New("bad input")

type handlers struct {
	svc       *app.Service
	tpl       *templates
	log       zerolog.Logger
	heartbeat time.Duration
}

// rejected reports whether err is an expected user action the page ignores.
func rejected(err error) bool {
	return errors.Is(err, errBadInput) ||
		errors.Is(err, domain.ErrOccupied) ||
		errors.Is(err, domain.ErrGameOver) ||
		errors.Is(err, domain.ErrOutOfBounds) ||
		errors.Is(err, domain.ErrStepOutOfRange)
}

func (h *handlers) renderGame(sess store.Session) ([]byte, error) {
	return renderTemplate(h.tpl.game, "", newGameView(sess))
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Open(r.Context(), ensureSessionCookie(w, r))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to open session")
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}
	body, err := renderTemplate(h.tpl.page, "base", newGameView(*sess))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to render page")
		http.Error(w, "failed to render", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	cell, err := formInt(r, "cell")
	h.mutate(w, r, func(ctx context.Context, id string) (*store.Session, error) {
		if err != nil {
			return nil, err
		}
		return h.svc.Play(ctx, id, cell)
	})
}

func (h *handlers) jump(w http.ResponseWriter, r *http.Request) {
	step, err := formInt(r, "step")
	h.mutate(w, r, func(ctx context.Context, id string) (*store.Session, error) {
		if err != nil {
			return nil, err
		}
		return h.svc.JumpTo(ctx, id, step)
	})
}

func (h *handlers) sort(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, id string) (*store.Session, error) {
		return h.svc.ToggleSort(ctx, id)
	})
}

// mutate runs op against the caller's session and answers with the game
// fragment, or a redirect back to the page for plain form posts. Rejected
// input leaves the game as it was and is not reported to the player.
func (h *handlers) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*store.Session, error)) {
	ctx := r.Context()
	sess, err := h.svc.Open(ctx, ensureSessionCookie(w, r))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to open session")
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}

	next, err := op(ctx, sess.ID)
	switch {
	case err == nil:
		sess = next
	case rejected(err):
		h.log.Debug().Str("session", sess.ID).Str("path", r.URL.Path).Err(err).Msg("ignored input")
		if next != nil {
			sess = next
		}
	default:
		h.log.Error().Str("session", sess.ID).Err(err).Msg("operation failed")
		http.Error(w, "operation failed", http.StatusInternalServerError)
		return
	}

	if r.Header.Get("HX-Request") != "true" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	body, err := h.renderGame(*sess)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to render game")
		http.Error(w, "failed to render", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := ensureSessionCookie(w, r)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// Non-EventSource requests just get the headers
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub := h.svc.Subscribe(ctx, id)
	defer unsub()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case sess, ok := <-ch:
			if !ok {
				return
			}
			body, err := h.renderGame(sess)
			if err != nil {
				h.log.Error().Err(err).Msg("failed to render game")
				continue
			}
			writeEvent(w, "game", body)
			flusher.Flush()
		}
	}
}

// writeEvent emits one SSE event, one data line per payload line.
func writeEvent(w io.Writer, event string, data []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range bytes.Split(data, []byte("\n")) {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = io.WriteString(w, "\n")
}

func formInt(r *http.Request, key string) (int, error) {
	if err := r.ParseForm(); err != nil {
		return 0, fmt.Errorf("%w: %v", errBadInput, err)
	}
	n, err := strconv.Atoi(r.Form.Get(key))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadInput, key, err)
	}
	return n, nil
}

func sessionFromCookie(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

func newSessionCookie(id string) *http.Cookie {
	return &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode}
}

// ensureSessionCookie returns the caller's session ID, issuing one if absent.
func ensureSessionCookie(w http.ResponseWriter, r *http.Request) string {
	if id := sessionFromCookie(r); id != "" {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, newSessionCookie(id))
	return id
}
