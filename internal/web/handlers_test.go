package web

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaminalder/timetravel-tic-tac-toe/internal/app"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/store"
)

func newTestServer(t *testing.T) (*app.Service, http.Handler) {
	t.Helper()
	s := app.NewService(store.NewMemory(), zerolog.Nop())
	h := NewServer(s, Options{Logger: zerolog.Nop(), Heartbeat: time.Hour})
	return s, h
}

func sessionCookieFrom(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatalf("expected %s cookie to be set", sessionCookie)
	return nil
}

// post sends an htmx form post and returns the recorder.
func post(t *testing.T, h http.Handler, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func playCells(t *testing.T, h http.Handler, cookie *http.Cookie, cells ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rr *httptest.ResponseRecorder
	for _, c := range cells {
		rr = post(t, h, "/play", url.Values{"cell": {c}}, cookie)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	return rr
}

func openPage(t *testing.T, h http.Handler) (*httptest.ResponseRecorder, *http.Cookie) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr, sessionCookieFrom(t, rr)
}

func TestIndexPage(t *testing.T) {
	svc, h := newTestServer(t)
	rr, cookie := openPage(t, h)

	body := rr.Body.String()
	assert.Contains(t, body, "<!doctype html>")
	assert.Contains(t, body, `sse-connect="/events"`)
	assert.Contains(t, body, `id="game"`)
	assert.Contains(t, body, "Next player: X")
	assert.Contains(t, body, "Go to game start")
	assert.Contains(t, body, "Toggle sort:")
	assert.Equal(t, 9, strings.Count(body, `name="cell"`))

	_, err := svc.Get(context.Background(), cookie.Value)
	require.NoError(t, err, "page load starts a session")
}

func TestIndexKeepsExistingSession(t *testing.T) {
	svc, h := newTestServer(t)
	_, cookie := openPage(t, h)
	playCells(t, h, cookie, "4")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Contains(t, rr.Body.String(), "Next player: O")
	assert.Empty(t, rr.Result().Cookies())

	sess, err := svc.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.State.Step())
}

func TestPlayReturnsFragment(t *testing.T) {
	svc, h := newTestServer(t)
	_, cookie := openPage(t, h)

	rr := playCells(t, h, cookie, "0")
	body := rr.Body.String()
	assert.Contains(t, body, `id="game"`)
	assert.NotContains(t, body, "<!doctype html>")
	assert.Contains(t, body, "Next player: O")
	assert.Contains(t, body, `>X</button>`)
	assert.Contains(t, body, "Go to move #1 (0,0)")

	sess, err := svc.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.State.Step())
}

func TestWinnerIsHighlighted(t *testing.T) {
	_, h := newTestServer(t)
	_, cookie := openPage(t, h)

	rr := playCells(t, h, cookie, "0", "4", "1", "3", "8")
	body := rr.Body.String()
	assert.Contains(t, body, "Winner: X")
	assert.Equal(t, 3, strings.Count(body, "square-winner"))

	// further clicks change nothing
	again := playCells(t, h, cookie, "2")
	assert.Equal(t, body, again.Body.String())
}

func TestRejectedInputIsSilent(t *testing.T) {
	svc, h := newTestServer(t)
	_, cookie := openPage(t, h)
	first := playCells(t, h, cookie, "4")

	for _, form := range []url.Values{
		{"cell": {"4"}},
		{"cell": {"abc"}},
		{"cell": {"-3"}},
		{},
	} {
		rr := post(t, h, "/play", form, cookie)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, first.Body.String(), rr.Body.String(), "form %v", form)
	}

	rr := post(t, h, "/jump", url.Values{"step": {"9"}}, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, first.Body.String(), rr.Body.String())

	sess, err := svc.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.State.Step())
	assert.Equal(t, 2, sess.State.Len())
}

func TestJumpSelectsMove(t *testing.T) {
	_, h := newTestServer(t)
	_, cookie := openPage(t, h)
	playCells(t, h, cookie, "0", "4", "8")

	rr := post(t, h, "/jump", url.Values{"step": {"1"}}, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `class="selected-move-btn">Go to move #1 (0,0)`)
	assert.Contains(t, body, "Next player: O")
	assert.Contains(t, body, "Go to move #3 (2,2)", "jumping keeps the later moves")

	rr = playCells(t, h, cookie, "2")
	body = rr.Body.String()
	assert.Contains(t, body, "Go to move #2 (2,0)")
	assert.NotContains(t, body, "Go to move #3")
}

func TestSortReversesMoveList(t *testing.T) {
	_, h := newTestServer(t)
	_, cookie := openPage(t, h)
	playCells(t, h, cookie, "0", "4", "8")

	rr := post(t, h, "/sort", nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "</form> desc")
	assert.Less(t, strings.Index(body, "Go to move #3"), strings.Index(body, "Go to game start"))

	rr = post(t, h, "/sort", nil, cookie)
	body = rr.Body.String()
	assert.Contains(t, body, "</form> asc")
	assert.Greater(t, strings.Index(body, "Go to move #3"), strings.Index(body, "Go to game start"))
}

func TestPlainFormPostRedirects(t *testing.T) {
	_, h := newTestServer(t)
	_, cookie := openPage(t, h)

	req := httptest.NewRequest(http.MethodPost, "/play", strings.NewReader("cell=0"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Result().Header.Get("Location"))
}

func TestPostWithoutCookieStartsSession(t *testing.T) {
	svc, h := newTestServer(t)
	rr := post(t, h, "/play", url.Values{"cell": {"5"}}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := sessionCookieFrom(t, rr)

	sess, err := svc.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.State.Step())
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

func TestEventsEndpointSSEHeaders(t *testing.T) {
	_, h := newTestServer(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Result().Header.Get("Content-Type"), "text/event-stream"))
}

func TestEventsStreamsUpdates(t *testing.T) {
	svc, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := svc.Open(ctx, "sse-session")
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: sess.ID})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// another tab plays
	_, err = svc.Play(ctx, sess.ID, 4)
	require.NoError(t, err)

	sc := bufio.NewScanner(resp.Body)
	var sawEvent, sawStatus bool
	for sc.Scan() {
		line := sc.Text()
		if line == "event: game" {
			sawEvent = true
		}
		if sawEvent && strings.HasPrefix(line, "data: ") && strings.Contains(line, "Next player: O") {
			sawStatus = true
			break
		}
	}
	assert.True(t, sawEvent, "expected a game event")
	assert.True(t, sawStatus, "expected the updated status in the event data")
}

func TestWriteEventPrefixesEveryLine(t *testing.T) {
	var b strings.Builder
	writeEvent(&b, "game", []byte("<div>\n<p>x</p>\n</div>"))
	assert.Equal(t, "event: game\ndata: <div>\ndata: <p>x</p>\ndata: </div>\n\n", b.String())
}
