/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/colorguess/games/colorguess"
)

var knownPalette = []string{"#0000FF", "#00FF00", "#FF0000", "#FFFF00", "#FF00FF", "#00FFFF"}

type wireState struct {
	Status          *string  `json:"status"`
	Score           int      `json:"score"`
	Colors          []string `json:"colors"`
	TargetColor     string   `json:"targetColor"`
	ResultAnimation string   `json:"resultAnimation"`
}

type wireMessage struct {
	Type  string          `json:"type"`
	Game  string          `json:"game"`
	State wireState       `json:"state"`
	View  colorguess.View `json:"view"`
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{
		bind:    "127.0.0.1",
		port:    8080,
		metrics: true,
		seed:    42,
	}
	require.NoError(t, cfg.validate())

	return cfg
}

func newTestServer(t *testing.T, cfg *Config) (*httptest.Server, *GameManager) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 64)

	mux, gm := newRouter(ctx, cfg, errs)
	ts := httptest.NewServer(mux)

	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return ts, gm
}

func noRedirects() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func fetchState(t *testing.T, ts *httptest.Server, gameID string) wireMessage {
	t.Helper()

	resp, err := http.Get(ts.URL + "/colorguess/" + gameID + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var msg wireMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))

	return msg
}

func postForm(t *testing.T, ts *httptest.Server, gameID, action string, form url.Values) {
	t.Helper()

	resp, err := noRedirects().PostForm(ts.URL+"/colorguess/"+gameID+"/"+action, form)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/colorguess/"+gameID, resp.Header.Get("Location"))
}

func TestInitialSessionState(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/colorguess/fresh")
	require.NoError(t, err)
	resp.Body.Close()

	msg := fetchState(t, ts, "fresh")

	assert.Equal(t, "state", msg.Type)
	assert.Equal(t, "fresh", msg.Game)
	assert.Nil(t, msg.State.Status)
	assert.Equal(t, 0, msg.State.Score)
	assert.Equal(t, "", msg.State.TargetColor)
	assert.Equal(t, knownPalette, msg.State.Colors)
	assert.Equal(t, "Random color", msg.View.BoxLabel)
}

func TestCorrectGuessAdvancesRound(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	postForm(t, ts, "g1", "start", nil)

	started := fetchState(t, ts, "g1")
	assert.Nil(t, started.State.Status)
	assert.Equal(t, 0, started.State.Score)
	assert.Equal(t, "", started.State.ResultAnimation)
	require.Contains(t, knownPalette, started.State.TargetColor)

	postForm(t, ts, "g1", "guess", url.Values{"color": {started.State.TargetColor}})

	graded := fetchState(t, ts, "g1")
	require.NotNil(t, graded.State.Status)
	assert.Equal(t, "Correct!", *graded.State.Status)
	assert.Equal(t, 1, graded.State.Score)
	assert.Equal(t, "celebrate", graded.State.ResultAnimation)
	assert.Contains(t, knownPalette, graded.State.TargetColor)
	assert.ElementsMatch(t, knownPalette, graded.State.Colors)
	assert.Equal(t, "Game Status: Correct!", graded.View.StatusText)
	assert.Equal(t, "Score: 1", graded.View.ScoreText)
}

func TestWrongGuessKeepsTarget(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	postForm(t, ts, "g2", "start", nil)
	started := fetchState(t, ts, "g2")

	var wrong string
	for _, c := range started.State.Colors {
		if c != started.State.TargetColor {
			wrong = c
			break
		}
	}

	// Lower-case input is normalized before grading.
	postForm(t, ts, "g2", "guess", url.Values{"color": {strings.ToLower(wrong)}})

	graded := fetchState(t, ts, "g2")
	require.NotNil(t, graded.State.Status)
	assert.Equal(t, "Wrong", *graded.State.Status)
	assert.Equal(t, 0, graded.State.Score)
	assert.Equal(t, "fade-out", graded.State.ResultAnimation)
	assert.Equal(t, started.State.TargetColor, graded.State.TargetColor)
	assert.Equal(t, started.State.Colors, graded.State.Colors)
	assert.Equal(t, "fade-out", graded.View.StatusClass)
}

func TestStartGameResetsScore(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	postForm(t, ts, "g3", "start", nil)
	for range 3 {
		s := fetchState(t, ts, "g3")
		postForm(t, ts, "g3", "guess", url.Values{"color": {s.State.TargetColor}})
	}
	require.Equal(t, 3, fetchState(t, ts, "g3").State.Score)

	postForm(t, ts, "g3", "start", nil)

	s := fetchState(t, ts, "g3")
	assert.Equal(t, 0, s.State.Score)
	assert.Nil(t, s.State.Status)
	assert.Equal(t, "", s.State.ResultAnimation)
}

func TestGamePageRendersBoard(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/colorguess/board")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "style-src 'self' 'unsafe-inline'")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(data)

	assert.Contains(t, body, `data-testid="colorBox"`)
	assert.Contains(t, body, "Random color")
	assert.Contains(t, body, "Guess the correct color!")
	assert.Equal(t, 6, strings.Count(body, `data-testid="colorOption"`))
	assert.Contains(t, body, "Score: 0")
	assert.Contains(t, body, `data-testid="newGameButton"`)
	assert.Contains(t, body, `action="/colorguess/board/guess"`)

	var hasCookie bool
	for _, c := range resp.Cookies() {
		if c.Name == playerCookieName && c.Value != "" {
			hasCookie = true
		}
	}
	assert.True(t, hasCookie)
}

func TestRedirectNewGame(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	resp, err := noRedirects().Get(ts.URL + "/colorguess")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Regexp(t, regexp.MustCompile(`^/colorguess/[A-Za-z0-9]{8}$`), resp.Header.Get("Location"))
}

func TestWebSocketSession(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/colorguess/live/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() wireMessage {
		t.Helper()
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg wireMessage
		require.NoError(t, ws.ReadJSON(&msg))
		require.Equal(t, "state", msg.Type)
		return msg
	}

	initial := read()
	assert.Equal(t, "", initial.State.TargetColor)

	require.NoError(t, ws.WriteJSON(ClientMessage{Type: "bogus"}))
	require.NoError(t, ws.WriteJSON(ClientMessage{Type: "start_game"}))
	started := read()
	require.Contains(t, knownPalette, started.State.TargetColor)

	require.NoError(t, ws.WriteJSON(ClientMessage{Type: "guess", Color: "not-a-color"}))
	wrong := read()
	require.NotNil(t, wrong.State.Status)
	assert.Equal(t, "Wrong", *wrong.State.Status)
	assert.Equal(t, started.State.TargetColor, wrong.State.TargetColor)

	require.NoError(t, ws.WriteJSON(ClientMessage{Type: "guess", Color: started.State.TargetColor}))
	right := read()
	require.NotNil(t, right.State.Status)
	assert.Equal(t, "Correct!", *right.State.Status)
	assert.Equal(t, 1, right.State.Score)
	assert.Equal(t, "celebrate", right.View.StatusClass)
	assert.ElementsMatch(t, knownPalette, right.State.Colors)
}

func TestWebSocketBroadcastsFormActions(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/colorguess/shared/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wireMessage
	require.NoError(t, ws.ReadJSON(&msg))

	postForm(t, ts, "shared", "start", nil)

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Contains(t, knownPalette, msg.State.TargetColor)
}

func TestReapedSessionRejectsActions(t *testing.T) {
	cfg := testConfig(t)
	_, gm := newTestServer(t, cfg)

	hub := gm.getHub(cfg, "old")
	require.Equal(t, 1, gm.count())

	gm.reapIdle(cfg, time.Now().Add(time.Hour))
	assert.Equal(t, 0, gm.count())

	_, err := hub.dispatch("", ClientMessage{Type: "start_game"})
	assert.ErrorIs(t, err, ErrUnknownSession)

	assert.NotSame(t, hub, gm.getHub(cfg, "old"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	postForm(t, ts, "m", "start", nil)
	s := fetchState(t, ts, "m")
	postForm(t, ts, "m", "guess", url.Values{"color": {s.State.TargetColor}})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(data), "colorguess_games_started_total 1")
	assert.Contains(t, string(data), `colorguess_guesses_total{result="correct"} 1`)
	assert.Contains(t, string(data), "colorguess_active_sessions 1")
}

func TestStaticRoutes(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	cases := []struct {
		path        string
		contentType string
		contains    string
	}{
		{"/healthz", "text/plain; charset=utf-8", "Ok"},
		{"/version", "text/plain; charset=utf-8", "colorguess v" + releaseVersion},
		{"/robots.txt", "text/plain; charset=utf-8", "GPTBot"},
		{"/assets/colorguess/app.css", "text/css; charset=utf-8", ".celebrate"},
		{"/assets/colorguess/app.js", "text/javascript; charset=utf-8", "start_game"},
		{"/favicons/favicon.svg", "image/svg+xml", "<svg"},
		{"/", "text/html; charset=utf-8", "/colorguess"},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tc.contentType, resp.Header.Get("Content-Type"))
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

			data, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(data), tc.contains)
		})
	}

	resp, err := http.Get(ts.URL + "/assets/colorguess/missing.css")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQRCode(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/colorguess/abc/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\x89PNG"))
}

func TestPrefixedRoutes(t *testing.T) {
	cfg := testConfig(t)
	cfg.prefix = "/games/"
	ts, _ := newTestServer(t, cfg)

	resp, err := noRedirects().Get(ts.URL + "/games/colorguess")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/games/colorguess/"))
}

func TestStateUnknownSession(t *testing.T) {
	ts, gm := newTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/colorguess/nobody/state")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, gm.count())
}

func TestReapKeepsConnectedSession(t *testing.T) {
	cfg := testConfig(t)
	ts, gm := newTestServer(t, cfg)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/colorguess/open/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() wireMessage {
		t.Helper()
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg wireMessage
		require.NoError(t, ws.ReadJSON(&msg))
		return msg
	}

	read()
	require.NoError(t, ws.WriteJSON(ClientMessage{Type: "start_game"}))
	started := read()
	require.NoError(t, ws.WriteJSON(ClientMessage{Type: "guess", Color: started.State.TargetColor}))
	require.Equal(t, 1, read().State.Score)

	gm.reapIdle(cfg, time.Now().Add(time.Hour))
	require.Equal(t, 1, gm.count())

	// The socket is still served by the same hub.
	require.NoError(t, ws.WriteJSON(ClientMessage{Type: "guess", Color: "not-a-color"}))
	after := read()
	assert.Equal(t, 1, after.State.Score)
	assert.Equal(t, 1, fetchState(t, ts, "open").State.Score)
}

func TestOversizedMessageClosesConnection(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/colorguess/big/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wireMessage
	require.NoError(t, ws.ReadJSON(&msg))

	payload := `{"type":"guess","color":"` + strings.Repeat("F", 4*maxMessageSize) + `"}`
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(payload)))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	assert.Error(t, err)

	s := fetchState(t, ts, "big")
	assert.Nil(t, s.State.Status)
}
