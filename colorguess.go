// Colorguess Game
//
// A target color is drawn from a palette of six swatches and the player has to
// click the matching one. A correct click scores a point, plays a celebration
// and immediately deals the next round (new target, reshuffled palette). A wrong
// click fades out the status line and leaves the round as it was, so the
// player can try again.
//
// Features:
// - One hub per game ID: /path/:gameid, /path/:gameid/ws, /path/:gameid/state
// - Every browser on the same game ID shares the same board
// - All actions for a game are applied by the hub goroutine, one at a time
// - Works without JavaScript through plain form posts (start, guess)
// - Players identified by cookie (playerID), used for logging only
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/colorguess/games/colorguess"
)

// Messages coming from clients
type ClientMessage struct {
	Type  string `json:"type"`            // "start_game", "guess"
	Color string `json:"color,omitempty"` // guess
}

// StateMessage is broadcast after every action, and sent to new clients on connect.
type StateMessage struct {
	Type  string           `json:"type"` // "state"
	Game  string           `json:"game"`
	State colorguess.State `json:"state"`
	View  colorguess.View  `json:"view"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type actionRequest struct {
	playerID string
	msg      ClientMessage
	reply    chan colorguess.State
}

type Hub struct {
	id      string
	clients map[*Client]bool
	state   colorguess.State
	rng     *colorguess.Randomizer
	metrics *Metrics

	register chan *Client
	unreg    chan *Client
	actions  chan actionRequest
	quit     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newHub(gameID string, palette []colorguess.Color, rng *colorguess.Randomizer, metrics *Metrics) *Hub {
	now := time.Now()
	return &Hub{
		id:         gameID,
		clients:    make(map[*Client]bool),
		state:      colorguess.Initial(palette),
		rng:        rng,
		metrics:    metrics,
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		actions:    make(chan actionRequest),
		quit:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true
			h.metrics.ConnectedClients.Inc()
			msg := h.stateMessageLocked()
			h.mu.Unlock()

			// Fresh clients have an empty buffer, so this never blocks.
			c.send <- msg

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.dropClientLocked(c)
			h.mu.Unlock()

		case req := <-h.actions:
			state := h.handleAction(cfg, req)
			if req.reply != nil {
				req.reply <- state
			}

		case <-h.quit:
			h.mu.Lock()
			for c := range h.clients {
				h.dropClientLocked(c)
				_ = c.conn.Close()
			}
			h.mu.Unlock()

			return
		}
	}
}

// handleAction turns a client message into a game action and applies it.
func (h *Hub) handleAction(cfg *Config, req actionRequest) colorguess.State {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	var action colorguess.Action

	switch req.msg.Type {
	case "start_game":
		action = colorguess.NewRound(h.state, h.rng)
		h.metrics.GamesStarted.Inc()

	case "guess":
		clicked := normalizeGuess(req.msg.Color)
		grade := colorguess.Evaluate(h.state, clicked, h.rng)
		correct := grade.Status == colorguess.StatusCorrect
		h.metrics.observeGuess(correct)
		logf(cfg, "GAMES: Player %s guessed %s against %s (correct: %t)", shortID(req.playerID), clicked, h.state.TargetColor, correct)
		action = grade

	default:
		return h.state
	}

	h.state = colorguess.Reduce(h.state, action)
	h.broadcastStateLocked()

	logf(cfg, "GAMES: Player %s applied %s in %s (score: %d)", shortID(req.playerID), action.Kind(), h.id, h.state.Score)

	return h.state
}

// normalizeGuess canonicalizes the clicked value so "#ff0000" matches "#FF0000".
// Values that are not colors at all are kept as-is and simply graded wrong.
func normalizeGuess(value string) colorguess.Color {
	c, err := colorguess.ParseColor(value)
	if err != nil {
		return colorguess.Color(value)
	}
	return c
}

func shortID(playerID string) string {
	if len(playerID) > 8 {
		return playerID[:8]
	}
	if playerID == "" {
		return "(anonymous)"
	}
	return playerID
}

func (h *Hub) stateMessageLocked() StateMessage {
	return StateMessage{
		Type:  "state",
		Game:  h.id,
		State: h.state,
		View:  colorguess.Render(h.state),
	}
}

// broadcastStateLocked assumes h.mu is already held.
func (h *Hub) broadcastStateLocked() {
	msg := h.stateMessageLocked()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.dropClientLocked(client)
		}
	}
}

// dropClientLocked assumes h.mu is already held.
func (h *Hub) dropClientLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	close(c.send)
	h.metrics.ConnectedClients.Dec()
}

// dispatch applies msg and waits for the resulting state.
func (h *Hub) dispatch(playerID string, msg ClientMessage) (colorguess.State, error) {
	req := actionRequest{
		playerID: playerID,
		msg:      msg,
		reply:    make(chan colorguess.State, 1),
	}

	select {
	case <-h.quit:
		return colorguess.State{}, ErrUnknownSession
	default:
	}

	select {
	case h.actions <- req:
	case <-h.quit:
		return colorguess.State{}, ErrUnknownSession
	}

	return <-req.reply, nil
}

func (h *Hub) snapshot() colorguess.State {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.state
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

func (h *Hub) connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	playerCookieName = "colorguess_id"
	maxMessageSize   = 512
)

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	palette     []colorguess.Color
	rng         *colorguess.Randomizer
	metrics     *Metrics
}

func newGameManager(ctx context.Context, cfg *Config, metrics *Metrics) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
		palette:     cfg.startingPalette(),
		rng:         colorguess.NewRandomizer(cfg.seed),
		metrics:     metrics,
	}

	go gm.reaperLoop(ctx, cfg)

	return gm
}

func (gm *GameManager) getHub(cfg *Config, gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gameID, gm.palette, gm.rng, gm.metrics)
	gm.hubs[gameID] = hub
	gm.metrics.ActiveSessions.Set(float64(len(gm.hubs)))
	go hub.run(cfg)

	return hub
}

func (gm *GameManager) lookup(gameID string) (*Hub, bool) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	hub, ok := gm.hubs[gameID]
	return hub, ok
}

func (gm *GameManager) count() int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	return len(gm.hubs)
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	buf := make([]byte, 8)
	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		for i := range buf {
			buf[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(buf)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reapIdle removes hubs that have been idle since before cutoff.
// Hubs with an open websocket are never idle.
func (gm *GameManager) reapIdle(cfg *Config, cutoff time.Time) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		if hub.connected() > 0 {
			continue
		}
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			hub.stop()
			logf(cfg, "GAMES: Reaped idle game %s after %s", id, time.Since(hub.createdAt).Round(time.Second))
		}
	}

	gm.metrics.ActiveSessions.Set(float64(len(gm.hubs)))
}

// reaperLoop periodically removes idle hubs, and stops all of them once ctx is done.
func (gm *GameManager) reaperLoop(ctx context.Context, cfg *Config) {
	var tick <-chan time.Time
	if gm.idleTimeout > 0 {
		ticker := time.NewTicker(gm.idleTimeout / 2)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			gm.reapIdle(cfg, time.Now().Add(-gm.idleTimeout))
		case <-ctx.Done():
			gm.mu.Lock()
			for id, hub := range gm.hubs {
				delete(gm.hubs, id)
				hub.stop()
			}
			gm.metrics.ActiveSessions.Set(0)
			gm.mu.Unlock()

			return
		}
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)

		hub := gm.getHub(cfg, gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errorf("websocket upgrade for %s failed: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.quit:
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Player %s connected to %s from %s", shortID(playerID), gameID, realIP(r))

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.quit:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "start_game", "guess":
			select {
			case h.actions <- actionRequest{playerID: c.playerID, msg: msg}:
			case <-h.quit:
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if ps.ByName("gameid") == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			report(errs, err)
		}
	}
}

//go:embed colorguess/index.html
var gameFiles embed.FS

var gameTemplate = template.Must(template.ParseFS(gameFiles, "colorguess/index.html"))

type gamePage struct {
	Prefix string
	Base   string
	Game   string
	View   colorguess.View
}

func serveGamePage(cfg *Config, path string, gm *GameManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		gameID := ps.ByName("gameid")
		_ = getOrSetPlayerID(w, r)

		hub := gm.getHub(cfg, gameID)

		var buf bytes.Buffer
		err := gameTemplate.Execute(&buf, gamePage{
			Prefix: cfg.prefix,
			Base:   cfg.prefix + path + "/" + gameID,
			Game:   gameID,
			View:   colorguess.Render(hub.snapshot()),
		})
		if err != nil {
			report(errs, err)
			http.Error(w, "unable to render game", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)
		cspGame(w)

		written, err := w.Write(buf.Bytes())
		if err != nil {
			report(errs, err)
			return
		}

		logf(cfg, "SERVE: Game %s (%s) to %s in %s",
			gameID,
			formatBytes(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveGameState(cfg *Config, gm *GameManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		hub, ok := gm.lookup(gameID)
		if !ok {
			http.Error(w, ErrUnknownSession.Error(), http.StatusNotFound)
			return
		}
		state := hub.snapshot()

		data, err := json.Marshal(StateMessage{
			Type:  "state",
			Game:  gameID,
			State: state,
			View:  colorguess.Render(state),
		})
		if err != nil {
			report(errs, err)
			http.Error(w, "unable to encode state", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if _, err := w.Write(data); err != nil {
			report(errs, err)
		}
	}
}

// serveFormAction handles the no-JavaScript fallback: the board's buttons
// post here, and the browser is sent back to the board.
func serveFormAction(cfg *Config, path, kind string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		playerID := getOrSetPlayerID(w, r)

		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		msg := ClientMessage{Type: kind, Color: r.PostForm.Get("color")}

		if _, err := gm.getHub(cfg, gameID).dispatch(playerID, msg); err != nil {
			http.Error(w, err.Error(), http.StatusGone)
			return
		}

		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusSeeOther)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerColorGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML board
//   - $path/:gameid/start    → form post, Start Game
//   - $path/:gameid/guess    → form post, guess a color
//   - $path/:gameid/state    → JSON snapshot
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerColorGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, metrics *Metrics, errs chan<- error) *GameManager {
	gm := newGameManager(ctx, cfg, metrics)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg, path, gm, errs))

	mux.POST(cfg.prefix+path+"/:gameid/start", serveFormAction(cfg, path, "start_game", gm))
	mux.POST(cfg.prefix+path+"/:gameid/guess", serveFormAction(cfg, path, "guess", gm))

	mux.GET(cfg.prefix+path+"/:gameid/state", serveGameState(cfg, gm, errs))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler(cfg, errs))

	return gm
}
