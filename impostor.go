// Impostor
//
// Players gather in a room by its four-character code. Every round, all but
// a few of them are dealt the same secret word; the rest are told they are
// the impostor. After talking it over the room votes, the host reveals the
// impostors, and points go to whichever side won.
//
// Features:
// - One websocket per browser tab at /ws; the room is chosen by command
// - Players identified by cookie (impostor_id), so a refresh keeps their seat
// - First member of a room is host, the earliest remaining member takes over
// - Host picks the word pool, impostor count and vote duration
// - Timed votes that also close as soon as everyone present has voted
// - Rooms auto-closed after a configurable idle timeout
// - QR code endpoint for the room link, backed by go-qrcode

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/impostor/internal/game"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 32
)

// ClientMessage is any command a client can send.
type ClientMessage struct {
	Type     string   `json:"type"`
	Name     string   `json:"name,omitempty"`     // createRoom / joinRoom
	Code     string   `json:"code,omitempty"`     // joinRoom
	Words    wordList `json:"words,omitempty"`    // setPool
	N        flexInt  `json:"n,omitempty"`        // setImpostorCount
	Seconds  flexInt  `json:"seconds,omitempty"`  // setVoteDuration
	TargetID string   `json:"targetId,omitempty"` // castVote / kick
}

// flexInt accepts 3, 3.0 and "3". Anything unparsable decodes to 0, which
// the room settings then clamp.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))

	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}

	*f = flexInt(max(-1e6, min(n, 1e6)))

	return nil
}

// wordList accepts either a JSON array or a single newline-separated string.
type wordList []string

func (w *wordList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*w = list
		return nil
	}

	var text string
	if err := json.Unmarshal(b, &text); err != nil {
		return err
	}

	*w = strings.Split(text, "\n")

	return nil
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID game.PlayerID
	connID   game.ConnectionID
}

// Hub routes outbound messages to live connections. It is the Manager's
// Notifier, so Notify never blocks: a client that cannot keep up is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[game.ConnectionID]*Client
}

func newHub() *Hub {
	return &Hub{
		clients: make(map[game.ConnectionID]*Client),
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.connID] = c
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.connID] == c {
		delete(h.clients, c.connID)
		close(c.send)
	}
}

func (h *Hub) Notify(conn game.ConnectionID, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[conn]
	if !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		log.Warn().Str("player", string(c.playerID)).Msg("dropping slow client")

		delete(h.clients, conn)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

const playerCookieName = "impostor_id"

// playerCookie returns the caller's player id. A cookie is returned only when
// a new id had to be minted and must be set on the response.
func playerCookie(cfg *Config, r *http.Request) (game.PlayerID, *http.Cookie) {
	if c, err := r.Cookie(playerCookieName); err == nil {
		if id, ok := game.ParsePlayerID(c.Value); ok {
			return id, nil
		}
	}

	id := game.NewPlayerID()

	path := cfg.prefix
	if path == "" {
		path = "/"
	}

	return id, &http.Cookie{
		Name:     playerCookieName,
		Value:    string(id),
		Path:     path,
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

// checkOrigin allows same-origin upgrades, plus any configured origins.
func checkOrigin(cfg *Config) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		if slices.Contains(cfg.allowedOrigins, "*") || slices.Contains(cfg.allowedOrigins, origin) {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil {
			return false
		}

		return strings.EqualFold(u.Host, r.Host)
	}
}

func serveWS(cfg *Config, m *game.Manager, hub *Hub) httprouter.Handle {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg),
	}

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID, cookie := playerCookie(cfg, r)

		header := http.Header{}
		if cookie != nil {
			header.Add("Set-Cookie", cookie.String())
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			log.Debug().Err(err).Str("remote", realIP(r)).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, sendBuffer),
			playerID: playerID,
			connID:   game.NewConnectionID(),
		}

		log.Debug().
			Str("player", string(playerID)).
			Str("connection", string(client.connID)).
			Str("remote", realIP(r)).
			Msg("websocket connected")

		hub.add(client)
		m.Connect(playerID, client.connID)

		go client.writePump()
		client.readPump(m, hub)
	}
}

func (c *Client) readPump(m *game.Manager, h *Hub) {
	defer func() {
		m.Disconnect(c.playerID, c.connID)
		h.remove(c)
		_ = c.conn.Close()

		log.Debug().Str("player", string(c.playerID)).Str("connection", string(c.connID)).Msg("websocket disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("player", string(c.playerID)).Msg("unexpected websocket close")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.Notify(c.connID, game.NewErrorMessage(fmt.Errorf("%w: malformed message", game.ErrValidation)))
			continue
		}

		if err := dispatch(m, c.playerID, msg); err != nil {
			log.Debug().Err(err).Str("player", string(c.playerID)).Str("command", msg.Type).Msg("command rejected")

			h.Notify(c.connID, game.NewErrorMessage(err))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch maps one client command onto the Manager. Unknown commands are
// ignored.
func dispatch(m *game.Manager, p game.PlayerID, msg ClientMessage) error {
	switch msg.Type {
	case "createRoom":
		_, err := m.CreateRoom(p, msg.Name)
		return err
	case "joinRoom":
		_, err := m.JoinRoom(p, msg.Code, msg.Name)
		return err
	case "leaveRoom":
		return m.LeaveRoom(p)
	case "setPool":
		return m.SetPool(p, msg.Words)
	case "setImpostorCount":
		return m.SetImpostorCount(p, int(msg.N))
	case "setVoteDuration":
		return m.SetVoteDuration(p, int(msg.Seconds))
	case "startGame":
		return m.StartGame(p)
	case "requestRole":
		return m.RequestRole(p)
	case "startVote":
		return m.StartVote(p)
	case "castVote":
		return m.CastVote(p, game.PlayerID(msg.TargetID))
	case "endVote":
		return m.EndVote(p)
	case "reveal":
		return m.Reveal(p)
	case "finalizeRound":
		return m.FinalizeRound(p)
	case "kick":
		return m.KickPlayer(p, game.PlayerID(msg.TargetID))
	default:
		return nil
	}
}

// qrHandler renders a PNG QR code of the join link for a live room.
func qrHandler(cfg *Config, m *game.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := game.NormalizeCode(ps.ByName("code"))
		if _, ok := m.Room(code); !ok {
			http.Error(w, "no such room", http.StatusNotFound)
			return
		}

		scheme := cfg.scheme()
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		link := scheme + "://" + r.Host + cfg.prefix + "/room/" + code

		const qrSize = 320
		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}

// registerImpostorGame sets up routes so that:
//   - /ws              → WebSocket carrying every game command
//   - /room/:code/qr   → PNG QR code for that room's link
func registerImpostorGame(cfg *Config, m *game.Manager, hub *Hub, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, m, hub))

	mux.GET(cfg.prefix+"/room/:code/qr", qrHandler(cfg, m))

	log.Debug().Str("prefix", cfg.prefix).Msg("registered game routes")
}
