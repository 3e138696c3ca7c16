package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/rexlx/vexmarket/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// socket is one connected client. uid stays 0 until an auth frame with a
// valid token arrives.
type socket struct {
	conn *websocket.Conn
	send chan realtime.Frame
	uid  atomic.Int64
	once sync.Once
}

func (c *socket) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

type hub struct {
	key    string
	logger *slog.Logger

	mu    sync.Mutex
	conns map[*socket]struct{}
}

func newHub(key string, logger *slog.Logger) *hub {
	return &hub{key: key, logger: logger, conns: make(map[*socket]struct{})}
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &socket{conn: conn, send: make(chan realtime.Frame, 64)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *hub) writeLoop(c *socket) {
	for f := range c.send {
		if err := c.conn.WriteJSON(f); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *hub) readLoop(c *socket) {
	defer h.drop(c)
	for {
		var f realtime.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Event != "auth" {
			continue
		}
		var body struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(f.Data, &body); err != nil {
			continue
		}
		uid, err := socketUser(body.Token, h.key)
		if err != nil {
			h.logger.Debug("socket auth rejected", "error", err)
			continue
		}
		c.uid.Store(uid)
		h.logger.Debug("socket authenticated", "user", uid)
	}
}

func (h *hub) drop(c *socket) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	c.close()
}

// push sends a frame to every socket authenticated as one of uids. Slow
// sockets lose frames rather than block the sender.
func (h *hub) push(event string, v any, uids ...int64) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("encoding frame", "error", err)
		return
	}
	f := realtime.Frame{Event: event, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		uid := c.uid.Load()
		if uid == 0 {
			continue
		}
		for _, want := range uids {
			if uid == want {
				select {
				case c.send <- f:
				default:
					h.logger.Warn("socket send buffer full", "user", uid)
				}
				break
			}
		}
	}
}

// dropAll closes every socket.
func (h *hub) dropAll() {
	h.mu.Lock()
	conns := make([]*socket, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*socket]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *hub) countFor(uid int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.conns {
		if c.uid.Load() == uid {
			n++
		}
	}
	return n
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
