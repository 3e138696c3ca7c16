// Package realtime keeps one authenticated websocket open to the chat
// server and fans its events out to subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/logging"
	"github.com/rexlx/vexmarket/internal/session"
)

// DefaultReconnectDelay is how long the channel waits before re-creating a
// dropped or replaced connection.
const DefaultReconnectDelay = time.Second

// Event is one of Connected, Disconnected or ChatReceived.
type Event interface{ isEvent() }

// Connected fires when a new connection is open, before authentication.
type Connected struct{}

// Disconnected fires when the server side drops the connection or a dial
// fails. A reconnect is already scheduled when it is delivered.
type Disconnected struct{ Err error }

// ChatReceived carries an inbound chat frame.
type ChatReceived struct {
	Chat     internal.ChatEvent
	Received time.Time
}

func (Connected) isEvent()    {}
func (Disconnected) isEvent() {}
func (ChatReceived) isEvent() {}

type link struct {
	conn Conn
	gen  uint64
	wmu  sync.Mutex
}

func (l *link) write(f Frame) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return l.conn.WriteJSON(f)
}

// Channel owns the socket. At most one connection is current at a time
// and it is only ever replaced in swap.
type Channel struct {
	url    string
	dialer Dialer
	tokens TokenSource
	logger *slog.Logger
	delay  time.Duration
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// dialMu serialises connection attempts so a new dial never starts
	// while an older one may still produce a connection.
	dialMu sync.Mutex

	mu      sync.Mutex
	current *link
	gen     uint64
	state   internal.ConnState
	timer   *time.Timer
	closed  bool

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// Option customises a Channel.
type Option func(*Channel)

func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) { c.delay = d }
}

// New creates a disconnected channel. Nothing is dialled until Start.
func New(url string, dialer Dialer, tokens TokenSource, opts ...Option) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		url:    url,
		dialer: dialer,
		tokens: tokens,
		delay:  DefaultReconnectDelay,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = logging.OrDiscard(c.logger).With("component", "realtime")
	return c
}

// Start dials immediately.
func (c *Channel) Start() {
	c.schedule(0)
}

// Reconnect tears the current connection down and creates a new one after
// the reconnect delay.
func (c *Channel) Reconnect() {
	c.schedule(c.delay)
}

// FollowSession reconnects every time the login status flips, so the new
// connection authenticates as the new user.
func (c *Channel) FollowSession(s *session.Store) (cancel func()) {
	return s.Subscribe(func(prev, next internal.Session) {
		if prev.LoggedIn != next.LoggedIn {
			c.Reconnect()
		}
	})
}

// State is the connection lifecycle state.
func (c *Channel) State() internal.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops the channel for good. It does not publish Disconnected.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.swap(nil)
	c.state = internal.Disconnected
	c.mu.Unlock()

	c.cancel()
	return nil
}

// Subscribe delivers events to fn until cancel runs or ctx ends. fn runs
// on the channel's reader goroutine and must not block.
func (c *Channel) Subscribe(ctx context.Context, fn func(Event)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()

	remove := func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
	stop := context.AfterFunc(ctx, remove)
	return func() {
		stop()
		remove()
	}
}

func (c *Channel) publish(e Event) {
	c.subMu.Lock()
	fns := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

// swap installs next as the current connection, closing the previous one
// first. Callers hold c.mu.
func (c *Channel) swap(next *link) {
	if prev := c.current; prev != nil && prev != next {
		c.current = nil
		if err := prev.conn.Close(); err != nil {
			c.logger.Debug("closing previous connection", "gen", prev.gen, "error", err)
		}
	}
	c.current = next
}

func (c *Channel) schedule(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(d, c.connect)
}

func (c *Channel) connect() {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.swap(nil)
	c.state = internal.Connecting
	c.mu.Unlock()

	c.logger.Debug("dialing", "url", c.url, "gen", gen)
	conn, err := c.dialer.Dial(c.ctx, c.url)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.state = internal.Disconnected
		c.mu.Unlock()
		c.logger.Warn("dial failed", "error", err)
		c.publish(Disconnected{Err: err})
		c.schedule(c.delay)
		return
	}
	l := &link{conn: conn, gen: gen}
	c.swap(l)
	c.state = internal.Connected
	c.mu.Unlock()

	c.logger.Info("connected", "gen", gen)
	c.publish(Connected{})
	go c.authenticate(l)
	go c.read(l)
}

// setState changes the state only while l is still current.
func (c *Channel) setState(l *link, s internal.ConnState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != l {
		return false
	}
	c.state = s
	return true
}

func (c *Channel) authenticate(l *link) {
	if !c.setState(l, internal.Authenticating) {
		return
	}
	token, err := c.tokens.Token(c.ctx)
	if err != nil {
		// logged out users have no token; the connection stays anonymous
		c.logger.Debug("no socket token", "error", err)
		c.setState(l, internal.Connected)
		return
	}
	if exp, ok := expiry(token); ok {
		if !exp.After(c.now()) {
			c.logger.Warn("socket token already expired", "exp", exp)
			c.setState(l, internal.Connected)
			return
		}
		c.logger.Debug("socket token issued", "exp", exp)
	}

	data, _ := json.Marshal(authData{Token: token})
	if err := l.write(Frame{Event: eventAuth, Data: data}); err != nil {
		c.logger.Warn("sending auth", "error", err)
		c.lost(l, err)
		return
	}
	c.setState(l, internal.Authenticated)
}

func (c *Channel) read(l *link) {
	for {
		var f Frame
		if err := l.conn.ReadJSON(&f); err != nil {
			c.lost(l, err)
			return
		}
		switch f.Event {
		case eventChat:
			var ev internal.ChatEvent
			if err := json.Unmarshal(f.Data, &ev); err != nil {
				c.logger.Warn("bad chat frame", "error", err)
				continue
			}
			c.publish(ChatReceived{Chat: ev, Received: c.now()})
		default:
			c.logger.Debug("ignoring frame", "event", f.Event)
		}
	}
}

// lost handles a read error. Connections the client replaced or closed
// itself are no longer current and are ignored.
func (c *Channel) lost(l *link, err error) {
	c.mu.Lock()
	if c.current != l {
		c.mu.Unlock()
		return
	}
	c.swap(nil)
	c.state = internal.Disconnected
	c.mu.Unlock()

	c.logger.Info("disconnected", "gen", l.gen, "error", err)
	c.publish(Disconnected{Err: err})
	c.schedule(c.delay)
}
