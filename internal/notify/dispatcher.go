// Package notify decides what happens to each chat message pushed over the
// realtime channel.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/logging"
	"github.com/rexlx/vexmarket/internal/realtime"
)

// Session is the part of the session store the dispatcher needs.
type Session interface {
	UserID() int64
	RefreshNotifications(ctx context.Context)
}

// ReadMarker clears a conversation's unread flag on the backend.
type ReadMarker interface {
	MarkRead(ctx context.Context, chatID int64) error
}

// Sink receives live messages for the conversation on screen.
// *chat.Synchronizer is one.
type Sink interface {
	ReceiveLive(internal.Message)
}

// Dispatcher applies the notification policy to chat events:
// messages for the open conversation go to its sink and are marked read,
// anything else refreshes the unread count and raises a Notice. The user's
// own messages never notify.
type Dispatcher struct {
	session Session
	reads   ReadMarker
	toast   func(internal.Notice)
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	active *view
	wg     sync.WaitGroup
}

type view struct {
	chatID int64
	sink   Sink
}

// New builds a dispatcher. toast may be nil when nothing can show notices.
func New(s Session, reads ReadMarker, toast func(internal.Notice), logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		session: s,
		reads:   reads,
		toast:   toast,
		logger:  logging.OrDiscard(logger).With("component", "notify"),
		timeout: 15 * time.Second,
	}
}

// Attach subscribes the dispatcher to ch until cancel runs or ctx ends.
func (d *Dispatcher) Attach(ctx context.Context, ch *realtime.Channel) (cancel func()) {
	return ch.Subscribe(ctx, d.Handle)
}

// Open marks chatID as the conversation on screen. The returned func
// clears it, unless another conversation has been opened since.
func (d *Dispatcher) Open(chatID int64, sink Sink) (closeView func()) {
	v := &view{chatID: chatID, sink: sink}
	d.mu.Lock()
	d.active = v
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		if d.active == v {
			d.active = nil
		}
		d.mu.Unlock()
	}
}

// ActiveChat is the open conversation, or 0.
func (d *Dispatcher) ActiveChat() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return 0
	}
	return d.active.chatID
}

// Handle is the realtime subscriber. Network follow-ups run in the
// background so the socket reader is never blocked.
func (d *Dispatcher) Handle(e realtime.Event) {
	switch e := e.(type) {
	case realtime.ChatReceived:
		d.chat(e)
	case realtime.Disconnected:
		d.logger.Debug("channel dropped", "error", e.Err)
	}
}

func (d *Dispatcher) chat(e realtime.ChatReceived) {
	ev := e.Chat
	msg := ev.Message(e.Received)

	d.mu.Lock()
	active := d.active
	d.mu.Unlock()
	open := active != nil && active.chatID == ev.ChatID

	if ev.AuthorID == d.session.UserID() {
		if open {
			active.sink.ReceiveLive(msg)
		}
		return
	}

	if open {
		active.sink.ReceiveLive(msg)
		d.background(func(ctx context.Context) {
			if err := d.reads.MarkRead(ctx, ev.ChatID); err != nil {
				d.logger.Warn("marking chat read", "chat", ev.ChatID, "error", err)
			}
			d.session.RefreshNotifications(ctx)
		})
		return
	}

	d.background(d.session.RefreshNotifications)
	if d.toast != nil {
		title := ev.ChatTitle
		if title == "" {
			title = ev.AuthorName
		}
		d.toast(internal.Notice{ChatID: ev.ChatID, Title: title, Body: ev.Preview()})
	}
}

func (d *Dispatcher) background(fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until background follow-ups finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
