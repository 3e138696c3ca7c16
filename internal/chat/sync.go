// Package chat keeps the messages of open conversations in order and talks
// to the messaging endpoints.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/gateway"
	"github.com/rexlx/vexmarket/internal/logging"
)

// DefaultSettle is how long to wait for layout before scrolling.
const DefaultSettle = 50 * time.Millisecond

// Viewport is the scrollable list a conversation is drawn in.
type Viewport interface {
	AtBottom() bool
	ScrollToBottom()
}

// Snapshot is a consistent view of a conversation.
type Snapshot struct {
	Info     internal.ChatInfo
	Messages []internal.Message
	HasMore  bool
	Loaded   bool
	Loading  bool
	Err      error
}

// Synchronizer owns the message list of one open conversation. History
// pages and live pushes all go through Merge, so arrival order does not
// matter.
type Synchronizer struct {
	chatID   int64
	req      gateway.Requester
	logger   *slog.Logger
	settle   time.Duration
	view     Viewport
	onChange func()

	mu      sync.Mutex
	info    internal.ChatInfo
	msgs    []internal.Message
	hasMore bool
	loaded  bool
	loading bool
	err     error
	closed  bool
}

// SyncOption customises a Synchronizer.
type SyncOption func(*Synchronizer)

func WithViewport(v Viewport) SyncOption {
	return func(s *Synchronizer) { s.view = v }
}

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) SyncOption {
	return func(s *Synchronizer) { s.settle = d }
}

// OnChange is called after every state change, outside the lock.
func OnChange(fn func()) SyncOption {
	return func(s *Synchronizer) { s.onChange = fn }
}

func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(s *Synchronizer) { s.logger = l }
}

// NewSynchronizer returns an empty conversation for chatID.
func NewSynchronizer(req gateway.Requester, chatID int64, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		chatID: chatID,
		req:    req,
		settle: DefaultSettle,
		info:   internal.ChatInfo{ChatID: chatID},
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = logging.OrDiscard(s.logger).With("chat", chatID)
	return s
}

// ChatID is the conversation this synchronizer serves.
func (s *Synchronizer) ChatID() int64 { return s.chatID }

// Snapshot copies the current state. A conversation in the error state
// exposes no messages.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Info:    s.info,
		HasMore: s.hasMore,
		Loaded:  s.loaded,
		Loading: s.loading,
		Err:     s.err,
	}
	if s.err == nil {
		snap.Messages = append([]internal.Message(nil), s.msgs...)
	}
	return snap
}

// Messages is Snapshot().Messages.
func (s *Synchronizer) Messages() []internal.Message {
	return s.Snapshot().Messages
}

// HasMore reports whether the last history page was full.
func (s *Synchronizer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Oldest is the id to pass to LoadOlder, or 0 when nothing is loaded.
func (s *Synchronizer) Oldest() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return 0
	}
	return s.msgs[0].ID
}

// Groups splits the current messages for display.
func (s *Synchronizer) Groups(loc *time.Location) []Group {
	return GroupMessages(s.Messages(), loc)
}

// Close detaches the synchronizer from its view. Late results are dropped.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type history struct {
	PostName      *string            `json:"postName"`
	PostID        *int64             `json:"postId"`
	PostArchived  *bool              `json:"postArchived"`
	RecipientName string             `json:"recipientName"`
	Messages      []internal.Message `json:"messages"`
}

func (s *Synchronizer) fetch(ctx context.Context, before int64) (history, error) {
	path := fmt.Sprintf("/messages/%d", s.chatID)
	if before > 0 {
		path = fmt.Sprintf("%s?before=%d", path, before)
	}
	res := s.req.Send(ctx, http.MethodGet, path, nil)
	if err := res.Failure("fetching your messages"); err != nil {
		return history{}, err
	}
	var h history
	if err := res.Decode(&h); err != nil {
		return history{}, fmt.Errorf("decoding messages: %w", err)
	}
	return h, nil
}

// LoadInitial fetches the newest page and merges it in.
func (s *Synchronizer) LoadInitial(ctx context.Context) error {
	return s.load(ctx, 0)
}

// LoadOlder fetches the page before beforeID and merges it in.
func (s *Synchronizer) LoadOlder(ctx context.Context, beforeID int64) error {
	return s.load(ctx, beforeID)
}

func (s *Synchronizer) load(ctx context.Context, before int64) error {
	if !s.begin() {
		return nil
	}
	h, err := s.fetch(ctx, before)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return err
	}
	s.loading = false
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.logger.Warn("loading messages", "before", before, "error", err)
		s.changed()
		return err
	}
	s.err = nil
	s.loaded = true
	s.info = internal.ChatInfo{
		ChatID:           s.chatID,
		PostID:           h.PostID,
		PostTitle:        h.PostName,
		PostArchived:     h.PostArchived,
		CounterpartyName: h.RecipientName,
	}
	// pushes that landed while the page was in flight stay in the list
	s.msgs = Merge(s.msgs, h.Messages)
	s.hasMore = len(h.Messages) == internal.PageSize
	s.mu.Unlock()

	s.changed()
	if before == 0 {
		s.scrollLater()
	}
	return nil
}

func (s *Synchronizer) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.loading = true
	return true
}

// ReceiveLive merges a pushed message. The view follows it only if it was
// already at the bottom.
func (s *Synchronizer) ReceiveLive(m internal.Message) {
	follow := s.view != nil && s.view.AtBottom()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.msgs = Merge(s.msgs, []internal.Message{m})
	s.mu.Unlock()

	s.changed()
	if follow {
		s.scrollLater()
	}
}

func (s *Synchronizer) scrollLater() {
	if s.view == nil {
		return
	}
	time.AfterFunc(s.settle, func() {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.view.ScrollToBottom()
		}
	})
}

func (s *Synchronizer) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
