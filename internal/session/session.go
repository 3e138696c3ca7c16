// Package session holds the authenticated user for the life of the client.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/gateway"
	"github.com/rexlx/vexmarket/internal/logging"
)

// DefaultTitle is the window title when a page has none of its own.
const DefaultTitle = "VEX Market"

// ChangeFunc observes a session transition.
type ChangeFunc func(prev, next internal.Session)

// Store is the single writer of the session. Readers take copies.
type Store struct {
	req    gateway.Requester
	logger *slog.Logger

	mu     sync.RWMutex
	cur    internal.Session
	loaded bool

	subMu  sync.Mutex
	subs   map[int]ChangeFunc
	nextID int
}

// New returns a store in the loading state.
func New(req gateway.Requester, logger *slog.Logger) *Store {
	return &Store{
		req:    req,
		logger: logging.OrDiscard(logger),
		subs:   make(map[int]ChangeFunc),
	}
}

type identity struct {
	UserID        *int64  `json:"userId"`
	FirstName     *string `json:"firstName"`
	LastName      *string `json:"lastName"`
	Email         *string `json:"email"`
	Notifications *int    `json:"notifications"`
}

// Refresh asks the backend who is logged in. Any failure resets the
// session to logged out. The returned error is informational; the store
// is always left in a consistent state.
func (s *Store) Refresh(ctx context.Context) error {
	res := s.req.Send(ctx, http.MethodGet, "/auth/user", nil)

	var (
		next internal.Session
		err  error
	)
	if ferr := res.Failure("loading your account"); ferr != nil {
		err = ferr
	} else {
		var id identity
		if derr := res.Decode(&id); derr != nil {
			err = fmt.Errorf("decoding identity: %w", derr)
		} else {
			next = internal.Session{
				LoggedIn:    true,
				UserID:      id.UserID,
				FirstName:   id.FirstName,
				LastName:    id.LastName,
				Email:       id.Email,
				UnreadCount: id.Notifications,
			}
		}
	}
	if err != nil {
		s.logger.Debug("identity refresh failed", "error", err)
	}

	s.mu.Lock()
	prev := s.cur
	s.cur = next
	s.loaded = true
	s.mu.Unlock()

	s.publish(prev, next)
	return err
}

// RefreshNotifications updates only the unread count. A failed call
// leaves it at zero rather than stale.
func (s *Store) RefreshNotifications(ctx context.Context) {
	res := s.req.Send(ctx, http.MethodGet, "/auth/user/notifications", nil)

	count := 0
	if res.Success() {
		var body struct {
			Notifications int `json:"notifications"`
		}
		if err := res.Decode(&body); err == nil {
			count = body.Notifications
		}
	} else {
		s.logger.Debug("notification refresh failed", "status", res.Status, "error", res.Err)
	}

	s.mu.Lock()
	if !s.cur.LoggedIn {
		s.mu.Unlock()
		return
	}
	prev := s.cur.Clone()
	s.cur.UnreadCount = &count
	next := s.cur.Clone()
	s.mu.Unlock()

	s.publish(prev, next)
}

// Loaded is false until the first Refresh completes.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Current returns a copy of the session.
func (s *Store) Current() internal.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Clone()
}

// UserID is the logged in user's id, or 0.
func (s *Store) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur.UserID == nil {
		return 0
	}
	return *s.cur.UserID
}

// Unread is the number of unread conversations.
func (s *Store) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur.UnreadCount == nil {
		return 0
	}
	return *s.cur.UnreadCount
}

// Subscribe registers fn for every change. The returned func removes it.
func (s *Store) Subscribe(fn ChangeFunc) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) publish(prev, next internal.Session) {
	s.subMu.Lock()
	fns := make([]ChangeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(prev.Clone(), next.Clone())
	}
}

// Title is the window title for page, prefixed with the unread count when
// there is one.
func (s *Store) Title(page string) string {
	if page == "" {
		page = DefaultTitle
	}
	if n := s.Unread(); n > 0 {
		return fmt.Sprintf("(%d) %s", n, page)
	}
	return page
}

// LoginRedirect is where a protected view at path sends a logged out user.
func LoginRedirect(path string) string {
	return "/auth/login?to=" + url.QueryEscape(path)
}
