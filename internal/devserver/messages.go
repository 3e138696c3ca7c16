package devserver

import (
	"cmp"
	"net/http"
	"slices"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rexlx/vexmarket/internal"
)

type chat struct {
	ID       int64
	PostID   int64
	BuyerID  int64
	SellerID int64
	Messages []internal.Message
	lastRead map[int64]int64
}

func (c *chat) has(uid int64) bool {
	return uid == c.BuyerID || uid == c.SellerID
}

func (c *chat) other(uid int64) int64 {
	if uid == c.BuyerID {
		return c.SellerID
	}
	return c.BuyerID
}

func (c *chat) last() (internal.Message, bool) {
	if len(c.Messages) == 0 {
		return internal.Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

func (c *chat) unreadBy(uid int64) bool {
	m, found := c.last()
	return found && m.AuthorID != uid && m.ID > c.lastRead[uid]
}

// unread counts the conversations with messages uid has not seen.
func (s *Server) unread(uid int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.chats {
		if c.has(uid) && c.unreadBy(uid) {
			n++
		}
	}
	return n
}

// Callers hold mu.
func (s *Server) fullName(uid int64) string {
	u, found := s.users[uid]
	if !found {
		return "Deleted user"
	}
	return u.FirstName + " " + u.LastName
}

// Callers hold mu.
func (s *Server) postTitle(c *chat) (*int64, *string, *bool) {
	l, found := s.listings[c.PostID]
	if !found {
		return nil, nil, nil
	}
	id, title, archived := l.ID, l.Title, l.Archived
	return &id, &title, &archived
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	uid := GetUserFromContext(r.Context()).ID

	s.mu.RLock()
	out := []internal.ChatSummary{}
	for _, c := range s.chats {
		if !c.has(uid) {
			continue
		}
		postID, title, _ := s.postTitle(c)
		sum := internal.ChatSummary{
			ChatID:           c.ID,
			PostID:           postID,
			PostTitle:        title,
			CounterpartyName: s.fullName(c.other(uid)),
			Unread:           c.unreadBy(uid),
		}
		if m, found := c.last(); found {
			preview := m.Body()
			if m.IsImage() {
				preview = "Sent an image"
			}
			sum.LastMessage = &preview
			sum.LastTimestamp = m.Timestamp
		}
		out = append(out, sum)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b internal.ChatSummary) int {
		return cmp.Compare(b.LastTimestamp, a.LastTimestamp)
	})
	ok(w, map[string]any{"chats": out})
}

func checkMessage(w http.ResponseWriter, text string) bool {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		fail(w, http.StatusBadRequest, "Message is required")
		return false
	}
	if n > 2000 {
		fail(w, http.StatusBadRequest, "Message must be 2000 characters or less")
		return false
	}
	return true
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PostID         int64  `json:"postId"`
		InitialMessage string `json:"initialMessage"`
	}
	if !decode(w, r, &in) || !checkMessage(w, in.InitialMessage) {
		return
	}
	u := GetUserFromContext(r.Context())

	s.mu.Lock()
	l, found := s.listings[in.PostID]
	if !found || l.Archived {
		s.mu.Unlock()
		fail(w, http.StatusNotFound, "Listing not found")
		return
	}
	if l.AuthorID == u.ID {
		s.mu.Unlock()
		fail(w, http.StatusBadRequest, "You cannot message yourself")
		return
	}
	var c *chat
	for _, existing := range s.chats {
		if existing.PostID == in.PostID && existing.BuyerID == u.ID {
			c = existing
			break
		}
	}
	if c == nil {
		c = &chat{ID: s.id(), PostID: in.PostID, BuyerID: u.ID, SellerID: l.AuthorID, lastRead: make(map[int64]int64)}
		s.chats[c.ID] = c
	}
	text := in.InitialMessage
	ev, to := s.appendMessage(c, u, &text, nil)
	s.mu.Unlock()

	s.hub.push("chat", ev, to...)
	ok(w, map[string]any{"chatId": c.ID})
}

// appendMessage records a message from author and builds the socket event
// for both participants. Callers hold mu.
func (s *Server) appendMessage(c *chat, author User, text, image *string) (internal.ChatEvent, []int64) {
	m := internal.Message{
		ID:        s.id(),
		AuthorID:  author.ID,
		Timestamp: time.Now().UnixMilli(),
		Text:      text,
		ImageURL:  image,
	}
	c.Messages = append(c.Messages, m)
	c.lastRead[author.ID] = m.ID

	title := ""
	if _, t, _ := s.postTitle(c); t != nil {
		title = *t
	}
	ev := internal.ChatEvent{
		MessageID:  m.ID,
		ChatID:     c.ID,
		ChatTitle:  title,
		AuthorID:   author.ID,
		AuthorName: author.FirstName,
		Text:       text,
		ImageURL:   image,
		Timestamp:  m.Timestamp,
	}
	return ev, []int64{c.BuyerID, c.SellerID}
}

// member runs fn on chat id with the lock held, after checking that the
// session user takes part in it.
func (s *Server) member(w http.ResponseWriter, r *http.Request, fn func(c *chat, u User)) {
	id, valid := pathID(w, r)
	if !valid {
		return
	}
	u := GetUserFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()
	c, found := s.chats[id]
	if !found {
		fail(w, http.StatusNotFound, "Chat not found")
		return
	}
	if !c.has(u.ID) {
		fail(w, http.StatusForbidden, "You do not have permissions to do that")
		return
	}
	fn(c, u)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var before int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			fail(w, http.StatusBadRequest, "Invalid cursor")
			return
		}
		before = n
	}
	s.member(w, r, func(c *chat, u User) {
		end := len(c.Messages)
		if before > 0 {
			end, _ = slices.BinarySearchFunc(c.Messages, before, func(m internal.Message, id int64) int {
				return cmp.Compare(m.ID, id)
			})
		}
		start := max(0, end-internal.PageSize)
		page := slices.Clone(c.Messages[start:end])
		if page == nil {
			page = []internal.Message{}
		}
		postID, title, archived := s.postTitle(c)
		ok(w, map[string]any{
			"chatId":        c.ID,
			"postId":        postID,
			"postName":      title,
			"postArchived":  archived,
			"recipientName": s.fullName(c.other(u.ID)),
			"messages":      page,
		})
	})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Message string `json:"message"`
	}
	if !decode(w, r, &in) || !checkMessage(w, in.Message) {
		return
	}
	var (
		ev   internal.ChatEvent
		to   []int64
		sent bool
	)
	s.member(w, r, func(c *chat, u User) {
		ev, to = s.appendMessage(c, u, &in.Message, nil)
		sent = true
		ok(w, nil)
	})
	if sent {
		s.hub.push("chat", ev, to...)
	}
}

func (s *Server) handleSendImage(w http.ResponseWriter, r *http.Request) {
	name, data, valid := readUpload(w, r)
	if !valid {
		return
	}
	var (
		ev   internal.ChatEvent
		to   []int64
		sent bool
	)
	s.member(w, r, func(c *chat, u User) {
		s.images[name] = data
		url := "/images/" + name
		ev, to = s.appendMessage(c, u, nil, &url)
		sent = true
		ok(w, nil)
	})
	if sent {
		s.hub.push("chat", ev, to...)
	}
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	s.member(w, r, func(c *chat, u User) {
		if m, found := c.last(); found {
			c.lastRead[u.ID] = m.ID
		}
		ok(w, nil)
	})
}
