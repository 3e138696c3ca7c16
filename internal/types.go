package internal

import (
	"encoding/json"
	"time"
)

// PageSize is the number of messages the backend returns per history page.
const PageSize = 25

// Session is the authenticated user as reported by the identity endpoint.
// When LoggedIn is false every other field is nil.
type Session struct {
	LoggedIn    bool    `json:"loggedIn"`
	UserID      *int64  `json:"userId"`
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Email       *string `json:"email"`
	UnreadCount *int    `json:"notifications"`
}

// Clone returns a deep copy so callers can hold it without sharing pointers.
func (s Session) Clone() Session {
	out := Session{LoggedIn: s.LoggedIn}
	if s.UserID != nil {
		v := *s.UserID
		out.UserID = &v
	}
	if s.FirstName != nil {
		v := *s.FirstName
		out.FirstName = &v
	}
	if s.LastName != nil {
		v := *s.LastName
		out.LastName = &v
	}
	if s.Email != nil {
		v := *s.Email
		out.Email = &v
	}
	if s.UnreadCount != nil {
		v := *s.UnreadCount
		out.UnreadCount = &v
	}
	return out
}

// ConnState is the lifecycle of the realtime connection.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Authenticating
	Authenticated
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Message is one entry of a conversation. Ids are assigned by the backend
// and increase within a chat.
type Message struct {
	ID        int64   `json:"id"`
	AuthorID  int64   `json:"authorId"`
	Timestamp int64   `json:"timestamp"` // unix millis
	Text      *string `json:"message"`
	ImageURL  *string `json:"image"`
}

// Time converts the millisecond timestamp.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Body is the rendered payload: the image if present, otherwise the text.
func (m Message) Body() string {
	if m.ImageURL != nil && *m.ImageURL != "" {
		return *m.ImageURL
	}
	if m.Text != nil {
		return *m.Text
	}
	return ""
}

// IsImage reports whether the image is the rendered payload.
func (m Message) IsImage() bool {
	return m.ImageURL != nil && *m.ImageURL != ""
}

// ChatInfo is the conversation header returned with every history page.
type ChatInfo struct {
	ChatID           int64   `json:"chatId"`
	PostID           *int64  `json:"postId"`
	PostTitle        *string `json:"postName"`
	PostArchived     *bool   `json:"postArchived"`
	CounterpartyName string  `json:"recipientName"`
}

// ChatSummary is one row of the messages list.
type ChatSummary struct {
	ChatID           int64   `json:"chatId"`
	PostID           *int64  `json:"postId"`
	PostTitle        *string `json:"postName"`
	CounterpartyName string  `json:"recipientName"`
	LastMessage      *string `json:"lastMessage"`
	LastTimestamp    int64   `json:"lastTimestamp"`
	Unread           bool    `json:"unread"`
}

// ChatEvent is the payload of an inbound "chat" socket frame.
type ChatEvent struct {
	MessageID  int64   `json:"id"`
	ChatID     int64   `json:"chatId"`
	ChatTitle  string  `json:"chatTitle"`
	AuthorID   int64   `json:"authorId"`
	AuthorName string  `json:"authorName"`
	Text       *string `json:"message"`
	ImageURL   *string `json:"image"`
	Timestamp  int64   `json:"timestamp"`
}

// Message converts the event into a conversation entry. Events pushed
// without a timestamp are stamped with the receive time.
func (e ChatEvent) Message(received time.Time) Message {
	ts := e.Timestamp
	if ts == 0 {
		ts = received.UnixMilli()
	}
	return Message{
		ID:        e.MessageID,
		AuthorID:  e.AuthorID,
		Timestamp: ts,
		Text:      e.Text,
		ImageURL:  e.ImageURL,
	}
}

// Preview is the short text shown in a notification.
func (e ChatEvent) Preview() string {
	if e.ImageURL != nil && *e.ImageURL != "" {
		return "Sent an image"
	}
	if e.Text == nil {
		return ""
	}
	const max = 120
	r := []rune(*e.Text)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return *e.Text
}

// DeliveryType is how a listed item changes hands.
type DeliveryType string

const (
	DeliveryLocal    DeliveryType = "local"
	DeliveryShipping DeliveryType = "shipping"
	DeliveryBoth     DeliveryType = "both"
)

// Listing is a marketplace post as returned by the backend.
type Listing struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Price       json.Number  `json:"price"`
	Type        DeliveryType `json:"type"`
	Condition   string       `json:"condition"`
	ZipFriendly string       `json:"zipFriendly"`
	Images      []string     `json:"images"`
	AuthorID    int64        `json:"authorId"`
	Archived    bool         `json:"archived"`
}

// Notice is a transient notification for a message in a conversation the
// user is not looking at.
type Notice struct {
	ChatID int64
	Title  string
	Body   string
}
