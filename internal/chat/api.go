package chat

import (
	"context"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/gateway"
)

// MaxMessageLength is the longest text message the backend accepts.
const MaxMessageLength = 2000

// Client is the conversation list and the send side of messaging.
type Client struct {
	req gateway.Requester
}

func NewClient(req gateway.Requester) *Client {
	return &Client{req: req}
}

// List returns the user's conversations, most recent first as the backend
// orders them.
func (c *Client) List(ctx context.Context) ([]internal.ChatSummary, error) {
	res := c.req.Send(ctx, http.MethodGet, "/messages", nil)
	if err := res.Failure("fetching your messages"); err != nil {
		return nil, err
	}
	var body struct {
		Chats []internal.ChatSummary `json:"chats"`
	}
	if err := res.Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding chats: %w", err)
	}
	return body.Chats, nil
}

func checkText(text string) error {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return &internal.ValidationError{Problems: []string{"Message is required"}}
	}
	if n > MaxMessageLength {
		return &internal.ValidationError{Problems: []string{fmt.Sprintf("Message must be %d characters or less", MaxMessageLength)}}
	}
	return nil
}

// Start opens a conversation about a listing and returns its id.
func (c *Client) Start(ctx context.Context, postID int64, text string) (int64, error) {
	if err := checkText(text); err != nil {
		return 0, err
	}
	res := c.req.Send(ctx, http.MethodPost, "/messages", map[string]any{
		"postId":         postID,
		"initialMessage": text,
	})
	if err := res.Failure("sending your message"); err != nil {
		return 0, err
	}
	var body struct {
		ChatID int64 `json:"chatId"`
	}
	if err := res.Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding chat id: %w", err)
	}
	return body.ChatID, nil
}

// Send posts a text message. It arrives back over the socket.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if err := checkText(text); err != nil {
		return err
	}
	res := c.req.Send(ctx, http.MethodPost, fmt.Sprintf("/messages/%d", chatID), map[string]string{"message": text})
	return res.Failure("sending your message")
}

// SendImage uploads one image into the conversation.
func (c *Client) SendImage(ctx context.Context, chatID int64, name string, data []byte) error {
	res := c.req.SendFile(ctx, fmt.Sprintf("/messages/%d/image", chatID), name, data)
	return res.Failure("sending your image")
}

// MarkRead clears the unread flag of a conversation.
func (c *Client) MarkRead(ctx context.Context, chatID int64) error {
	res := c.req.Send(ctx, http.MethodPost, fmt.Sprintf("/messages/%d/read", chatID), nil)
	return res.Failure("updating your messages")
}
