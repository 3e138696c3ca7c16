package internal

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	offline := &TransportError{Action: "fetching listings", Err: errors.New("dial tcp: refused")}

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"transport", fmt.Errorf("search: %w", offline), "Something went wrong while fetching listings. Please try again later."},
		{"backend message is verbatim", fmt.Errorf("logging in: %w", &AppError{Status: 401, Message: "Invalid email or password"}), "Invalid email or password"},
		{"validation", &ValidationError{Problems: []string{"Title is required", "Location must be set"}}, "Title is required\nLocation must be set"},
		{"forbidden", fmt.Errorf("editing listing 3: %w", ErrForbidden), "You do not have permissions to do that."},
		{"joined", errors.Join(&AppError{Status: 500, Message: "Listing not found"}, offline), "Listing not found\nSomething went wrong while fetching listings. Please try again later."},
		{"plain", errors.New("boom"), "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Describe(tc.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", &TransportError{})))
	assert.False(t, Retryable(&AppError{Status: 404, Message: "Listing not found"}))
	assert.False(t, Retryable(nil))
}

func TestEventMessageStampsMissingTime(t *testing.T) {
	text := "hi"
	got := ChatEvent{MessageID: 7, AuthorID: 2, Text: &text}.Message(time.UnixMilli(1_700_000_000_000))
	assert.Equal(t, int64(1_700_000_000_000), got.Timestamp)
	assert.Equal(t, "hi", got.Body())
	assert.False(t, got.IsImage())
}
