package chat

import (
	"fmt"
	"time"

	"github.com/rexlx/vexmarket/internal"
)

// Group is a run of consecutive messages by one author on one local day.
// Only the last message of a group shows its time.
type Group struct {
	AuthorID int64
	Day      time.Time // local midnight
	// NewDay is set on the first group of each day; a date separator is
	// drawn above it.
	NewDay   bool
	Messages []internal.Message
}

// Last is the message that carries the group's timestamp.
func (g Group) Last() internal.Message {
	return g.Messages[len(g.Messages)-1]
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// GroupMessages splits msgs, which must already be in order, into display
// groups using calendar days in loc.
func GroupMessages(msgs []internal.Message, loc *time.Location) []Group {
	if loc == nil {
		loc = time.Local
	}
	var (
		groups []Group
		cur    *Group
	)
	for _, m := range msgs {
		day := dayOf(m.Time(), loc)
		if cur == nil || cur.AuthorID != m.AuthorID || !cur.Day.Equal(day) {
			groups = append(groups, Group{
				AuthorID: m.AuthorID,
				Day:      day,
				NewDay:   cur == nil || !cur.Day.Equal(day),
			})
			cur = &groups[len(groups)-1]
		}
		cur.Messages = append(cur.Messages, m)
	}
	return groups
}

// DayLabel formats a separator, e.g. "March 3rd, 2024".
func DayLabel(t time.Time) string {
	return fmt.Sprintf("%s %d%s, %d", t.Month(), t.Day(), ordinal(t.Day()), t.Year())
}

// TimeLabel formats a group's time, e.g. "4:05 PM".
func TimeLabel(t time.Time) string {
	return t.Format("3:04 PM")
}

func ordinal(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}
