package chat

import (
	"cmp"
	"slices"

	"github.com/rexlx/vexmarket/internal"
)

// Merge returns the union of cur and incoming by id, sorted ascending.
// When an id appears twice the copy already in cur wins, so merging a page
// that is already held changes nothing.
//
// The whole list is re-sorted on every call. Conversations are small
// enough that this has not mattered.
func Merge(cur, incoming []internal.Message) []internal.Message {
	seen := make(map[int64]struct{}, len(cur)+len(incoming))
	out := make([]internal.Message, 0, len(cur)+len(incoming))
	for _, batch := range [][]internal.Message{cur, incoming} {
		for _, m := range batch {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b internal.Message) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
