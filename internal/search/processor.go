package search

import "errors"

// ErrEmptyQuery is returned when a query names no post-ids.
var ErrEmptyQuery = errors.New("query must contain at least one post id")

// ProcessQuery validates the input post-ids and returns them with duplicates
// removed, in first-seen order.
func ProcessQuery(postIDs []uint32) ([]uint32, error) {
	if len(postIDs) == 0 {
		return nil, ErrEmptyQuery
	}
	seen := make(map[uint32]struct{}, len(postIDs))
	out := make([]uint32, 0, len(postIDs))
	for _, id := range postIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
