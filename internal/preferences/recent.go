package preferences

import "strings"

// PushRecent moves topic to the front of a most-recent-first list, removing
// any case-insensitive duplicate, and evicts from the tail beyond capacity.
// The input slice is not modified.
func PushRecent(recent []string, topic string, capacity int) []string {
	topic = strings.TrimSpace(topic)
	if capacity < 1 {
		capacity = 1
	}
	out := make([]string, 0, min(len(recent)+1, capacity))
	if topic != "" {
		out = append(out, topic)
	}
	for _, t := range recent {
		if len(out) >= capacity {
			break
		}
		if topic != "" && strings.EqualFold(t, topic) {
			continue
		}
		out = append(out, t)
	}
	return out
}
