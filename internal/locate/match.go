package locate

import (
	"errors"
	"strings"
)

var (
	// ErrNoMessages reports a scan that found no marker elements at all.
	ErrNoMessages = errors.New("no messages found on page")

	// ErrNotFound reports that marker elements exist but none matches the target.
	ErrNotFound = errors.New("message not found on current page")
)

// Match picks the element text that best identifies target: the first exact
// match after trimming both sides, otherwise the first text containing target.
func Match(texts []string, target string) (int, error) {
	if len(texts) == 0 {
		return -1, ErrNoMessages
	}

	want := strings.TrimSpace(target)
	trimmed := make([]string, len(texts))
	for i, t := range texts {
		trimmed[i] = strings.TrimSpace(t)
		if trimmed[i] == want {
			return i, nil
		}
	}
	for i, t := range trimmed {
		if strings.Contains(t, want) {
			return i, nil
		}
	}
	return -1, ErrNotFound
}
