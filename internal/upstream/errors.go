package upstream

import "fmt"

// Error carries the upstream status and body verbatim so callers can
// diagnose against bexio's own documentation.
type Error struct {
	Status int
	Body   []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, truncate(e.Body, 256))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
