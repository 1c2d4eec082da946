package redisx

import "fmt"

const ns = "nganya:v1"

func KeyEventsList() string {
	return ns + ":events:list"
}

func KeyEvent(eventID string) string {
	return fmt.Sprintf("%s:event:%s", ns, eventID)
}

// KeyRateLimit is the prefix the sliding-window limiter builds its
// per-client keys under.
func KeyRateLimit() string {
	return ns + ":rl"
}
