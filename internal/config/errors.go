package config

import "fmt"

// Error reports a missing or invalid configuration variable. It is fatal:
// the server refuses to start.
type Error struct {
	Name   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Name, e.Reason)
}
