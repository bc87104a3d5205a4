// Package audit records application events to a persistent log that admins
// can browse from the dashboard. Recording is best-effort: a failure to
// write an entry is logged and swallowed, never surfaced to the caller.
package audit

import "time"

// Level classifies the severity of an audit entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// Entry is one audit log record. Username is joined from the users table at
// read time; it is empty when the actor's account has since been deleted.
type Entry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	UserID    *string   `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Level     Level     `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}
