// Package presence tracks which users currently hold an open WebSocket
// connection and broadcasts the online-user list to every client whenever it
// changes. The state is process-local and rebuilt empty on restart; a user
// is online as long as at least one of their connections is open.
package presence

import (
	"sort"
	"sync"
	"time"
)

// writeTimeout bounds each broadcast write. A client that stops reading must
// not hold the tracker mutex hostage through a full TCP send buffer.
const writeTimeout = 5 * time.Second

// Conn is the slice of a websocket connection the tracker needs. Satisfied
// by *websocket.Conn.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// onlineMessage is the payload pushed to every client on join and leave.
type onlineMessage struct {
	Online []string `json:"online"`
}

// Tracker maintains the userID -> connection-set map behind a mutex. It is
// constructed once in app bootstrap and injected where needed; Shutdown is
// tied to server stop.
type Tracker struct {
	mu     sync.Mutex
	conns  map[string]map[Conn]struct{}
	closed bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{conns: make(map[string]map[Conn]struct{})}
}

// Add registers a connection for the user and broadcasts the updated online
// list. Adding to a shut-down tracker closes the connection immediately.
func (t *Tracker) Add(userID string, conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		conn.Close()
		return
	}

	set, ok := t.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		t.conns[userID] = set
	}
	set[conn] = struct{}{}

	t.broadcastLocked()
}

// Remove unregisters a connection. When the user's last connection goes, the
// user drops off the online list and the change is broadcast.
func (t *Tracker) Remove(userID string, conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.conns[userID]
	if !ok {
		return
	}
	if _, ok := set[conn]; !ok {
		return
	}

	delete(set, conn)
	if len(set) == 0 {
		delete(t.conns, userID)
	}

	t.broadcastLocked()
}

// Online returns the IDs of all currently connected users, sorted for
// deterministic output.
func (t *Tracker) Online() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onlineLocked()
}

// Count returns the number of distinct online users.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Shutdown closes every tracked connection and rejects future Adds. Called
// once during graceful server stop.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for _, set := range t.conns {
		for conn := range set {
			conn.Close()
		}
	}
	t.conns = make(map[string]map[Conn]struct{})
}

func (t *Tracker) onlineLocked() []string {
	online := make([]string, 0, len(t.conns))
	for userID := range t.conns {
		online = append(online, userID)
	}
	sort.Strings(online)
	return online
}

// broadcastLocked pushes the online list to every connection. Each write
// runs under a deadline; a connection that cannot take the message in time
// (stuck client, dead peer) is closed and dropped so the tracker never
// blocks. Its read loop then observes the close and the follow-up Remove is
// a no-op. The corrected online list goes out with the next event.
func (t *Tracker) broadcastLocked() {
	message := onlineMessage{Online: t.onlineLocked()}
	deadline := time.Now().Add(writeTimeout)

	for userID, set := range t.conns {
		for conn := range set {
			_ = conn.SetWriteDeadline(deadline)
			if err := conn.WriteJSON(message); err != nil {
				conn.Close()
				delete(set, conn)
			}
		}
		if len(set) == 0 {
			delete(t.conns, userID)
		}
	}
}
