package notification

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// List holds notifications newest-first. It is never persisted.
type List struct {
	mu    sync.RWMutex
	items []Notification
	now   func() time.Time
}

// NewList creates an empty list.
func NewList() *List {
	return &List{now: time.Now}
}

// Add prepends a notification for event and returns it.
func (l *List) Add(event, message string) Notification {
	n := Notification{
		ID:        newID(),
		Event:     event,
		Message:   message,
		Timestamp: l.now(),
	}

	l.mu.Lock()
	l.items = append([]Notification{n}, l.items...)
	l.mu.Unlock()
	return n
}

// MarkRead flips the read flag of the matching notification. Unknown IDs are ignored.
func (l *List) MarkRead(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.items {
		if l.items[i].ID == id {
			l.items[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead marks every notification read.
func (l *List) MarkAllRead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		l.items[i].Read = true
	}
}

// Clear empties the list.
func (l *List) Clear() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

// All returns a copy of the notifications, newest first.
func (l *List) All() []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Notification, len(l.items))
	copy(out, l.items)
	return out
}

// Unread counts notifications not yet marked read.
func (l *List) Unread() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for _, n := range l.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Len returns the number of notifications.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// newID returns a time-ordered UUIDv7, monotonic within the process.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
