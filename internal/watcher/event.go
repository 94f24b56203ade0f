package watcher

import "time"

// EventType is the kind of change seen in a watched directory.
type EventType int

const (
	// EventReady is emitted once a file has been fully written.
	EventReady EventType = iota
	// EventRemoved is emitted when a file leaves the directory.
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a file change.
type Event struct {
	ModTime time.Time
	Path    string
	Size    int64 // zero for removals
	Type    EventType
}
