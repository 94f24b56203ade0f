package sse

import (
	"net/url"
	"slices"
	"strings"
)

// Subscription selects the events a client receives.
type Subscription struct {
	// ScanID limits delivery to one scan. Events without a scan, such as
	// heartbeats, always pass.
	ScanID string
	// Types limits delivery to the listed event types. Empty means all.
	Types []EventType
}

// Matches reports whether e should be delivered under s.
func (s Subscription) Matches(e Event) bool {
	if e.Type == EventHeartbeat {
		return true
	}
	if s.ScanID != "" && e.ScanID != "" && s.ScanID != e.ScanID {
		return false
	}
	return len(s.Types) == 0 || slices.Contains(s.Types, e.Type)
}

// ParseSubscription reads scan_id and a comma-separated types list from q.
func ParseSubscription(q url.Values) Subscription {
	sub := Subscription{ScanID: q.Get("scan_id")}
	for t := range strings.SplitSeq(q.Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			sub.Types = append(sub.Types, EventType(t))
		}
	}
	return sub
}
