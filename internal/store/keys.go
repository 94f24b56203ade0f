package store

import "sync"

// Key layout:
//
//	scan:<scanID>           scan record
//	page:<scanID>:<pageID>  page record including its image
const (
	scanPrefix = "scan:"
	pagePrefix = "page:"
)

// keyPool provides reusable byte slices for building database keys.
var keyPool = sync.Pool{
	New: func() any {
		// Prefix + two prefixed NanoIDs fit comfortably.
		return make([]byte, 0, 128)
	},
}

// buildKey joins parts with ':' after prefix using a pooled buffer.
// The returned slice is valid until releaseKey is called.
//
// Usage:
//
//	key := buildKey(pagePrefix, scanID, pageID)
//	defer releaseKey(key)
func buildKey(prefix string, parts ...string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = append(buf[:0], prefix...)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, p...)
	}
	return buf
}

// pagesOf returns the prefix covering every page of a scan. Not pooled;
// iterator prefixes outlive the call.
func pagesOf(scanID string) []byte {
	return []byte(pagePrefix + scanID + ":")
}

// releaseKey returns a key buffer to the pool for reuse.
func releaseKey(key []byte) {
	if cap(key) <= 512 {
		keyPool.Put(key[:0])
	}
}
