// Package sse implements Server-Sent Events for real-time scan updates.
package sse

import (
	"time"

	"github.com/scanixapp/scanix-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventScanCreated is sent when a capture session produced a new scan.
	EventScanCreated EventType = "scan.created"
	// EventScanUpdated is sent after pages were added, removed, moved, or the scan renamed.
	EventScanUpdated EventType = "scan.updated"
	// EventScanDeleted is sent when a scan was deleted or lost its last page.
	EventScanDeleted EventType = "scan.deleted"

	// EventExportReady is sent when an export artifact has been written.
	EventExportReady EventType = "export.ready"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"

	// Stream control frames written by Handler; never broadcast.
	eventConnected = "connected"
	eventResync    = "resync"
)

// Reasons carried by scan.deleted events.
const (
	DeleteReasonExplicit = "explicit"
	DeleteReasonEmpty    = "empty" // last page removed
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
	// ScanID scopes the event; clients subscribed to one scan only receive its events.
	ScanID string `json:"-"`
	// Seq is assigned at broadcast and sent as the SSE id. Zero for heartbeats.
	Seq uint64 `json:"-"`
}

// PageSummary is the image-free view of a page sent to clients.
type PageSummary struct {
	ID       string `json:"id"`
	Order    int    `json:"order"`
	HasImage bool   `json:"has_image"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	BlurHash string `json:"blur_hash,omitempty"`
}

// ScanEventData is the payload of scan.created and scan.updated.
type ScanEventData struct {
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Pages     []PageSummary `json:"pages"`
}

// ScanDeletedEventData is the payload of scan.deleted.
type ScanDeletedEventData struct {
	ScanID string `json:"scan_id"`
	Reason string `json:"reason"`
}

// ExportReadyEventData is the payload of export.ready.
type ExportReadyEventData struct {
	ScanID   string `json:"scan_id"`
	Handle   string `json:"handle"`
	Format   string `json:"format"`
	FileName string `json:"file_name"`
}

// HeartbeatEventData is the payload of heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

func newScanEventData(scan *domain.Scan) ScanEventData {
	pages := make([]PageSummary, 0, len(scan.Pages))
	for _, p := range scan.SortedPages() {
		pages = append(pages, PageSummary{
			ID:       p.ID,
			Order:    p.Order,
			HasImage: p.HasImage(),
			Width:    p.Width,
			Height:   p.Height,
			BlurHash: p.BlurHash,
		})
	}
	return ScanEventData{
		CreatedAt: scan.CreatedAt,
		UpdatedAt: scan.UpdatedAt,
		ID:        scan.ID,
		Name:      scan.Name,
		Pages:     pages,
	}
}

// NewScanCreatedEvent creates a scan.created event.
func NewScanCreatedEvent(scan *domain.Scan) Event {
	return Event{
		Type:      EventScanCreated,
		Data:      newScanEventData(scan),
		ScanID:    scan.ID,
		Timestamp: time.Now(),
	}
}

// NewScanUpdatedEvent creates a scan.updated event.
func NewScanUpdatedEvent(scan *domain.Scan) Event {
	return Event{
		Type:      EventScanUpdated,
		Data:      newScanEventData(scan),
		ScanID:    scan.ID,
		Timestamp: time.Now(),
	}
}

// NewScanDeletedEvent creates a scan.deleted event.
func NewScanDeletedEvent(scanID, reason string) Event {
	return Event{
		Type:      EventScanDeleted,
		Data:      ScanDeletedEventData{ScanID: scanID, Reason: reason},
		ScanID:    scanID,
		Timestamp: time.Now(),
	}
}

// NewExportReadyEvent creates an export.ready event.
func NewExportReadyEvent(scanID, handle, format, fileName string) Event {
	return Event{
		Type: EventExportReady,
		Data: ExportReadyEventData{
			ScanID:   scanID,
			Handle:   handle,
			Format:   format,
			FileName: fileName,
		},
		ScanID:    scanID,
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
	}
}
