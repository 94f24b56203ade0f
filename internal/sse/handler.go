package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	// retryAfter is the reconnect delay suggested to EventSource clients.
	retryAfter   = 3 * time.Second
	writeTimeout = 60 * time.Second
)

// Handler serves the event stream at GET /api/v1/events.
//
// Query parameters: scan_id limits the stream to one scan, types to a
// comma-separated list of event types. A Last-Event-ID header (or the
// last_event_id parameter, for clients that cannot set headers) resumes
// after that event; when the gap can no longer be replayed a "resync"
// frame tells the client to re-read its scans.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a Handler for manager.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// ServeHTTP streams events until the client goes away or the manager closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	client, err := h.manager.Connect(ParseSubscription(r.URL.Query()), lastEventID(r))
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With(slog.String("client_id", client.ID))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	rc := http.NewResponseController(w)

	hello := map[string]any{
		"client_id": client.ID,
		"last_seq":  h.manager.LastSeq(),
	}
	if err := h.write(w, rc, frame{event: eventConnected, retry: retryAfter, data: hello}); err != nil {
		log.Warn("failed to open event stream", slog.String("error", err.Error()))
		return
	}
	if client.Resync {
		if err := h.write(w, rc, frame{event: eventResync, data: map[string]string{"reason": "events missed"}}); err != nil {
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				log.Info("client closed by manager")
				return
			}
			if err := h.write(w, rc, frame{event: string(event.Type), id: event.Seq, data: event}); err != nil {
				log.Info("client disconnected during send")
				return
			}

		case <-client.Done:
			log.Info("client closed by manager")
			return

		case <-ctx.Done():
			log.Info("client context canceled")
			return
		}
	}
}

// frame is one SSE message. Zero id and retry are omitted.
type frame struct {
	event string
	id    uint64
	retry time.Duration
	data  any
}

func (f frame) encode() ([]byte, error) {
	payload, err := json.Marshal(f.data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	var b bytes.Buffer
	if f.retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", f.retry.Milliseconds())
	}
	if f.id > 0 {
		fmt.Fprintf(&b, "id: %d\n", f.id)
	}
	fmt.Fprintf(&b, "event: %s\n", f.event)
	fmt.Fprintf(&b, "data: %s\n\n", payload)
	return b.Bytes(), nil
}

// write sends f, flushes it, and pushes the write deadline forward.
func (h *Handler) write(w http.ResponseWriter, rc *http.ResponseController, f frame) error {
	data, err := f.encode()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		// Not every ResponseWriter supports deadlines.
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}

func lastEventID(r *http.Request) uint64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
