package sse

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scanixapp/scanix-server/internal/id"
)

const (
	queueSize         = 1000
	clientBufferSize  = 100
	defaultReplaySize = 256
)

// Client is one connected event stream.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	Sub         Subscription

	// Resync is set when the client asked to resume after an event that is
	// no longer in the replay buffer. It should re-read its scans.
	Resync bool
}

// Manager fans scan events out to connected clients. Every broadcast event
// gets the next sequence number and is kept in a bounded replay buffer, so
// a client reconnecting with Last-Event-ID receives what it missed.
type Manager struct {
	logger            *slog.Logger
	heartbeatInterval time.Duration
	replaySize        int

	// mu guards clients and history. The broadcast loop holds it while
	// delivering, so a backlog queued by Connect always precedes live events.
	mu      sync.Mutex
	clients map[string]*Client
	history []Event
	seq     uint64

	queueMu sync.RWMutex
	queue   chan Event
	closed  bool

	started atomic.Bool
	stopped chan struct{}
}

// NewManager creates a Manager. Call Start to begin broadcasting.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:            logger,
		heartbeatInterval: 30 * time.Second,
		replaySize:        defaultReplaySize,
		clients:           make(map[string]*Client),
		queue:             make(chan Event, queueSize),
		stopped:           make(chan struct{}),
	}
}

// Start runs the broadcast loop until ctx is done or Shutdown drains the queue.
func (m *Manager) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	defer close(m.stopped)

	m.logger.Info("SSE manager starting")

	heartbeat := time.NewTicker(m.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				m.closeAllClients()
				return
			}
			m.broadcast(event)

		case <-heartbeat.C:
			m.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, waits for queued ones to be delivered,
// and closes every client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.queueMu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.queueMu.Unlock()

	if !m.started.Load() {
		m.closeAllClients()
		return nil
	}

	select {
	case <-m.stopped:
		m.logger.Info("SSE manager shutdown complete")
	case <-ctx.Done():
		m.logger.Warn("SSE event drain timed out, some events may be lost")
	}
	return nil
}

// Emit queues an event for broadcasting. It implements store.EventEmitter;
// values that are not an Event are logged and ignored. Emit never blocks:
// events are dropped when the queue is full or the manager is shut down.
func (m *Manager) Emit(event any) {
	evt, ok := event.(Event)
	if !ok {
		m.logger.Error("invalid event type emitted", slog.Any("value", event))
		return
	}

	m.queueMu.RLock()
	defer m.queueMu.RUnlock()

	if m.closed {
		return
	}

	select {
	case m.queue <- evt:
	default:
		m.logger.Error("SSE event queue full, dropping event",
			slog.String("event_type", string(evt.Type)),
			slog.String("scan_id", evt.ScanID))
	}
}

// broadcast numbers an event, records it for replay and delivers it.
func (m *Manager) broadcast(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.Type != EventHeartbeat {
		m.seq++
		event.Seq = m.seq
		m.history = append(m.history, event)
		if over := len(m.history) - m.replaySize; over > 0 {
			m.history = append(m.history[:0], m.history[over:]...)
		}
	}

	var delivered, filtered, dropped int
	for _, client := range m.clients {
		if !client.Sub.Matches(event) {
			filtered++
			continue
		}
		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
			m.logger.Warn("dropped event for slow client",
				slog.String("client_id", client.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event broadcast",
			slog.String("event_type", string(event.Type)),
			slog.Uint64("seq", event.Seq),
			slog.Group("stats",
				slog.Int("delivered", delivered),
				slog.Int("filtered", filtered),
				slog.Int("dropped", dropped)))
	}
}

// Connect registers a client. When lastSeq is non-zero the client is first
// sent the buffered events after lastSeq that match sub.
func (m *Manager) Connect(sub Subscription, lastSeq uint64) (*Client, error) {
	clientID, err := id.Generate(id.PrefixSSE)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		Sub:         sub,
		EventChan:   make(chan Event, clientBufferSize),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	replayed := 0
	if lastSeq > 0 {
		backlog, complete := m.since(lastSeq)
		client.Resync = !complete
		for _, evt := range backlog {
			if !sub.Matches(evt) {
				continue
			}
			select {
			case client.EventChan <- evt:
				replayed++
			default:
				client.Resync = true
			}
		}
	}
	m.clients[client.ID] = client
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", clientID),
		slog.String("scan_id", sub.ScanID),
		slog.Int("replayed", replayed),
		slog.Int("total_clients", total))
	return client, nil
}

// since returns buffered events after seq, and whether the buffer still
// covers every event after seq. Callers hold m.mu.
func (m *Manager) since(seq uint64) ([]Event, bool) {
	if seq >= m.seq {
		// Nothing newer, or a sequence from before a restart.
		return nil, seq == m.seq
	}
	if len(m.history) == 0 || m.history[0].Seq > seq+1 {
		return m.history, false
	}
	start := int(seq + 1 - m.history[0].Seq)
	return m.history[start:], true
}

// LastSeq returns the sequence number of the latest broadcast event.
func (m *Manager) LastSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Disconnect removes a client and closes its channels. Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
		close(client.Done)
		close(client.EventChan)
	}
	total := len(m.clients)
	m.mu.Unlock()

	if ok {
		m.logger.Info("SSE client disconnected",
			slog.String("client_id", clientID),
			slog.Duration("duration", time.Since(client.ConnectedAt)),
			slog.Int("total_clients", total))
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		close(client.Done)
		close(client.EventChan)
	}
	clear(m.clients)

	m.logger.Info("all SSE clients disconnected")
}
