// Package mdns advertises the Scanix server on the local network through
// the Avahi daemon, so capture clients can find it without configuration.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"
)

const (
	// ServiceType is the DNS-SD service type for Scanix servers.
	ServiceType = "_scanix._tcp"

	// APIVersion is advertised in TXT records.
	APIVersion = "v1"

	// ServerVersion is advertised in TXT records.
	ServerVersion = "1.0.0"
)

// Info describes the advertised server.
type Info struct {
	Name string // instance name; hostname when empty
	Port int
}

// Publisher registers one service record. Implemented over Avahi's D-Bus API.
type Publisher interface {
	Publish(name, serviceType string, port int, txt [][]byte) error
	Close() error
}

// Service manages mDNS advertisement for the server.
type Service struct {
	logger       *slog.Logger
	newPublisher func() (Publisher, error)

	mu        sync.Mutex
	publisher Publisher
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher replaces the Avahi publisher factory.
func WithPublisher(fn func() (Publisher, error)) Option {
	return func(s *Service) { s.newPublisher = fn }
}

// NewService creates a new mDNS service.
func NewService(logger *slog.Logger, opts ...Option) *Service {
	s := &Service{logger: logger, newPublisher: newAvahiPublisher}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins advertising. Call it after the HTTP server is listening.
// Errors are usually non-fatal (no Avahi daemon, no system bus in containers).
func (s *Service) Start(info Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	name := info.Name
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "scanix-server"
		}
		name = host
	}

	p, err := s.newPublisher()
	if err != nil {
		return fmt.Errorf("connect to avahi: %w", err)
	}

	txt := TXTRecords(map[string]string{
		"version": ServerVersion,
		"api":     APIVersion,
		"name":    name,
	})
	if err := p.Publish(name, ServiceType, info.Port, txt); err != nil {
		_ = p.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("publish service: %w", err)
	}
	s.publisher = p

	s.logger.Info("mDNS advertisement started", "service", ServiceType, "port", info.Port, "name", name)
	return nil
}

// Stop withdraws the advertisement. Safe to call multiple times or if not started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Shutdown implements do.Shutdowner.
func (s *Service) Shutdown() error {
	s.Stop()
	return nil
}

func (s *Service) stopLocked() {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Close(); err != nil {
		s.logger.Warn("failed to withdraw mDNS advertisement", "error", err)
	}
	s.publisher = nil
	s.logger.Info("mDNS advertisement stopped")
}

// TXTRecords encodes key=value pairs in key order.
func TXTRecords(kv map[string]string) [][]byte {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, []byte(k+"="+kv[k]))
	}
	return out
}

// avahiPublisher holds one entry group on the system bus.
type avahiPublisher struct {
	conn   *dbus.Conn
	server *avahi.Server
	group  *avahi.EntryGroup
}

func newAvahiPublisher() (Publisher, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	server, err := avahi.ServerNew(conn)
	if err != nil {
		_ = conn.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("avahi server: %w", err)
	}
	return &avahiPublisher{conn: conn, server: server}, nil
}

func (a *avahiPublisher) Publish(name, serviceType string, port int, txt [][]byte) error {
	group, err := a.server.EntryGroupNew()
	if err != nil {
		return fmt.Errorf("entry group: %w", err)
	}
	//nolint:gosec // G115: port is validated by the HTTP listener
	err = group.AddService(avahi.InterfaceUnspec, avahi.ProtoUnspec, 0, name, serviceType, "local", "", uint16(port), txt)
	if err != nil {
		a.server.EntryGroupFree(group)
		return fmt.Errorf("add service: %w", err)
	}
	if err := group.Commit(); err != nil {
		a.server.EntryGroupFree(group)
		return fmt.Errorf("commit: %w", err)
	}
	a.group = group
	return nil
}

func (a *avahiPublisher) Close() error {
	if a.group != nil {
		a.server.EntryGroupFree(a.group)
		a.group = nil
	}
	a.server.Close()
	return a.conn.Close()
}
