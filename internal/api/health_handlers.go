package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// Component states, worst last.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports component status. Answers 503 when any component is unhealthy.",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Status int
	Body   HealthResponse
}

func (s *Server) handleHealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	checks := map[string]func() ComponentHealth{
		"scans":   s.checkScans,
		"search":  s.checkSearchIndex,
		"exports": s.checkExports,
		"sse":     s.checkSSEManager,
	}

	resp := HealthResponse{
		Status:     statusHealthy,
		Version:    Version,
		Uptime:     time.Since(s.startedAt).Truncate(time.Second).String(),
		Components: make(map[string]ComponentHealth, len(checks)),
	}
	for name, check := range checks {
		c := check()
		resp.Components[name] = c
		resp.Status = worse(resp.Status, c.Status)
	}

	status := http.StatusOK
	if resp.Status == statusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	return &HealthOutput{Status: status, Body: resp}, nil
}

func worse(a, b string) string {
	rank := map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// checkScans reports what the scan store holds in memory.
func (s *Server) checkScans() ComponentHealth {
	if s.services == nil || s.services.Scans == nil {
		return ComponentHealth{Status: statusUnhealthy, Message: "scan service not configured"}
	}
	scans, pages := s.services.Scans.Stats()
	return ComponentHealth{
		Status:  statusHealthy,
		Message: fmt.Sprintf("%d scans, %d pages", scans, pages),
	}
}

// checkSearchIndex verifies the Bleve index answers.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.services == nil || s.services.Search == nil {
		return ComponentHealth{Status: statusDegraded, Message: "search disabled"}
	}

	start := time.Now()
	docs, err := s.services.Search.DocumentCount()
	latency := time.Since(start).String()

	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: latency, Message: "search index unreachable"}
	}
	return ComponentHealth{Status: statusHealthy, Latency: latency, Message: fmt.Sprintf("%d documents", docs)}
}

// checkExports reports whether exports are available and shareable.
func (s *Server) checkExports() ComponentHealth {
	if s.services == nil || s.services.Exports == nil {
		return ComponentHealth{Status: statusDegraded, Message: "exports disabled"}
	}
	exporter := s.services.Exports.Exporter()
	mode := "local downloads only"
	if exporter.SharingEnabled() {
		mode = "share links enabled"
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Message: fmt.Sprintf("%s, %d artifacts", mode, exporter.Count()),
	}
}

// checkSSEManager reports connected event clients.
func (s *Server) checkSSEManager() ComponentHealth {
	if s.sseManager == nil {
		return ComponentHealth{Status: statusDegraded, Message: "live updates disabled"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Message: formatSSEStatus(s.sseManager.ClientCount()),
	}
}

func formatSSEStatus(count int) string {
	switch count {
	case 0:
		return "no connected clients"
	case 1:
		return "1 connected client"
	default:
		return fmt.Sprintf("%d connected clients", count)
	}
}
