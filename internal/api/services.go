package api

import (
	"github.com/scanixapp/scanix-server/internal/names"
	"github.com/scanixapp/scanix-server/internal/service"
)

// Services groups the business logic services used by the API server.
type Services struct {
	Scans   *service.ScanService
	Search  *service.SearchService  // nil disables /search
	Exports *service.ExportService
	Names   *names.Generator
}
