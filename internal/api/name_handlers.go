package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/scanixapp/scanix-server/internal/errors"
	"github.com/scanixapp/scanix-server/internal/names"
)

func (s *Server) registerNameRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "generateNames",
		Method:      http.MethodGet,
		Path:        "/api/v1/names",
		Summary:     "Suggest scan names",
		Description: "Returns names of the kind given to new scans",
		Tags:        []string{"Scans"},
	}, s.handleGenerateNames)
}

// GenerateNamesInput contains parameters for name suggestions.
type GenerateNamesInput struct {
	Count int    `query:"count" default:"1" minimum:"1" maximum:"20" doc:"Number of names"`
	Style string `query:"style" enum:"template,adjective_noun,fun_phrase,dated" doc:"Build every name with one style; random when empty"`
	Dated bool   `query:"dated" doc:"Append the full date, e.g. \"Paper Trail (Nov 05, 2025)\""`
}

// GenerateNamesOutput wraps generated names.
type GenerateNamesOutput struct {
	Body struct {
		Names []string `json:"names" doc:"Suggested names"`
	}
}

func (s *Server) handleGenerateNames(_ context.Context, input *GenerateNamesInput) (*GenerateNamesOutput, error) {
	if input.Style != "" && input.Dated {
		return nil, domainerrors.Validation("style and dated cannot be combined")
	}

	next := s.services.Names.Generate
	switch {
	case input.Dated:
		next = s.services.Names.GenerateWithDate
	case input.Style != "":
		style, err := names.ParseStrategy(input.Style)
		if err != nil {
			return nil, domainerrors.Validation(err.Error())
		}
		next = func() string { return s.services.Names.GenerateWith(style) }
	}

	n := min(max(input.Count, 1), MaxGeneratedNames)
	out := &GenerateNamesOutput{}
	out.Body.Names = make([]string, 0, n)
	for range n {
		out.Body.Names = append(out.Body.Names, next())
	}
	return out, nil
}
