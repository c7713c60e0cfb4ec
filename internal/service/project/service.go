// Package project exposes the project-scoped resource listing endpoints.
package project

import (
	"net/http"

	"github.com/elevaite/api/internal/authz"
	"github.com/elevaite/api/internal/db"
	"github.com/elevaite/api/internal/service"
)

// Service serves project resource listings, filtered down to what the
// principal may read.
type Service struct {
	store  db.Querier
	engine *authz.Engine
}

// NewService creates a new project service.
func NewService(store db.Querier, engine *authz.Engine) *Service {
	return &Service{store: store, engine: engine}
}

type applicationResponse struct {
	ID              int64  `json:"id"`
	ProjectID       string `json:"project_id"`
	Name            string `json:"name"`
	ApplicationType string `json:"application_type"`
}

// HandleListApplications serves GET /v1/projects/{project_id}/applications.
// The result excludes application types the principal may not read.
func (s *Service) HandleListApplications(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		service.WriteError(w, r, authz.Unauthenticated("no principal on request"))
		return
	}
	params := service.ScopeParams(r, "project_id")

	info, err := s.engine.Authorize(r.Context(), authz.Request{
		Principal:    principal,
		Params:       params,
		TargetEntity: "Application",
		TargetAction: authz.ActionRead,
	})
	if err != nil {
		service.WriteError(w, r, err)
		return
	}

	filter, err := s.engine.ListFilter(r.Context(), info, "Application")
	if err != nil {
		service.WriteError(w, r, err)
		return
	}

	apps, err := s.store.ListProjectApplications(r.Context(), db.ListProjectApplicationsParams{
		ProjectID: info.Project.ID,
		Filter:    filter,
	})
	if err != nil {
		service.WriteError(w, r, authz.Unavailable(err, "listing applications"))
		return
	}

	out := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, applicationResponse{
			ID:              a.ID,
			ProjectID:       a.ProjectID,
			Name:            a.Name,
			ApplicationType: a.ApplicationType,
		})
	}
	service.WriteJSON(w, http.StatusOK, out)
}

type datasetResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// HandleListDatasets serves GET /v1/projects/{project_id}/datasets.
func (s *Service) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		service.WriteError(w, r, authz.Unauthenticated("no principal on request"))
		return
	}
	params := service.ScopeParams(r, "project_id")

	info, err := s.engine.Authorize(r.Context(), authz.Request{
		Principal:    principal,
		Params:       params,
		TargetEntity: "Dataset",
		TargetAction: authz.ActionRead,
	})
	if err != nil {
		service.WriteError(w, r, err)
		return
	}

	filter, err := s.engine.ListFilter(r.Context(), info, "Dataset")
	if err != nil {
		service.WriteError(w, r, err)
		return
	}

	datasets, err := s.store.ListProjectDatasets(r.Context(), db.ListProjectDatasetsParams{
		ProjectID: info.Project.ID,
		Filter:    filter,
	})
	if err != nil {
		service.WriteError(w, r, authz.Unavailable(err, "listing datasets"))
		return
	}

	out := make([]datasetResponse, 0, len(datasets))
	for _, d := range datasets {
		out = append(out, datasetResponse{ID: d.ID, ProjectID: d.ProjectID, Name: d.Name})
	}
	service.WriteJSON(w, http.StatusOK, out)
}
