package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - /ws/jobs/{id}
	mux.HandleFunc("/ws/jobs/", s.handleJobSocket)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - Artifacts
	mux.HandleFunc("/api/artifacts/", s.handleArtifactRoute)

	// API routes - Model bindings
	mux.HandleFunc("/api/models", s.app.ModelConfigHandler.ListModelsHandler)
	mux.HandleFunc("/api/models/", s.handleModelRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes the jobs collection: list and submit.
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.JobHandler.ListJobsHandler(w, r)
	case "POST":
		s.app.JobHandler.SubmitJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes /api/jobs/{id} and /api/jobs/{id}/logs.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if rest == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	jobID, sub, _ := strings.Cut(rest, "/")

	if sub == "logs" {
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.JobHandler.GetJobLogsHandler(w, r, jobID)
		return
	}
	if sub != "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case "GET":
		s.app.JobHandler.GetJobHandler(w, r, jobID)
	case "DELETE":
		s.app.JobHandler.CancelJobHandler(w, r, jobID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleArtifactRoute routes GET /api/artifacts/{id}.
func (s *Server) handleArtifactRoute(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/api/artifacts/")
	if jobID == "" || strings.Contains(jobID, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.JobHandler.GetArtifactHandler(w, r, jobID)
}

// handleModelRoutes routes /api/models/{kind}.
func (s *Server) handleModelRoutes(w http.ResponseWriter, r *http.Request) {
	kind := strings.TrimPrefix(r.URL.Path, "/api/models/")
	if kind == "" || strings.Contains(kind, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case "GET":
		s.app.ModelConfigHandler.GetModelHandler(w, r, kind)
	case "PUT":
		s.app.ModelConfigHandler.UpdateModelHandler(w, r, kind)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobSocket routes GET /ws/jobs/{id} to the WebSocket handler.
func (s *Server) handleJobSocket(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/ws/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.WSHandler.HandleJobSocket(w, r, jobID)
}
