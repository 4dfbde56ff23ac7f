package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

const apiVersion = "1.0.0"

// HealthHandler reports liveness
type HealthHandler struct {
	env string
	now func() time.Time
}

// NewHealthHandler creates a health handler for the given environment name
func NewHealthHandler(env string) *HealthHandler {
	return &HealthHandler{env: env, now: time.Now}
}

type healthData struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
}

// ServeHTTP handles GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, "Server is running", healthData{
		Status:      "healthy",
		Timestamp:   h.now().UTC().Format(time.RFC3339),
		Environment: h.env,
	})
}

type indexResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// HandleIndex handles GET / with a route overview
func HandleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(indexResponse{
		Success: true,
		Message: "Forensic Evidence Analysis API",
		Version: apiVersion,
		Endpoints: map[string]string{
			"health":  "/health",
			"auth":    "/api/v1/auth",
			"reports": "/api/v1/reports",
			"users":   "/api/v1/users",
		},
	})
}

// HandleNotFound answers unknown routes in the error envelope
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusNotFound, "Not found - "+r.URL.Path)
}

// HandleMethodNotAllowed answers known routes hit with the wrong method
func HandleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
}
