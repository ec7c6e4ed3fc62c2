package handlers

import (
	"net/http"

	"radreport-backend/internal/services"
	"radreport-backend/pkg/httputil"
)

// HealthHandlers handles HTTP requests for the health endpoint.
type HealthHandlers struct {
	service *services.HealthService
}

// NewHealthHandlers creates a new HealthHandlers instance.
func NewHealthHandlers(service *services.HealthService) *HealthHandlers {
	return &HealthHandlers{
		service: service,
	}
}

// HandleHealthCheck handles the GET /health request. The endpoint always
// responds 200; degraded configuration or credentials show up in the body.
func (h *HealthHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.service.Check(r.Context()))
}
