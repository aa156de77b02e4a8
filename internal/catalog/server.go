package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler serves price lookups over HTTP.
type Handler struct {
	catalog *Catalog
}

// NewHandler creates a Handler over the given catalog.
func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// NewRouter builds the pricing service router.
func NewRouter(catalog *Catalog) *chi.Mux {
	h := NewHandler(catalog)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/api/pricing", h.LookupPrice)
	r.Get("/healthz", h.Healthz)
	return r
}

type lookupRequest struct {
	Region          string `json:"region"`
	InstanceType    string `json:"instance_type"`
	OperatingSystem string `json:"operating_system"`
}

// LookupPrice handles POST /api/pricing. Missing parameters are a 400; a
// failed upstream lookup is a 500. Both carry a JSON error body.
func (h *Handler) LookupPrice(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No data received")
		return
	}
	if req.Region == "" || req.InstanceType == "" || req.OperatingSystem == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters: region, instance_type, operating_system")
		return
	}

	price, err := h.catalog.LookupInstancePrice(r.Context(), req.Region, req.InstanceType, req.OperatingSystem)
	if err != nil {
		slog.Error("price lookup failed",
			"region", req.Region, "instance_type", req.InstanceType, "os", req.OperatingSystem,
			"error", err)
		writeError(w, http.StatusInternalServerError, "Could not fetch pricing data")
		return
	}

	writeJSON(w, http.StatusOK, price)
}

// Healthz reports liveness for the pricing service.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
