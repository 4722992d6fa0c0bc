package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Hiepler/EuConform/internal/services"
)

type CapabilityHandler struct {
	detection *services.DetectionService
}

func NewCapabilityHandler(detection *services.DetectionService) *CapabilityHandler {
	return &CapabilityHandler{
		detection: detection,
	}
}

func (h *CapabilityHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/capabilities", h.handleCapabilities)
}

func (h *CapabilityHandler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	caps := h.detection.DetectAll(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"capabilities": caps,
		"count":        len(caps),
	})
}
