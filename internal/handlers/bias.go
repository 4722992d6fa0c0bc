package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Hiepler/EuConform/internal/bias"
	"github.com/Hiepler/EuConform/internal/services"
)

type BiasHandler struct {
	biasService *services.BiasService
}

func NewBiasHandler(biasService *services.BiasService) *BiasHandler {
	return &BiasHandler{
		biasService: biasService,
	}
}

func (h *BiasHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/bias-test", h.handleBiasTest)
	mux.HandleFunc("/v1/runs", h.handleRuns)
	mux.HandleFunc("/healthz", h.handleHealth)
}

func (h *BiasHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *BiasHandler) handleBiasTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req services.AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.ReqID == "" {
		req.ReqID = fmt.Sprintf("http-%d", time.Now().UnixNano())
	}

	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		req.TraceID = traceID
	}

	response, err := h.biasService.RunAudit(r.Context(), req, "http.bias-test", "http-worker")
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, bias.ErrInvalidDataset) {
			status = http.StatusBadRequest
		} else if errors.Is(err, bias.ErrNoValidScores) {
			status = http.StatusBadGateway
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(response)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *BiasHandler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.biasService.GetRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to read audit log", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
