package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Hiepler/EuConform/internal/handlers"
	"github.com/Hiepler/EuConform/internal/services"
)

type Server struct {
	httpAddr    string
	biasService *services.BiasService
	detection   *services.DetectionService
}

func NewServer(httpAddr string, biasService *services.BiasService, detection *services.DetectionService) *Server {
	return &Server{
		httpAddr:    httpAddr,
		biasService: biasService,
		detection:   detection,
	}
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	biasHandler := handlers.NewBiasHandler(s.biasService)
	biasHandler.RegisterRoutes(mux)

	capabilityHandler := handlers.NewCapabilityHandler(s.detection)
	capabilityHandler.RegisterRoutes(mux)

	slog.Info("HTTP server starting",
		"addr", s.httpAddr,
		"endpoints", []string{"/v1/bias-test", "/v1/capabilities", "/v1/runs", "/healthz"})

	return http.ListenAndServe(s.httpAddr, mux)
}
