package httpinterface

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/price-publisher/internal/interfaces"
)

const (
	statusOk    = "ok"
	statusError = "error"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// HealthChecker reports about the health of the price publisher.
type HealthChecker interface {
	IsHealthy() bool
	LastSuccessfulUpdate() (int64, bool)
}

type healthResponse struct {
	Status               string `json:"status"`
	LastSuccessfulUpdate *int64 `json:"last_successful_update"`
}

type service struct {
	checker  HealthChecker
	server   *http.Server
	listener net.Listener
}

// NewService returns the http interface serving the /health and /metrics
// endpoints on the given port.
func NewService(checker HealthChecker, port int) (interfaces.Service, error) {
	if checker == nil {
		return nil, fmt.Errorf("missing health checker")
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	s := &service{checker: checker}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(checker),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// NewRouter returns the router of the http interface.
func NewRouter(checker HealthChecker) *mux.Router {
	h := &handler{checker}

	router := mux.NewRouter()
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return router
}

// Start listens on the configured port and serves requests in background.
func (s *service) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()

	log.Infof("http server listening on %s", listener.Addr())
	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to gracefully stop http server")
	}
	log.Debug("http server stopped")
}

type handler struct {
	checker HealthChecker
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: statusOk}
	status := http.StatusOK

	if lastUpdate, ok := h.checker.LastSuccessfulUpdate(); ok {
		resp.LastSuccessfulUpdate = &lastUpdate
	}
	if !h.checker.IsHealthy() {
		resp.Status = statusError
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Warn("failed to write health response")
	}
}
