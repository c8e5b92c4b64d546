// Package api exposes the engine state over HTTP and streams lifecycle
// events over WebSocket. The surface is observational; the only
// mutations are the emergency stop controls.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/internal/engine"
	"github.com/wonny/talos/internal/risk"
	"github.com/wonny/talos/pkg/logger"
)

// Server serves the observer API
type Server struct {
	engine     *engine.Engine
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	logger     *logger.Logger
}

// NewServer wires routes and the event stream over the engine
func NewServer(port string, eng *engine.Engine, log *logger.Logger) *Server {
	s := &Server{
		engine: eng,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		logger: log.WithComponent("api_server"),
	}

	s.routes()
	s.attachStream()

	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains connections and closes the stream hub
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// attachStream forwards lifecycle events into the WebSocket hub
func (s *Server) attachStream() {
	orders := s.engine.Orders()
	orders.OnOrderUpdate(func(update contracts.OrderUpdate) {
		s.hub.Broadcast("order_update", update)
	})
	orders.OnFill(func(fill contracts.Fill) {
		s.hub.Broadcast("fill", fill)
	})
	orders.OnExecutionReport(func(report contracts.ExecutionReport) {
		s.hub.Broadcast("execution_report", report)
	})
	orders.OnPositionUpdate(func(update contracts.PositionUpdate) {
		s.hub.Broadcast("position_update", update)
	})
	s.engine.Risk().OnEmergencyStop(func(event risk.StopEvent) {
		s.hub.Broadcast("emergency_stop", event)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
