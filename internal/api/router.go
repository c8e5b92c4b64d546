package api

import (
	"net/http"
)

// routes registers the observer endpoints
func (s *Server) routes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/orders", s.handleOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleOrder).Methods(http.MethodGet)
	api.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
	api.HandleFunc("/execution/summary", s.handleExecutionSummary).Methods(http.MethodGet)

	api.HandleFunc("/risk/status", s.handleRiskStatus).Methods(http.MethodGet)
	api.HandleFunc("/risk/daily", s.handleRiskDaily).Methods(http.MethodGet)
	api.HandleFunc("/risk/drawdown", s.handleRiskDrawdown).Methods(http.MethodGet)
	api.HandleFunc("/emergency-stop", s.handleTriggerStop).Methods(http.MethodPost)
	api.HandleFunc("/emergency-stop", s.handleClearStop).Methods(http.MethodDelete)

	api.HandleFunc("/portfolio/summary", s.handlePortfolioSummary).Methods(http.MethodGet)
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/positions/closed", s.handleClosedPositions).Methods(http.MethodGet)
	api.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	api.HandleFunc("/snapshots", s.handleSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/reconciliation", s.handleReconciliation).Methods(http.MethodGet)

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.hub.handleStream).Methods(http.MethodGet)
}
