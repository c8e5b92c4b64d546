package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/talos/internal/contracts"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now(),
	})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	var orders []contracts.Order
	if status := r.URL.Query().Get("status"); status != "" {
		orders = s.engine.Orders().GetOrders(contracts.Status(status))
	} else {
		orders = s.engine.Orders().GetOrders()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(orders),
		"orders": orders,
	})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record := s.engine.Orders().GetRecord(id)
	if record == nil {
		respondError(w, http.StatusNotFound, "order not found: "+id)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	start, ok := parseTimeParam(w, query.Get("start"))
	if !ok {
		return
	}
	end, ok := parseTimeParam(w, query.Get("end"))
	if !ok {
		return
	}

	events := s.engine.Orders().GetAuditTrail(query.Get("order_id"), start, end)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

func (s *Server) handleExecutionSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	start, ok := parseTimeParam(w, query.Get("start"))
	if !ok {
		return
	}
	end, ok := parseTimeParam(w, query.Get("end"))
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.engine.Orders().GetExecutionSummary(start, end))
}

func (s *Server) handleRiskStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Risk().GetStatus())
}

func (s *Server) handleRiskDaily(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Risk().GetDailyMetrics())
}

func (s *Server) handleRiskDrawdown(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Risk().GetDrawdownMetrics())
}

func (s *Server) handleTriggerStop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Reason == "" {
		body.Reason = "triggered via api"
	}

	s.engine.Risk().TriggerEmergencyStop(body.Reason)
	respondJSON(w, http.StatusOK, s.engine.Risk().GetStatus())
}

func (s *Server) handleClearStop(w http.ResponseWriter, r *http.Request) {
	s.engine.Risk().ClearEmergencyStop()
	respondJSON(w, http.StatusOK, s.engine.Risk().GetStatus())
}

func (s *Server) handlePortfolioSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Portfolio().GetSummary())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.engine.Portfolio().GetPositions()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(positions),
		"positions": positions,
	})
}

func (s *Server) handleClosedPositions(w http.ResponseWriter, r *http.Request) {
	closed := s.engine.Portfolio().GetClosedPositions()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(closed),
		"positions": closed,
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntParam(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}
	trades := s.engine.Portfolio().GetTrades(limit)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(trades),
		"trades": trades,
	})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntParam(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}
	snapshots := s.engine.Portfolio().GetSnapshots(limit)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Orders().GetReconciliationReport())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.GetStatus())
}

// parseTimeParam parses an RFC3339 query value, writing a 400 on bad
// input. Empty input yields the zero time.
func parseTimeParam(w http.ResponseWriter, value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid time: "+value)
		return time.Time{}, false
	}
	return t, true
}

func parseIntParam(w http.ResponseWriter, value string) (int, bool) {
	if value == "" {
		return 0, true
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid number: "+value)
		return 0, false
	}
	return n, true
}
