package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready reports whether the record store (and redis, when configured) is
// reachable. Load balancers should route on this, not /health.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	ready := true
	if err := s.store.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		ready = false
	}
	if s.rdb != nil {
		checks["redis"] = "ok"
		if err := s.rdb.Ping(r.Context()); err != nil {
			checks["redis"] = err.Error()
			ready = false
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":  ready,
		"checks": checks,
	})
}
