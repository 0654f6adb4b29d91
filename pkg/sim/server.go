package sim

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ryandielhenn/cloudheal/internal/telemetry"
)

// Handler serves the fleet status surface and /metrics.
func (s *Simulation) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", telemetry.Instrument("healthz", http.HandlerFunc(s.healthz)))
	mux.Handle("GET /nodes", telemetry.Instrument("nodes", http.HandlerFunc(s.listNodes)))
	mux.Handle("GET /nodes/{id}/healthz", telemetry.Instrument("node_healthz", s.withNode(func(w http.ResponseWriter, r *http.Request, id string) {
		s.byID[id].Healthz(w, r)
	})))
	mux.Handle("GET /nodes/{id}/info", telemetry.Instrument("node_info", s.withNode(func(w http.ResponseWriter, r *http.Request, id string) {
		s.byID[id].Info(w, r)
	})))
	mux.Handle("/metrics", telemetry.MetricsHandler())
	return mux
}

// healthz is 200 when every node is currently healthy, 503 otherwise.
func (s *Simulation) healthz(w http.ResponseWriter, _ *http.Request) {
	var down []string
	for _, n := range s.nodes {
		if !n.Healthy() {
			down = append(down, n.ID())
		}
	}
	if len(down) > 0 {
		http.Error(w, "unhealthy: "+strings.Join(down, ","), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// listNodes writes the monitor's latest observations from the status cache.
func (s *Simulation) listNodes(w http.ResponseWriter, _ *http.Request) {
	data, err := json.Marshal(s.status.List())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Simulation) withNode(h func(http.ResponseWriter, *http.Request, string)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := s.byID[id]; !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r, id)
	})
}
