package node

import (
	"encoding/json"
	"net/http"
	"os"
	"time"
)

// Healthz returns 200 while the node is healthy and 503 otherwise.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	if !n.Healthy() {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes a JSON payload describing the node.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	type resp struct {
		ID      string    `json:"id"`
		Healthy bool      `json:"healthy"`
		State   string    `json:"state"`
		PID     int       `json:"pid"`
		Now     time.Time `json:"now"`
	}
	writeJSON(w, resp{
		ID:      n.id,
		Healthy: n.Healthy(),
		State:   n.State().String(),
		PID:     os.Getpid(),
		Now:     time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
