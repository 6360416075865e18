package observability

import (
	"encoding/json"
	"net/http"
)

// Handler serves the metrics snapshot as JSON. ?section=routes, workflows or
// webhooks narrows the response to that part of the snapshot.
func Handler(metrics *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snap := metrics.Snapshot()
		var body any = snap
		switch section := r.URL.Query().Get("section"); section {
		case "":
		case "routes":
			body = snap.Routes
		case "workflows":
			body = snap.Workflows
		case "webhooks":
			body = snap.Webhooks
		default:
			http.Error(w, "unknown section "+section, http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(body)
	})
}
