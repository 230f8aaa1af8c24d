package handlers

import "net/http"

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	response := map[string]any{"status": "ok"}
	if api.queueStats != nil {
		response["analytics_queue"] = api.queueStats.Stats()
	}
	writeJSON(w, http.StatusOK, response)
}
