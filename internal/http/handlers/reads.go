package handlers

import (
	"net/http"
	"strings"
)

// TrackRead records a view of an article detail page. Tracking happens in the background,
// so the response never depends on whether the read was stored.
func (api *API) TrackRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	articleID, err := parseUUID(r.PathValue("articleID"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "article id must be a UUID")
		return
	}

	var readerID *string
	if raw := strings.TrimSpace(r.Header.Get("X-Reader-Id")); raw != "" {
		parsed, err := parseUUID(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "X-Reader-Id must be a UUID")
			return
		}
		readerID = &parsed
	}

	api.analyticsService.TrackReadInBackground(articleID, readerID)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "accepted",
		"article_id": articleID,
	})
}
