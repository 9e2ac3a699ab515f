package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tessner/clack/internal/presence"
)

type PresenceHandler struct {
	registry *presence.Registry
}

func NewPresenceHandler(registry *presence.Registry) *PresenceHandler {
	return &PresenceHandler{registry: registry}
}

// Get resolves presence for a batch of users, for initial client
// hydration: GET /presence?user_ids=1,2,3
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("user_ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAM", "user_ids is required")
		return
	}

	var userIDs []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID: "+part)
			return
		}
		userIDs = append(userIDs, id)
	}

	writeJSON(w, http.StatusOK, map[string]any{"presence": h.registry.Resolve(r.Context(), userIDs)})
}
