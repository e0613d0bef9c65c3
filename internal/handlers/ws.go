package handlers

import (
	"net/http"

	"github.com/xelth-com/eckbackoffice/internal/websocket"
)

// serveWs registers a websocket for notification pushes. Browsers cannot set
// headers on the upgrade request, so the access token comes in the query string.
func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	if r.Hub == nil {
		respondError(w, http.StatusServiceUnavailable, "Notifications are not available")
		return
	}
	user, err := r.auth.UserFromToken(req.Context(), req.URL.Query().Get("token"))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	websocket.ServeWs(r.Hub, user.ID, w, req)
}
