package handlers

import (
	"net/http"

	"github.com/xelth-com/eckbackoffice/internal/middleware"
)

const defaultNotificationLimit = 50

// listNotifications returns the caller's inbox, newest first. ?unread=1 keeps unread ones only.
func (r *Router) listNotifications(w http.ResponseWriter, req *http.Request) {
	actor := middleware.ActorFrom(req.Context())
	limit := queryInt(req, "limit")
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	list, err := r.Notifications.ListFor(req.Context(), actor.UserID, req.URL.Query().Get("unread") == "1", limit)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (r *Router) markNotificationRead(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	if err := r.Notifications.MarkRead(req.Context(), middleware.ActorFrom(req.Context()).UserID, id); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
