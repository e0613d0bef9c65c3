package handlers

import (
	"net/http"

	"github.com/xelth-com/eckbackoffice/internal/services/settings"
)

func (r *Router) getSettings(w http.ResponseWriter, req *http.Request) {
	org, err := r.Settings.Load(req.Context())
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, org)
}

func (r *Router) saveSettings(w http.ResponseWriter, req *http.Request) {
	var in settings.Settings
	if err := decodeJSON(req, &in); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	if err := r.Validator.Struct(in); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	saved, err := r.Settings.Save(req.Context(), in)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}
