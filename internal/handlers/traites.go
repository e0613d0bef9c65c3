package handlers

import (
	"net/http"
	"strconv"

	"github.com/xelth-com/eckbackoffice/internal/middleware"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/traites"
)

func (r *Router) listTraites(w http.ResponseWriter, req *http.Request) {
	var f traites.Filter
	if raw := req.URL.Query().Get("tierId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid tierId")
			return
		}
		f.TierID = uint(id)
	}
	switch status := models.TraiteStatus(req.URL.Query().Get("status")); status {
	case "", models.TraiteOutstanding, models.TraitePaid, models.TraiteUnpaid:
		f.Status = status
	default:
		respondError(w, http.StatusBadRequest, "Unknown status "+string(status))
		return
	}

	list, err := r.Traites.List(req.Context(), f)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (r *Router) createTraite(w http.ResponseWriter, req *http.Request) {
	var in traites.Input
	if err := decodeJSON(req, &in); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	traite, err := r.Traites.Create(req.Context(), middleware.ActorFrom(req.Context()), in)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, traite)
}

func (r *Router) getTraite(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	traite, err := r.Traites.Get(req.Context(), id)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, traite)
}

func (r *Router) updateTraite(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	var in traites.Input
	if err := decodeJSON(req, &in); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	traite, err := r.Traites.Update(req.Context(), middleware.ActorFrom(req.Context()), id, in)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, traite)
}

func (r *Router) deleteTraite(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	if err := r.Traites.Delete(req.Context(), middleware.ActorFrom(req.Context()), id); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) traiteActivity(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	entries, err := r.Traites.Activity(req.Context(), id)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
