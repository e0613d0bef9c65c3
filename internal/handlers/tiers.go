package handlers

import (
	"net/http"

	"github.com/xelth-com/eckbackoffice/internal/middleware"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/tiers"
	"github.com/xelth-com/eckbackoffice/internal/services/traites"
)

func (r *Router) listTiers(w http.ResponseWriter, req *http.Request) {
	page, err := r.Tiers.List(req.Context(), tiers.Query{
		Search: req.URL.Query().Get("search"),
		Limit:  queryInt(req, "limit"),
		Offset: queryInt(req, "offset"),
	})
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (r *Router) getTier(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	tier, err := r.Tiers.Get(req.Context(), id)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, tier)
}

func (r *Router) updateTier(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	var details models.ClientDetails
	if err := decodeJSON(req, &details); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	tier, err := r.Tiers.Update(req.Context(), middleware.ActorFrom(req.Context()), id, details)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, tier)
}

func (r *Router) deleteTier(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	if err := r.Tiers.Delete(req.Context(), middleware.ActorFrom(req.Context()), id); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) tierActivity(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	entries, err := r.Tiers.Activity(req.Context(), id)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (r *Router) tierTraites(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	if _, err := r.Tiers.Get(req.Context(), id); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	list, err := r.Traites.List(req.Context(), traites.Filter{TierID: id})
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}
