package handlers

import (
	"net/http"

	"github.com/xelth-com/eckbackoffice/internal/middleware"
	"go.uber.org/zap"
)

// repairActivity backfills missing Création entries
func (r *Router) repairActivity(w http.ResponseWriter, req *http.Request) {
	result, err := r.Activity.Repair(req.Context())
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	r.log.Info("activity repair requested",
		zap.Uint("by", middleware.ActorFrom(req.Context()).UserID),
		zap.Int("tiers", result.Tiers), zap.Int("traites", result.Traites))
	respondJSON(w, http.StatusOK, result)
}
