package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/buildinfo"
	"github.com/xelth-com/eckbackoffice/internal/middleware"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/services/activity"
	"github.com/xelth-com/eckbackoffice/internal/services/allocator"
	"github.com/xelth-com/eckbackoffice/internal/services/approval"
	"github.com/xelth-com/eckbackoffice/internal/services/clients"
	"github.com/xelth-com/eckbackoffice/internal/services/notify"
	"github.com/xelth-com/eckbackoffice/internal/services/settings"
	"github.com/xelth-com/eckbackoffice/internal/services/tiers"
	"github.com/xelth-com/eckbackoffice/internal/services/traites"
	"github.com/xelth-com/eckbackoffice/internal/validation"
	"github.com/xelth-com/eckbackoffice/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators of the HTTP layer
type Deps struct {
	DB            *gorm.DB
	JWTSecret     string
	Logger        *zap.Logger
	Hub           *websocket.Hub
	Authenticator access.Authenticator
	Allocator     *allocator.Allocator
	Clients       *clients.Service
	Approval      *approval.Engine
	Tiers         *tiers.Service
	Traites       *traites.Service
	Activity      *activity.Logger
	Notifications *notify.Store
	Settings      *settings.Service
	Validator     *validation.Validator
	LoginLimiter  *middleware.RateLimiter
}

// Router wraps the mux router and the services it exposes
type Router struct {
	*mux.Router
	Deps
	auth *middleware.Auth
	log  *zap.Logger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(d Deps) *Router {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.LoginLimiter == nil {
		d.LoginLimiter = middleware.NewLoginRateLimiter()
	}
	r := &Router{
		Router: mux.NewRouter(),
		Deps:   d,
		auth:   middleware.NewAuth(d.JWTSecret, d.DB, d.Logger),
		log:    d.Logger,
	}

	r.Use(middleware.RequestLogger(d.Logger))

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.Handle("/login", d.LoginLimiter.Limit(http.HandlerFunc(r.login))).Methods("POST")
	auth.Handle("/refresh", d.LoginLimiter.Limit(http.HandlerFunc(r.refresh))).Methods("POST")

	// Notification push
	r.HandleFunc("/ws", r.serveWs).Methods("GET")

	// API routes (protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(r.auth.Middleware)
	api.HandleFunc("/me", r.me).Methods("GET")

	pending := api.PathPrefix("/pending-clients").Subrouter()
	pending.HandleFunc("", r.listPendingClients).Methods("GET")
	pending.HandleFunc("", r.createPendingClient).Methods("POST")
	pending.HandleFunc("/{id:[0-9]+}", r.getPendingClient).Methods("GET")
	pending.HandleFunc("/{id:[0-9]+}", r.updatePendingClient).Methods("PUT")
	pending.HandleFunc("/{id:[0-9]+}", r.deletePendingClient).Methods("DELETE")
	pending.HandleFunc("/{id:[0-9]+}/approvals", r.pendingClientApprovals).Methods("GET")
	pending.HandleFunc("/{id:[0-9]+}/submit", r.submitPendingClient).Methods("POST")
	pending.HandleFunc("/{id:[0-9]+}/approve", r.approvePendingClient).Methods("POST")
	pending.HandleFunc("/{id:[0-9]+}/reject", r.rejectPendingClient).Methods("POST")
	pending.HandleFunc("/{id:[0-9]+}/resubmit", r.resubmitPendingClient).Methods("POST")

	api.HandleFunc("/account-numbers/next", r.nextAccountNumber).Methods("GET")

	tierRoutes := api.PathPrefix("/tiers").Subrouter()
	tierRoutes.Use(middleware.RequireAnyPermission(access.ViewTiers, access.ManageTiers))
	tierRoutes.HandleFunc("", r.listTiers).Methods("GET")
	tierRoutes.HandleFunc("/{id:[0-9]+}", r.getTier).Methods("GET")
	tierRoutes.HandleFunc("/{id:[0-9]+}", r.updateTier).Methods("PUT")
	tierRoutes.HandleFunc("/{id:[0-9]+}", r.deleteTier).Methods("DELETE")
	tierRoutes.HandleFunc("/{id:[0-9]+}/activity", r.tierActivity).Methods("GET")
	tierRoutes.HandleFunc("/{id:[0-9]+}/traites", r.tierTraites).Methods("GET")

	traiteRoutes := api.PathPrefix("/traites").Subrouter()
	// writes are checked again against manage_traites by the service
	traiteRoutes.Use(middleware.RequireAnyPermission(access.ViewTiers, access.ManageTraites))
	traiteRoutes.HandleFunc("", r.listTraites).Methods("GET")
	traiteRoutes.HandleFunc("", r.createTraite).Methods("POST")
	traiteRoutes.HandleFunc("/{id:[0-9]+}", r.getTraite).Methods("GET")
	traiteRoutes.HandleFunc("/{id:[0-9]+}", r.updateTraite).Methods("PUT")
	traiteRoutes.HandleFunc("/{id:[0-9]+}", r.deleteTraite).Methods("DELETE")
	traiteRoutes.HandleFunc("/{id:[0-9]+}/activity", r.traiteActivity).Methods("GET")

	api.HandleFunc("/notifications", r.listNotifications).Methods("GET")
	api.HandleFunc("/notifications/{id:[0-9]+}/read", r.markNotificationRead).Methods("POST")

	api.HandleFunc("/settings", r.getSettings).Methods("GET")
	api.Handle("/settings", middleware.RequirePermission(access.ManageSettings)(http.HandlerFunc(r.saveSettings))).Methods("PUT")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequirePermission(access.RunMaintenance))
	admin.HandleFunc("/activity/repair", r.repairActivity).Methods("POST")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	status := "ok"
	code := http.StatusOK
	if sqlDB, err := r.DB.DB(); err != nil || sqlDB.PingContext(req.Context()) != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":  status,
		"build":   buildinfo.Current(),
		"clients": r.hubClients(),
	})
}

func (r *Router) hubClients() int {
	if r.Hub == nil {
		return 0
	}
	return r.Hub.ClientCount()
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondAppError maps a service error onto an HTTP status
func (r *Router) respondAppError(w http.ResponseWriter, req *http.Request, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		r.log.Error("request failed",
			zap.String("method", req.Method), zap.String("path", req.URL.Path), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindInvalidState, apperrors.KindConflict:
		status = http.StatusConflict
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindForbidden:
		status = http.StatusForbidden
	case apperrors.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperrors.KindAllocationExhausted:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		r.log.Error("request failed",
			zap.String("method", req.Method), zap.String("path", req.URL.Path), zap.Error(err))
		respondError(w, status, "Internal server error")
		return
	}

	body := map[string]string{
		"error": appErr.Message,
		"code":  string(appErr.Kind),
	}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	respondJSON(w, status, body)
}

// decodeJSON reads the body into v
func decodeJSON(req *http.Request, v interface{}) error {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return apperrors.Validation("body", "Invalid request payload: "+err.Error())
	}
	return nil
}

// pathID parses the {id} route variable
func pathID(req *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("id", "invalid id")
	}
	return uint(id), nil
}

func queryInt(req *http.Request, key string) int {
	n, err := strconv.Atoi(req.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
