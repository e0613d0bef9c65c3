package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/middleware"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/services/allocator"
	"github.com/xelth-com/eckbackoffice/internal/services/clients"
	"go.uber.org/zap"
)

// RejectRequest carries the optional rejection reason
type RejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// listPendingClients lists requests. Without manage_pending_clients callers only see their own.
func (r *Router) listPendingClients(w http.ResponseWriter, req *http.Request) {
	actor := middleware.ActorFrom(req.Context())
	var f clients.Filter

	if status := req.URL.Query().Get("status"); status != "" {
		if !clients.ValidStatus(status) {
			respondError(w, http.StatusBadRequest, "Unknown status "+status)
			return
		}
		f.Status = models.ClientStatus(status)
	}
	if !actor.Can(access.ManagePendingClients) || req.URL.Query().Get("mine") == "1" {
		f.CreatedBy = actor.UserRef()
	}

	list, err := r.Clients.List(req.Context(), f)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (r *Router) createPendingClient(w http.ResponseWriter, req *http.Request) {
	var in clients.Input
	if err := decodeJSON(req, &in); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	client, err := r.Clients.Create(req.Context(), middleware.ActorFrom(req.Context()), in)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, client)
}

func (r *Router) getPendingClient(w http.ResponseWriter, req *http.Request) {
	client, ok := r.visiblePendingClient(w, req)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, client)
}

func (r *Router) updatePendingClient(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	var in clients.Input
	if err := decodeJSON(req, &in); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	client, err := r.Clients.Update(req.Context(), middleware.ActorFrom(req.Context()), id, in)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, client)
}

func (r *Router) deletePendingClient(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	if err := r.Clients.Delete(req.Context(), middleware.ActorFrom(req.Context()), id); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) pendingClientApprovals(w http.ResponseWriter, req *http.Request) {
	client, ok := r.visiblePendingClient(w, req)
	if !ok {
		return
	}
	records, err := r.Approval.History(req.Context(), client.ID)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (r *Router) submitPendingClient(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	record, err := r.Approval.Submit(req.Context(), middleware.ActorFrom(req.Context()), id)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (r *Router) resubmitPendingClient(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	record, err := r.Approval.Resubmit(req.Context(), middleware.ActorFrom(req.Context()), id)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// approvePendingClient retries once when allocation runs out of candidates,
// since competing approvals usually have committed by then.
func (r *Router) approvePendingClient(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	actor := middleware.ActorFrom(req.Context())

	decision, err := r.Approval.Approve(req.Context(), actor, id)
	if errors.Is(err, apperrors.ErrAllocationExhausted) {
		r.log.Warn("account number allocation exhausted, retrying approval", zap.Uint("client", id))
		decision, err = r.Approval.Approve(req.Context(), actor, id)
	}
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

func (r *Router) rejectPendingClient(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}

	var body RejectRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	body.Reason = strings.TrimSpace(body.Reason)
	if err := r.Validator.Struct(body); err != nil {
		r.respondAppError(w, req, err)
		return
	}

	org, err := r.Settings.Load(req.Context())
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	if org.RequireRejectionReason && body.Reason == "" {
		r.respondAppError(w, req, apperrors.Validation("reason", "a rejection reason is required"))
		return
	}

	record, err := r.Approval.Reject(req.Context(), middleware.ActorFrom(req.Context()), id, body.Reason)
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// nextAccountNumber previews the number the next approval would receive
func (r *Router) nextAccountNumber(w http.ResponseWriter, req *http.Request) {
	actor := middleware.ActorFrom(req.Context())
	if !actor.Can(access.CreatePendingClients) && !actor.Can(access.ManagePendingClients) {
		respondError(w, http.StatusForbidden, "Permission "+access.CreatePendingClients+" required")
		return
	}
	number, err := r.Allocator.Allocate(req.Context(), allocator.NewGormSource(r.DB.WithContext(req.Context())))
	if err != nil {
		r.respondAppError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"accountNumber": number})
}

func (r *Router) visiblePendingClient(w http.ResponseWriter, req *http.Request) (*models.PendingClient, bool) {
	id, err := pathID(req)
	if err != nil {
		r.respondAppError(w, req, err)
		return nil, false
	}
	client, err := r.Clients.Get(req.Context(), id)
	if err != nil {
		r.respondAppError(w, req, err)
		return nil, false
	}
	actor := middleware.ActorFrom(req.Context())
	if !actor.Can(access.ManagePendingClients) && (client.CreatedBy == nil || *client.CreatedBy != actor.UserID) {
		r.respondAppError(w, req, apperrors.NotFound("pending client", id))
		return nil, false
	}
	return client, true
}
