package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ride-engagement/internal/attestation/repository"
	"ride-engagement/internal/common/auth"
	"ride-engagement/internal/engagement/handler/dto"
	"ride-engagement/internal/engagement/model"
	"ride-engagement/internal/engagement/service"
	"ride-engagement/internal/prompt"

	"go.uber.org/zap"
)

type EngagementHandler struct {
	manager  *service.Manager
	journal  *repository.AttestationRepository
	resolver *prompt.Resolver
	verifier *auth.Verifier
	log      *zap.Logger
}

func NewEngagementHandler(manager *service.Manager, journal *repository.AttestationRepository, resolver *prompt.Resolver, verifier *auth.Verifier, log *zap.Logger) *EngagementHandler {
	return &EngagementHandler{manager: manager, journal: journal, resolver: resolver, verifier: verifier, log: log}
}

func (h *EngagementHandler) SetupRoutes(mux *http.ServeMux) {
	driver := func(fn http.HandlerFunc) http.HandlerFunc {
		return h.verifier.RequireRole(auth.RoleDriver, fn)
	}

	mux.HandleFunc("POST /engagement", driver(h.BeginEngagement))
	mux.HandleFunc("GET /engagement", driver(h.GetEngagement))
	mux.HandleFunc("DELETE /engagement", driver(h.CancelEngagement))
	mux.HandleFunc("POST /engagement/transition", driver(h.RequestTransition))
	mux.HandleFunc("POST /engagement/force-phase", driver(h.ForcePhaseChange))
	mux.HandleFunc("POST /engagement/confirmation/trigger", driver(h.TriggerConfirmation))
	mux.HandleFunc("POST /engagement/confirmation/{kind}/resolve",
		h.verifier.RequireRole("", h.ResolveConfirmation))
	mux.HandleFunc("POST /engagement/confirmation/{kind}/cancel", driver(h.CancelConfirmation))
	mux.HandleFunc("POST /engagement/confirmation/{kind}/reset", driver(h.ResetConfirmation))
	mux.HandleFunc("POST /engagement/clear-error", driver(h.ClearError))
	mux.HandleFunc("POST /engagement/route/retry", driver(h.RetryRoute))
	mux.HandleFunc("POST /engagement/route/resolve", driver(h.ResolveRoute))
	mux.HandleFunc("GET /engagement/attestations", driver(h.ListAttestations))
}

func (h *EngagementHandler) BeginEngagement(w http.ResponseWriter, r *http.Request) {
	var req dto.BeginEngagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	svc, err := h.manager.Begin(r.Context(), service.BeginRequest{
		RideID:      req.RideID,
		DriverID:    req.DriverID,
		PassengerID: req.PassengerID,
		Pickup:      req.Pickup.Coordinate(),
		Dropoff:     req.Destination.Coordinate(),
	})
	if err != nil {
		if errors.Is(err, service.ErrEngagementInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.log.Error("failed to begin engagement", zap.String("ride_id", req.RideID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to begin engagement")
		return
	}

	h.log.Info("engagement started", zap.String("ride_id", req.RideID))
	writeJSON(w, http.StatusCreated, svc.Snapshot())
}

func (h *EngagementHandler) GetEngagement(w http.ResponseWriter, r *http.Request) {
	svc, err := h.manager.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (h *EngagementHandler) CancelEngagement(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Cancel(); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EngagementHandler) RequestTransition(w http.ResponseWriter, r *http.Request) {
	svc, err := h.manager.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req dto.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := svc.RequestTransition(model.NavigationPhase(req.Target)); err != nil {
		var invalid *model.InvalidTransitionError
		if errors.As(err, &invalid) {
			// Reported, not fatal: the snapshot carries the error and the
			// phase is unchanged.
			writeJSON(w, http.StatusUnprocessableEntity, svc.Snapshot())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (h *EngagementHandler) ForcePhaseChange(w http.ResponseWriter, r *http.Request) {
	svc, err := h.manager.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req dto.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	svc.ForcePhaseChange(model.NavigationPhase(req.Target))
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (h *EngagementHandler) TriggerConfirmation(w http.ResponseWriter, r *http.Request) {
	svc, err := h.manager.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := svc.TriggerManualConfirmation(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

// ResolveConfirmation is the counterparty's answer to the pending prompt.
// Any authenticated party may answer; a missing prompt (already timed out)
// is reported, not an error.
func (h *EngagementHandler) ResolveConfirmation(w http.ResponseWriter, r *http.Request) {
	svc, kind, ok := h.currentWithKind(w, r)
	if !ok {
		return
	}

	var req dto.ConfirmationResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if !h.resolver.Answer(kind, req.Confirmed) {
		writeError(w, http.StatusConflict, "no confirmation prompt is waiting")
		return
	}
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (h *EngagementHandler) CancelConfirmation(w http.ResponseWriter, r *http.Request) {
	svc, kind, ok := h.currentWithKind(w, r)
	if !ok {
		return
	}
	svc.CancelConfirmation(kind)
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (h *EngagementHandler) ResetConfirmation(w http.ResponseWriter, r *http.Request) {
	svc, kind, ok := h.currentWithKind(w, r)
	if !ok {
		return
	}
	svc.ResetConfirmation(kind)
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (h *EngagementHandler) currentWithKind(w http.ResponseWriter, r *http.Request) (*service.EngagementService, model.ZoneKind, bool) {
	svc, err := h.manager.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, "", false
	}

	kind := model.ZoneKind(r.PathValue("kind"))
	if kind != model.ZonePickup && kind != model.ZoneDestination {
		writeError(w, http.StatusBadRequest, "kind must be pickup or destination")
		return nil, "", false
	}
	return svc, kind, true
}

func (h *EngagementHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	svc, err := h.manager.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	svc.ClearError()
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (h *EngagementHandler) RetryRoute(w http.ResponseWriter, r *http.Request) {
	svc, err := h.manager.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	svc.RetryRoute()
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (h *EngagementHandler) ResolveRoute(w http.ResponseWriter, r *http.Request) {
	svc, err := h.manager.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req dto.ResolveRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	choice := service.RecoveryChoice(req.Choice)
	switch choice {
	case service.RecoveryRetry, service.RecoverySkipGuidance, service.RecoveryAbort:
	default:
		writeError(w, http.StatusBadRequest, "choice must be retry, skip_guidance or abort")
		return
	}

	svc.ResolveRoute(choice)
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (h *EngagementHandler) ListAttestations(w http.ResponseWriter, r *http.Request) {
	svc, err := h.manager.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if h.journal == nil {
		writeJSON(w, http.StatusOK, svc.Attestations())
		return
	}

	records, err := h.journal.ListByRide(r.Context(), svc.Snapshot().Engagement.RideID)
	if err != nil {
		h.log.Error("failed to list attestations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list attestations")
		return
	}

	out := make([]dto.AttestationRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, dto.AttestationRecord{
			UID:           rec.UID,
			TxHash:        rec.TxHash,
			BlockNumber:   rec.BlockNumber,
			GasUsed:       rec.GasUsed,
			Kind:          rec.Kind,
			ZoneKind:      rec.ZoneKind,
			Phase:         rec.Phase,
			Latitude:      rec.Latitude,
			Longitude:     rec.Longitude,
			Memo:          rec.Memo,
			AutoConfirmed: rec.AutoConfirmed,
			CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}
