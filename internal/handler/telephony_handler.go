package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jperram92/dograh/internal/services/call"
	"github.com/jperram92/dograh/internal/telephony"
	"github.com/jperram92/dograh/pkg/logger"
	"go.uber.org/zap"
)

// TelephonyHandler serves the call initiation, call-control webhook and
// status callback endpoints.
type TelephonyHandler struct {
	service   *call.Service
	providers telephony.ProviderAcquirer
}

// NewTelephonyHandler creates a new telephony handler.
func NewTelephonyHandler(service *call.Service, providers telephony.ProviderAcquirer) *TelephonyHandler {
	return &TelephonyHandler{service: service, providers: providers}
}

// SetupTelephonyRoutes registers the telephony routes on the given subrouter.
// sessionSecret protects only the caller-facing initiate-call endpoint; the
// carrier-facing webhook endpoints carry their own trust model (server-side
// generated query parameters, optional signature verification).
func (h *TelephonyHandler) SetupTelephonyRoutes(router *mux.Router, sessionSecret string) {
	telRouter := router.PathPrefix("/telephony").Subrouter()

	telRouter.Handle("/initiate-call",
		SessionMiddleware(sessionSecret)(http.HandlerFunc(h.HandleInitiateCall))).Methods("POST")
	telRouter.HandleFunc("/twiml", h.HandleCallControlWebhook).Methods("POST")
	telRouter.HandleFunc("/status-callback/{workflow_run_id}", h.HandleStatusCallback).Methods("POST")

	logger.Base().Info("telephony routes registered")
}

// HandleInitiateCall handles POST /api/v1/telephony/initiate-call.
func (h *TelephonyHandler) HandleInitiateCall(w http.ResponseWriter, r *http.Request) {
	user, ok := SessionUserFrom(r.Context())
	if !ok || user.ID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "not_authenticated"})
		return
	}

	var req call.InitiateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid_request_body"})
		return
	}

	runName, err := h.service.InitiateCall(r.Context(), user.ID, user.OrganizationID, req)
	if err != nil {
		h.writeInitiateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Call initiated successfully with run name " + runName,
	})
}

// writeInitiateError maps service errors onto stable detail codes.
func (h *TelephonyHandler) writeInitiateError(w http.ResponseWriter, err error) {
	var configInvalid *telephony.ConfigInvalidError
	switch {
	case errors.Is(err, call.ErrNotConfigured),
		errors.Is(err, telephony.ErrConfigurationNotFound),
		errors.As(err, &configInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": call.ErrNotConfigured.Error()})
	case errors.Is(err, call.ErrRunNotFound):
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": call.ErrRunNotFound.Error()})
	case errors.Is(err, call.ErrNoDestinationNumber):
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": call.ErrNoDestinationNumber.Error()})
	default:
		logger.Base().Error("failed to initiate call", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal_error"})
	}
}

// HandleCallControlWebhook handles the carrier's initial webhook and answers
// with the provider-native call-control document (TwiML for Twilio).
func (h *TelephonyHandler) HandleCallControlWebhook(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	workflowID := query.Get("workflow_id")
	userID := query.Get("user_id")
	workflowRunID := query.Get("workflow_run_id")
	organizationID := query.Get("organization_id")

	provider, err := h.providers.AcquireProvider(r.Context(), organizationID)
	if err != nil {
		logger.Base().Error("failed to acquire provider for call-control webhook",
			zap.String("organization_id", organizationID), zap.Error(err))
		http.Error(w, "telephony provider unavailable", http.StatusInternalServerError)
		return
	}

	document, err := provider.WebhookResponse(workflowID, userID, workflowRunID)
	if err != nil {
		logger.Base().Error("failed to build call-control response",
			zap.String("workflow_run_id", workflowRunID), zap.Error(err))
		http.Error(w, "failed to build call-control response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(document))
}

// HandleStatusCallback handles carrier status callbacks. The response is
// always 200 with a descriptive status payload; surfacing an error status
// code here would only trigger unbounded carrier redelivery.
func (h *TelephonyHandler) HandleStatusCallback(w http.ResponseWriter, r *http.Request) {
	workflowRunID := mux.Vars(r)["workflow_run_id"]

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusOK, call.CallbackResult{
			Status: call.CallbackStatusError,
			Reason: "malformed_payload",
		})
		return
	}

	signature := r.Header.Get("X-Twilio-Signature")
	result := h.service.HandleStatusCallback(r.Context(), workflowRunID, r.PostForm, signature)
	writeJSON(w, http.StatusOK, result)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Base().Error("failed to encode response", zap.Error(err))
	}
}
