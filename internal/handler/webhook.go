package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/homeadapt/securevoice/internal/audit"
	apperrors "github.com/homeadapt/securevoice/internal/errors"
	"github.com/homeadapt/securevoice/internal/service"
	"github.com/homeadapt/securevoice/internal/session"
)

// WebhookHandler is the unified entry point for voice platform events. Every
// classified event answers HTTP 200; failures travel inside the response body
// so the platform can speak them instead of aborting the call.
type WebhookHandler struct {
	resolver    *service.Resolver
	sessions    *session.Store
	forwarder   *service.ForwardService
	assistantID string
}

func NewWebhookHandler(
	resolver *service.Resolver,
	sessions *session.Store,
	forwarder *service.ForwardService,
	assistantID string,
) *WebhookHandler {
	return &WebhookHandler{
		resolver:    resolver,
		sessions:    sessions,
		forwarder:   forwarder,
		assistantID: assistantID,
	}
}

// signals extracts the identity inputs from query params and headers.
func signals(r *http.Request) service.Signals {
	sig := service.Signals{
		TenantHeader:  r.Header.Get("x-tenant-id"),
		SessionID:     r.URL.Query().Get("session_id"),
		DeviceIDParam: r.URL.Query().Get("device_id"),
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		sig.BearerToken = strings.TrimPrefix(auth, "Bearer ")
	}
	return sig
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid webhook request body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	sig := signals(r)
	messageType := req.Message.Type

	log.Debug().
		Str("messageType", messageType).
		Bool("hasSession", sig.SessionID != "").
		Bool("hasDevice", sig.DeviceIDParam != "").
		Msg("webhook event received")

	switch messageType {
	case eventStatusUpdate:
		h.handleStatusUpdate(w, r, &req, sig)
	case eventTranscript:
		h.handleTranscript(w, &req)
	case eventAssistantRequest:
		h.handleAssistantRequest(w, sig)
	case eventEndOfCallReport:
		h.handleEndOfCallReport(w, &req, sig)
	case eventConversationUpdate:
		h.handleConversationUpdate(w, &req, sig)
	case eventFunctionCall, eventToolCalls:
		h.handleToolInvocation(w, r, &req, sig)
	case eventConversationStarted:
		h.handleConversationStarted(w, r, sig)
	default:
		log.Info().Str("messageType", messageType).Msg("unhandled webhook event type")
		writeJSON(w, http.StatusOK,
			assistantMessageResponse(fmt.Sprintf("Unhandled message type: %s", messageType)))
	}
}

func (h *WebhookHandler) handleStatusUpdate(w http.ResponseWriter, r *http.Request, req *WebhookRequest, sig service.Signals) {
	callID := "unknown"
	if req.Call != nil && req.Call.ID != "" {
		callID = req.Call.ID
	}
	log.Info().
		Str("callId", callID).
		Str("status", req.Message.Status).
		Msg("call status update")

	if sig.SessionID != "" {
		status := req.Message.Status
		h.sessions.Touch(sig.SessionID, session.Activity{CallStatus: &status})
	}

	writeJSON(w, http.StatusOK, ackResponse{Message: "Status update received"})
}

func (h *WebhookHandler) handleTranscript(w http.ResponseWriter, req *WebhookRequest) {
	transcriptType := req.Message.TranscriptType
	if transcriptType == "" {
		transcriptType = "partial"
	}
	log.Debug().
		Str("transcriptType", transcriptType).
		Str("role", req.Message.Role).
		Str("transcript", req.Message.Transcript).
		Msg("transcript event")

	writeJSON(w, http.StatusOK, ackResponse{Message: "Transcript received"})
}

func (h *WebhookHandler) handleAssistantRequest(w http.ResponseWriter, sig service.Signals) {
	if sig.SessionID != "" {
		if record, ok := h.sessions.Get(sig.SessionID); ok {
			log.Debug().Str("tenantId", record.TenantID).Msg("assistant request for known session")
		}
	}

	writeJSON(w, http.StatusOK, assistantResponse{
		Assistant: assistantDescriptor{AssistantID: h.assistantID},
	})
}

func (h *WebhookHandler) handleEndOfCallReport(w http.ResponseWriter, req *WebhookRequest, sig service.Signals) {
	callID := "unknown"
	if req.Call != nil && req.Call.ID != "" {
		callID = req.Call.ID
	}
	log.Info().
		Str("callId", callID).
		Str("endedReason", req.Message.EndedReason).
		Msg("call ended")

	if sig.SessionID != "" {
		h.sessions.Touch(sig.SessionID, session.Activity{CallEnded: true})
	}

	writeJSON(w, http.StatusOK, ackResponse{Message: "Call report received"})
}

func (h *WebhookHandler) handleConversationUpdate(w http.ResponseWriter, req *WebhookRequest, sig service.Signals) {
	length := len(req.Message.Conversation)
	log.Debug().Int("messages", length).Msg("conversation update")

	if sig.SessionID != "" {
		h.sessions.Touch(sig.SessionID, session.Activity{ConversationLength: &length})
	}

	writeJSON(w, http.StatusOK, ackResponse{Message: "Conversation update received"})
}

func (h *WebhookHandler) handleToolInvocation(w http.ResponseWriter, r *http.Request, req *WebhookRequest, sig service.Signals) {
	fn := req.Message.Function()
	if fn == nil || fn.Name == "" {
		writeJSON(w, http.StatusOK,
			toolResultResponse("", "Unknown function: "))
		return
	}

	switch fn.Name {
	case functionHomeAuth:
		h.authenticate(w, r, sig, authChannelTool)
	case functionDeviceControl:
		h.control(w, r, fn, sig)
	default:
		log.Warn().Str("function", fn.Name).Msg("unknown tool function")
		writeJSON(w, http.StatusOK,
			toolResultResponse(fn.Name, fmt.Sprintf("Unknown function: %s", fn.Name)))
	}
}

func (h *WebhookHandler) handleConversationStarted(w http.ResponseWriter, r *http.Request, sig service.Signals) {
	h.authenticate(w, r, sig, authChannelCallStart)
}

// authChannel selects the response shape for authentication outcomes.
type authChannel int

const (
	authChannelTool authChannel = iota
	authChannelCallStart
)

func writeAuthResult(w http.ResponseWriter, channel authChannel, text string) {
	switch channel {
	case authChannelCallStart:
		writeJSON(w, http.StatusOK, firstMessageResponse{FirstMessage: text})
	default:
		writeJSON(w, http.StatusOK, toolResultResponse(functionHomeAuth, text))
	}
}

// authenticate handles the home_auth function and call-start events. It never
// creates sessions; it only flips an existing session to authenticated when
// the credentials captured at session creation were valid.
func (h *WebhookHandler) authenticate(w http.ResponseWriter, r *http.Request, sig service.Signals, channel authChannel) {
	if sig.BearerToken == "" && sig.SessionID == "" && sig.DeviceIDParam == "" {
		if channel == authChannelCallStart {
			writeAuthResult(w, channel, "No session ID provided")
		} else {
			writeAuthResult(w, channel, "No session ID provided for authentication")
		}
		return
	}

	identity, err := h.resolver.Resolve(r.Context(), sig)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:      audit.EventAuthFailure,
			SessionID: sig.SessionID,
			DeviceID:  sig.DeviceIDParam,
		})
		writeAuthResult(w, channel, authFailureText(err))
		return
	}

	switch identity.Method {
	case service.MethodSession:
		if !identity.Session.CredentialsValid() {
			audit.LogFromRequest(r, audit.Event{
				Type:      audit.EventAuthFailure,
				TenantID:  identity.Tenant.ID,
				SessionID: identity.Session.ID,
			})
			writeAuthResult(w, channel, "Authentication failed")
			return
		}
		h.sessions.MarkAuthenticated(identity.Session.ID)
		audit.LogFromRequest(r, audit.Event{
			Type:      audit.EventAuthSuccess,
			TenantID:  identity.Tenant.ID,
			SessionID: identity.Session.ID,
		})
		writeAuthResult(w, channel, welcomeText(identity.Tenant.DisplayName))
	case service.MethodNone:
		writeAuthResult(w, channel, "Authentication failed")
	default:
		// Token and shared-secret callers already proved a credential.
		audit.LogFromRequest(r, audit.Event{
			Type:     audit.EventAuthSuccess,
			TenantID: identity.Tenant.ID,
			DeviceID: identity.DeviceID,
		})
		writeAuthResult(w, channel, welcomeText(identity.Tenant.DisplayName))
	}
}

func welcomeText(displayName string) string {
	if displayName == "" {
		displayName = "your home"
	}
	return fmt.Sprintf(
		"Welcome! Authentication successful. I'm Luna, controlling %s. How can I help you today?",
		displayName)
}

// authFailureText maps identity resolution errors to the strings the
// assistant speaks.
func authFailureText(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		switch appErr.Code {
		case apperrors.ErrCodeSessionNotFound:
			return "Invalid session ID"
		case apperrors.ErrCodeSessionExpired:
			return "Session expired. Please reconnect."
		}
	}
	return "Authentication failed"
}

// control handles the device control function. Preconditions run in order
// and each failure returns its own message.
func (h *WebhookHandler) control(w http.ResponseWriter, r *http.Request, fn *FunctionCall, sig service.Signals) {
	reply := func(text string) {
		writeJSON(w, http.StatusOK, toolResultResponse(functionDeviceControl, text))
	}

	identity, err := h.resolver.Resolve(r.Context(), sig)
	if err != nil {
		reply(controlFailureText(err))
		return
	}
	if identity.Method == service.MethodNone {
		reply("No session ID provided")
		return
	}
	if !identity.Authenticated() {
		reply("Not authenticated. Please authenticate first.")
		return
	}

	args, err := fn.DecodeArguments()
	if err != nil {
		log.Warn().Err(err).Msg("malformed control arguments")
		reply("Missing device or action")
		return
	}
	if args.Device == "" || args.Action == "" {
		reply("Missing device or action")
		return
	}

	result, err := h.forwarder.Forward(r.Context(), identity.Tenant, args.Device, args.Action)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			reply(fmt.Sprintf("Error: %s", appErr.Message))
			return
		}
		reply("Error: command could not be delivered")
		return
	}

	reply(result)
}

func controlFailureText(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		switch appErr.Code {
		case apperrors.ErrCodeSessionNotFound:
			return "Invalid session ID"
		case apperrors.ErrCodeSessionExpired:
			return "Session expired. Please reconnect."
		case apperrors.ErrCodeTokenExpired:
			return "Device token expired. Please re-authenticate."
		case apperrors.ErrCodeDeviceRevoked:
			return "Device has been revoked"
		}
	}
	return "Not authenticated. Please authenticate first."
}
