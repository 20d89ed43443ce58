/**
 * @description
 * This file contains the HTTP handlers for the subscription endpoints.
 * Handlers parse the request, call the application service, and translate
 * service errors into the stable error codes of the API. Internal error
 * details are logged, never returned to the client.
 */
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/keepsafe/keepsafe-api/internal/app"
	"github.com/keepsafe/keepsafe-api/internal/domain"
	"github.com/keepsafe/keepsafe-api/internal/store"
)

// Handler holds the application service the handlers call into. The webhook
// secret authenticates inbound mail deliveries; empty disables the check.
type Handler struct {
	service       *app.Service
	webhookSecret string
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *app.Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondWithJSON writes a JSON response body with the given status code.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError writes the API's error envelope: a stable machine
// readable code plus a human readable message.
func respondWithError(w http.ResponseWriter, code int, errCode, message string) {
	respondWithJSON(w, code, errorResponse{Error: errCode, Message: message})
}

// HandleCreateCheckoutSession handles POST /subscription/create-checkout-session.
func (h *Handler) HandleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
		return
	}

	var req struct {
		PriceID string `json:"priceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "ValidationError", "Invalid request body")
		return
	}

	url, err := h.service.CreateCheckoutSession(r.Context(), userID, req.PriceID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrPriceIDRequired):
			respondWithError(w, http.StatusBadRequest, "ValidationError", "Price ID is required")
		case errors.Is(err, store.ErrUserNotFound):
			respondWithError(w, http.StatusNotFound, "NotFound", "User not found")
		case errors.Is(err, store.ErrNoTeamMembership):
			respondWithError(w, http.StatusBadRequest, "NoTeamMembership", "You need to be part of a team to complete this action.")
		case errors.Is(err, app.ErrRateLimited):
			respondWithError(w, http.StatusTooManyRequests, "RateLimited", "Too many checkout attempts. Please wait and try again.")
		default:
			log.Printf("level=error component=api endpoint=create_checkout_session user_id=%s err=%v", userID, err)
			respondWithError(w, http.StatusInternalServerError, "InternalError", "Failed to create checkout session")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"url": url})
}

// HandleCreatePortalSession handles POST /subscription/create-portal-session.
func (h *Handler) HandleCreatePortalSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
		return
	}

	url, err := h.service.CreateBillingPortalSession(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrNoBillingCustomer):
			respondWithError(w, http.StatusBadRequest, "NoBillingCustomer", "No subscription found")
		case errors.Is(err, store.ErrNoTeamMembership):
			respondWithError(w, http.StatusBadRequest, "NoTeamMembership", "You need to be part of a team to complete this action.")
		default:
			log.Printf("level=error component=api endpoint=create_portal_session user_id=%s err=%v", userID, err)
			respondWithError(w, http.StatusInternalServerError, "InternalError", "Failed to create portal session")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"url": url})
}

// HandleVerifySession handles POST /subscription/verify-session: the client
// returns from checkout with a session token, and the reconciler exchanges
// it for authoritative state.
func (h *Handler) HandleVerifySession(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
		return
	}

	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "ValidationError", "Invalid request body")
		return
	}

	result, err := h.service.VerifyCheckoutSession(r.Context(), userID, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionIDRequired):
			respondWithError(w, http.StatusBadRequest, "ValidationError", "Session ID is required")
		case errors.Is(err, store.ErrNoTeamMembership):
			respondWithError(w, http.StatusBadRequest, "NoTeamMembership", "You need to be part of a team to complete this action.")
		case errors.Is(err, domain.ErrNoSubscriptionInSession):
			respondWithError(w, http.StatusBadRequest, "UpstreamVerificationFailed", "No subscription found in session")
		case errors.Is(err, domain.ErrNoCustomerInSession):
			respondWithError(w, http.StatusBadRequest, "UpstreamVerificationFailed", "No customer ID found in subscription")
		default:
			log.Printf("level=error component=api endpoint=verify_session user_id=%s err=%v", userID, err)
			respondWithError(w, http.StatusInternalServerError, "InternalError", "Failed to verify subscription")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"subscription": result,
	})
}

// HandleGetSubscription handles GET /user/subscription.
func (h *Handler) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "No active session found")
		return
	}

	summary, err := h.service.GetSubscription(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNoTeamMembership):
			respondWithError(w, http.StatusNotFound, "NoTeamMembership", "User is not a member of any team")
		default:
			log.Printf("level=error component=api endpoint=get_subscription user_id=%s err=%v", userID, err)
			respondWithError(w, http.StatusInternalServerError, "InternalError", "Unable to load subscription status")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}
