/**
 * @description
 * This file contains the HTTP handlers for the email management endpoints:
 * dashboard listing, retrieval and deletion, forwarding, generated
 * forwarding addresses, and the inbound mail-provider webhook.
 */
package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keepsafe/keepsafe-api/internal/app"
	"github.com/keepsafe/keepsafe-api/internal/domain"
	"github.com/keepsafe/keepsafe-api/internal/store"
)

// HandleListEmails handles GET /emails. An optional ?status= query filters
// by stored status.
func (h *Handler) HandleListEmails(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
		return
	}

	items, err := h.service.ListEmails(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		log.Printf("level=error component=api endpoint=list_emails user_id=%s err=%v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "InternalError", "Error fetching emails")
		return
	}
	respondWithJSON(w, http.StatusOK, items)
}

// emailIDFromRequest parses the {id} route parameter.
func emailIDFromRequest(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// HandleGetEmail handles GET /emails/{id}.
func (h *Handler) HandleGetEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
		return
	}
	emailID, err := emailIDFromRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "ValidationError", "Invalid email ID")
		return
	}

	email, err := h.service.GetEmail(r.Context(), userID, emailID)
	if err != nil {
		if errors.Is(err, store.ErrEmailNotFound) {
			respondWithError(w, http.StatusNotFound, "NotFound", "Email not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_email user_id=%s email_id=%s err=%v", userID, emailID, err)
		respondWithError(w, http.StatusInternalServerError, "InternalError", "Error fetching email")
		return
	}
	respondWithJSON(w, http.StatusOK, email)
}

// HandleDeleteEmail handles DELETE /emails/{id}.
func (h *Handler) HandleDeleteEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
		return
	}
	emailID, err := emailIDFromRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "ValidationError", "Invalid email ID")
		return
	}

	deleted, err := h.service.DeleteEmail(r.Context(), userID, emailID)
	if err != nil {
		log.Printf("level=error component=api endpoint=delete_email user_id=%s email_id=%s err=%v", userID, emailID, err)
		respondWithError(w, http.StatusInternalServerError, "InternalError", "Error deleting email")
		return
	}
	if !deleted {
		respondWithError(w, http.StatusNotFound, "NotFound", "Email not found")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleForwardEmail handles POST /email/forward. The route is wrapped by
// the access gate; the service re-checks the subscription before sending.
func (h *Handler) HandleForwardEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
		return
	}

	var req struct {
		EmailID string `json:"emailId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EmailID == "" {
		respondWithError(w, http.StatusBadRequest, "ValidationError", "Email ID is required")
		return
	}
	emailID, err := uuid.Parse(req.EmailID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "ValidationError", "Invalid email ID")
		return
	}

	if err := h.service.ForwardEmail(r.Context(), userID, emailID); err != nil {
		switch {
		case errors.Is(err, app.ErrSubscriptionRequired):
			payload := gateDenial{
				Error:   "SubscriptionRequired",
				Message: "Active subscription required to forward emails",
			}
			if team, ok := TeamFromContext(r.Context()); ok {
				payload.TeamID = &team.ID
				payload.TeamName = team.Name
			}
			respondWithJSON(w, http.StatusForbidden, payload)
		case errors.Is(err, store.ErrEmailNotFound):
			respondWithError(w, http.StatusNotFound, "NotFound", "Email not found or access denied")
		case errors.Is(err, app.ErrRateLimited):
			respondWithError(w, http.StatusTooManyRequests, "RateLimited", "Too many forwarding attempts. Please wait and try again.")
		default:
			log.Printf("level=error component=api endpoint=forward_email user_id=%s email_id=%s err=%v", userID, emailID, err)
			respondWithError(w, http.StatusInternalServerError, "InternalError", "Failed to forward email")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Email forwarded successfully",
	})
}

// HandleGetForwardingAddress handles GET /email/forwarding. Responds 204
// when the user has not generated an address yet.
func (h *Handler) HandleGetForwardingAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
		return
	}

	addr, err := h.service.GetForwardingAddress(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNoForwardingAddress) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		log.Printf("level=error component=api endpoint=get_forwarding_address user_id=%s err=%v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "InternalError", "Error checking forwarding email")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"email": addr.Email})
}

// HandleGenerateAddress handles POST /email/generate-address.
func (h *Handler) HandleGenerateAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
		return
	}

	addr, err := h.service.GenerateForwardingAddress(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=generate_address user_id=%s err=%v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "InternalError", "Error generating email address")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"email": addr.Email})
}

// HandleInboundWebhook handles POST /email/webhook: the mail provider
// delivers inbound messages here. Messages to unknown addresses are
// acknowledged and dropped so the provider does not retry them forever.
func (h *Handler) HandleInboundWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "ValidationError", "Unable to read webhook payload")
		return
	}
	if !h.isValidWebhookSignature(r.Header.Get("X-Webhook-Signature"), body) {
		log.Printf("level=warn component=api endpoint=email_webhook outcome=rejected reason=bad_signature")
		respondWithError(w, http.StatusUnauthorized, "InvalidSignature", "Webhook signature validation failed")
		return
	}

	var inbound domain.InboundEmail
	if err := json.Unmarshal(body, &inbound); err != nil {
		respondWithError(w, http.StatusBadRequest, "ValidationError", "Invalid webhook payload")
		return
	}

	created, err := h.service.IngestInboundEmail(r.Context(), inbound)
	if err != nil {
		if errors.Is(err, store.ErrAddressOwnerNotFound) {
			log.Printf("level=info component=api endpoint=email_webhook outcome=dropped to=%s", inbound.To)
			respondWithJSON(w, http.StatusAccepted, map[string]interface{}{
				"success": true,
				"message": "Recipient unknown; message dropped",
			})
			return
		}
		log.Printf("level=error component=api endpoint=email_webhook err=%v", err)
		respondWithError(w, http.StatusInternalServerError, "InternalError", "Error processing webhook")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      created.ID,
	})
}

// isValidWebhookSignature checks the HMAC-SHA256 signature the mail provider
// attaches to deliveries. Providers differ in how they encode the digest, so
// both base64 and hex encodings are accepted. An empty configured secret
// disables the check.
func (h *Handler) isValidWebhookSignature(signatureHeader string, body []byte) bool {
	if h.webhookSecret == "" {
		return true
	}
	if signatureHeader == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	digest := mac.Sum(nil)

	if sig, err := base64.StdEncoding.DecodeString(signatureHeader); err == nil && hmac.Equal(sig, digest) {
		return true
	}
	if sig, err := hex.DecodeString(signatureHeader); err == nil && hmac.Equal(sig, digest) {
		return true
	}
	return false
}
