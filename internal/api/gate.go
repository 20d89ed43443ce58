/**
 * @description
 * This file implements the access gate: the synchronous authorization check
 * run in front of subscription-protected operations. The gate is a pure
 * function of the record store's state at call time; it re-reads the store
 * on every request so a status change between requests takes effect
 * immediately.
 */
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/keepsafe/keepsafe-api/internal/domain"
	"github.com/keepsafe/keepsafe-api/internal/store"
)

const teamKey = contextKey("team")

// TeamLoader resolves the caller's billable entity. The store's Repository
// satisfies it.
type TeamLoader interface {
	GetTeamForUser(ctx context.Context, userID uuid.UUID) (*domain.Team, *domain.Membership, error)
}

// gateDenial is the 403 payload; team identity is included so the client can
// render an upgrade call-to-action.
type gateDenial struct {
	Error    string     `json:"error"`
	Message  string     `json:"message"`
	TeamID   *uuid.UUID `json:"teamId,omitempty"`
	TeamName string     `json:"teamName,omitempty"`
}

// RequireActiveSubscription denies any request whose team subscription
// status is not exactly "active". Allowed requests carry the resolved team
// in their context so downstream handlers avoid a second lookup.
func RequireActiveSubscription(loader TeamLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
				return
			}

			team, _, err := loader.GetTeamForUser(r.Context(), userID)
			if err != nil {
				if errors.Is(err, store.ErrNoTeamMembership) {
					respondWithJSON(w, http.StatusForbidden, gateDenial{
						Error:   "NoTeamMembership",
						Message: "You need to be part of a team to access this feature.",
					})
					return
				}
				respondWithError(w, http.StatusInternalServerError, "InternalError", "Unable to verify subscription status.")
				return
			}

			if !team.HasActiveSubscription() {
				respondWithJSON(w, http.StatusForbidden, gateDenial{
					Error:    "SubscriptionRequired",
					Message:  "Please upgrade your team plan to access this feature.",
					TeamID:   &team.ID,
					TeamName: team.Name,
				})
				return
			}

			ctx := context.WithValue(r.Context(), teamKey, team)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TeamFromContext retrieves the team attached by the access gate.
func TeamFromContext(ctx context.Context) (*domain.Team, bool) {
	team, ok := ctx.Value(teamKey).(*domain.Team)
	return team, ok
}
