/**
 * @description
 * This file contains the session authentication middleware. The service
 * accepts one identity representation: an HS256-signed session token whose
 * `sub` claim is the user's UUID. The token may arrive either as a Bearer
 * Authorization header or as the `session` cookie; both paths feed the same
 * verification and the same context key.
 */
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const userIDKey = contextKey("userID")

// sessionTokenFromRequest extracts the raw token, preferring the
// Authorization header over the session cookie.
func sessionTokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != authHeader {
			return token
		}
		return ""
	}
	if cookie, err := r.Cookie("session"); err == nil {
		return cookie.Value
	}
	return ""
}

// SessionAuthMiddleware validates session tokens and injects the caller's
// user ID into the request context. Requests without a valid token get a
// 401 with the NotAuthenticated error code.
func SessionAuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := sessionTokenFromRequest(r)
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "You must be logged in to perform this action")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "Invalid or expired session")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "Invalid session claims")
				return
			}
			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "Session carries no user identity")
				return
			}
			userID, err := uuid.Parse(subject)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "NotAuthenticated", "Session carries a malformed user identity")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID retrieves the authenticated user's ID from the request context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}
