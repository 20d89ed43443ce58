package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-session-secret"

func signSessionToken(t *testing.T, secret, subject string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": expiresAt.Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func runAuth(req *http.Request) (*httptest.ResponseRecorder, uuid.UUID, bool) {
	var gotID uuid.UUID
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, reached = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	SessionAuthMiddleware(testSecret)(next).ServeHTTP(rec, req)
	return rec, gotID, reached
}

func TestSessionAuth_BearerToken(t *testing.T) {
	userID := uuid.New()
	token := signSessionToken(t, testSecret, userID.String(), time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/user/subscription", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec, gotID, reached := runAuth(req)
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got code=%d reached=%v", rec.Code, reached)
	}
	if gotID != userID {
		t.Fatalf("context carries %s, want %s", gotID, userID)
	}
}

func TestSessionAuth_SessionCookie(t *testing.T) {
	userID := uuid.New()
	token := signSessionToken(t, testSecret, userID.String(), time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/user/subscription", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})

	rec, gotID, reached := runAuth(req)
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got code=%d reached=%v", rec.Code, reached)
	}
	if gotID != userID {
		t.Fatalf("context carries %s, want %s", gotID, userID)
	}
}

func TestSessionAuth_HeaderPreferredOverCookie(t *testing.T) {
	headerUser := uuid.New()
	cookieUser := uuid.New()
	headerToken := signSessionToken(t, testSecret, headerUser.String(), time.Now().Add(time.Hour))
	cookieToken := signSessionToken(t, testSecret, cookieUser.String(), time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/user/subscription", nil)
	req.Header.Set("Authorization", "Bearer "+headerToken)
	req.AddCookie(&http.Cookie{Name: "session", Value: cookieToken})

	_, gotID, reached := runAuth(req)
	if !reached || gotID != headerUser {
		t.Fatalf("expected header identity %s, got %s", headerUser, gotID)
	}
}

func TestSessionAuth_Rejections(t *testing.T) {
	validSub := uuid.New().String()

	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{
			name:  "no token",
			setup: func(r *http.Request) {},
		},
		{
			name: "malformed authorization header",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic abc123")
			},
		},
		{
			name: "wrong signing key",
			setup: func(r *http.Request) {
				token := signSessionToken(t, "some-other-secret", validSub, time.Now().Add(time.Hour))
				r.Header.Set("Authorization", "Bearer "+token)
			},
		},
		{
			name: "expired token",
			setup: func(r *http.Request) {
				token := signSessionToken(t, testSecret, validSub, time.Now().Add(-time.Hour))
				r.Header.Set("Authorization", "Bearer "+token)
			},
		},
		{
			name: "non-uuid subject",
			setup: func(r *http.Request) {
				token := signSessionToken(t, testSecret, "user-42", time.Now().Add(time.Hour))
				r.Header.Set("Authorization", "Bearer "+token)
			},
		},
		{
			name: "empty subject",
			setup: func(r *http.Request) {
				token := signSessionToken(t, testSecret, "", time.Now().Add(time.Hour))
				r.Header.Set("Authorization", "Bearer "+token)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/user/subscription", nil)
			tc.setup(req)

			rec, _, reached := runAuth(req)
			if reached {
				t.Fatal("rejected request must not reach the handler")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}
