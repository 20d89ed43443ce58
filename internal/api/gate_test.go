package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/keepsafe/keepsafe-api/internal/domain"
	"github.com/keepsafe/keepsafe-api/internal/store"
)

type teamLoaderStub struct {
	team *domain.Team
	err  error
}

func (s *teamLoaderStub) GetTeamForUser(ctx context.Context, userID uuid.UUID) (*domain.Team, *domain.Membership, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.team, &domain.Membership{UserID: userID, TeamID: s.team.ID, Role: domain.RoleOwner}, nil
}

func gatedRequest(t *testing.T, loader TeamLoader, withIdentity bool) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	var reachedHandler bool
	var attachedTeam *domain.Team
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reachedHandler = true
		attachedTeam, _ = TeamFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/email/forward", nil)
	if withIdentity {
		req = req.WithContext(context.WithValue(req.Context(), userIDKey, uuid.New()))
	}
	rec := httptest.NewRecorder()
	RequireActiveSubscription(loader)(next).ServeHTTP(rec, req)

	if reachedHandler && attachedTeam == nil {
		t.Error("allowed request must carry the resolved team in context")
	}
	return rec, reachedHandler
}

func TestRequireActiveSubscription_StatusTable(t *testing.T) {
	cases := []struct {
		status string
		allow  bool
	}{
		{domain.SubscriptionActive, true},
		{domain.SubscriptionInactive, false},
		{domain.SubscriptionTrialing, false},
		{domain.SubscriptionPastDue, false},
		{domain.SubscriptionCanceled, false},
		{domain.SubscriptionUnpaid, false},
		{domain.SubscriptionIncompleteExpired, false},
		{"", false},
	}

	for _, tc := range cases {
		t.Run("status_"+tc.status, func(t *testing.T) {
			team := &domain.Team{ID: uuid.New(), Name: "Acme", SubscriptionStatus: tc.status}
			rec, reached := gatedRequest(t, &teamLoaderStub{team: team}, true)

			if tc.allow {
				if !reached || rec.Code != http.StatusOK {
					t.Fatalf("expected allow, got code=%d reached=%v", rec.Code, reached)
				}
				return
			}

			if reached {
				t.Fatal("denied request must not reach the handler")
			}
			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d", rec.Code)
			}
			var denial gateDenial
			if err := json.Unmarshal(rec.Body.Bytes(), &denial); err != nil {
				t.Fatalf("invalid denial body: %v", err)
			}
			if denial.Error != "SubscriptionRequired" {
				t.Fatalf("unexpected error code %q", denial.Error)
			}
			if denial.TeamID == nil || *denial.TeamID != team.ID || denial.TeamName != "Acme" {
				t.Fatalf("denial must identify the team: %+v", denial)
			}
		})
	}
}

func TestRequireActiveSubscription_NoIdentity(t *testing.T) {
	rec, reached := gatedRequest(t, &teamLoaderStub{team: &domain.Team{}}, false)
	if reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got code=%d reached=%v", rec.Code, reached)
	}
}

func TestRequireActiveSubscription_NoTeamMembership(t *testing.T) {
	rec, reached := gatedRequest(t, &teamLoaderStub{err: store.ErrNoTeamMembership}, true)
	if reached {
		t.Fatal("denied request must not reach the handler")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var denial gateDenial
	if err := json.Unmarshal(rec.Body.Bytes(), &denial); err != nil {
		t.Fatalf("invalid denial body: %v", err)
	}
	if denial.Error != "NoTeamMembership" || denial.TeamID != nil {
		t.Fatalf("unexpected denial: %+v", denial)
	}
}

func TestRequireActiveSubscription_StoreFailure(t *testing.T) {
	rec, reached := gatedRequest(t, &teamLoaderStub{err: errors.New("connection refused")}, true)
	if reached || rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got code=%d reached=%v", rec.Code, reached)
	}
}
