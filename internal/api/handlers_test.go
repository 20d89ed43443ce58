package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/keepsafe/keepsafe-api/internal/app"
	"github.com/keepsafe/keepsafe-api/internal/domain"
	"github.com/keepsafe/keepsafe-api/internal/store"
)

type handlerRepoStub struct {
	store.Repository

	user *domain.User
	team *domain.Team
	role string
}

func (s *handlerRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.user == nil {
		return nil, store.ErrUserNotFound
	}
	return s.user, nil
}

func (s *handlerRepoStub) GetTeamForUser(ctx context.Context, userID uuid.UUID) (*domain.Team, *domain.Membership, error) {
	if s.team == nil {
		return nil, nil, store.ErrNoTeamMembership
	}
	return s.team, &domain.Membership{UserID: userID, TeamID: s.team.ID, Role: s.role}, nil
}

func (s *handlerRepoStub) UpdateTeamSubscription(ctx context.Context, teamID uuid.UUID, update domain.SubscriptionUpdate) (*domain.Team, error) {
	s.team.SubscriptionStatus = update.Status
	s.team.PlanName = &update.PlanName
	s.team.StripeCustomerID = &update.CustomerID
	s.team.StripeSubscriptionID = &update.SubscriptionID
	s.team.UpdatedAt = update.UpdatedAt
	return s.team, nil
}

func (s *handlerRepoStub) PromoteTeamMemberRole(ctx context.Context, userID, teamID uuid.UUID, role string) error {
	s.role = role
	return nil
}

func (s *handlerRepoStub) EnsureTeamCustomerID(ctx context.Context, teamID uuid.UUID, customerID string) (string, error) {
	if s.team.StripeCustomerID != nil && *s.team.StripeCustomerID != "" {
		return *s.team.StripeCustomerID, nil
	}
	s.team.StripeCustomerID = &customerID
	return customerID, nil
}

type handlerBillingStub struct {
	summary     *domain.CheckoutSummary
	retrieveErr error
	portalURL   string
}

func (b *handlerBillingStub) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	return "cus_new", nil
}

func (b *handlerBillingStub) CreateCheckoutSession(ctx context.Context, customerID, priceID string) (string, error) {
	return "https://checkout.example.com/s1", nil
}

func (b *handlerBillingStub) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	return b.portalURL, nil
}

func (b *handlerBillingStub) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSummary, error) {
	if b.retrieveErr != nil {
		return nil, b.retrieveErr
	}
	return b.summary, nil
}

func newHandlerFixture() (*handlerRepoStub, *handlerBillingStub, *Handler, uuid.UUID) {
	userID := uuid.New()
	repo := &handlerRepoStub{
		user: &domain.User{ID: userID, Email: "owner@example.com"},
		team: &domain.Team{ID: uuid.New(), Name: "Acme", SubscriptionStatus: domain.SubscriptionInactive},
		role: domain.RoleMember,
	}
	billing := &handlerBillingStub{
		summary: &domain.CheckoutSummary{
			Status:         domain.SubscriptionActive,
			CustomerID:     "cus_abc",
			SubscriptionID: "sub_abc",
			PlanName:       "Starter",
		},
	}
	svc := app.NewService(repo, billing, nil, nil, nil, app.Options{DefaultPlanName: "Pro"})
	return repo, billing, NewHandler(svc, ""), userID
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(context.WithValue(req.Context(), userIDKey, userID))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHandleVerifySession_Success(t *testing.T) {
	repo, _, h, userID := newHandlerFixture()

	rec := httptest.NewRecorder()
	h.HandleVerifySession(rec, authedRequest(http.MethodPost, "/subscription/verify-session", `{"sessionId":"cs_1"}`, userID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success      bool                      `json:"success"`
		Subscription domain.SubscriptionResult `json:"subscription"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if !resp.Success || resp.Subscription.Status != domain.SubscriptionActive || resp.Subscription.TeamName != "Acme" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if repo.role != domain.RoleOwner {
		t.Fatal("expected caller promoted to owner")
	}
}

func TestHandleVerifySession_NoSubscriptionInSession(t *testing.T) {
	_, billing, h, userID := newHandlerFixture()
	billing.retrieveErr = domain.ErrNoSubscriptionInSession

	rec := httptest.NewRecorder()
	h.HandleVerifySession(rec, authedRequest(http.MethodPost, "/subscription/verify-session", `{"sessionId":"cs_1"}`, userID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "UpstreamVerificationFailed" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestHandleVerifySession_NoCustomerInSession(t *testing.T) {
	_, billing, h, userID := newHandlerFixture()
	billing.retrieveErr = domain.ErrNoCustomerInSession

	rec := httptest.NewRecorder()
	h.HandleVerifySession(rec, authedRequest(http.MethodPost, "/subscription/verify-session", `{"sessionId":"cs_1"}`, userID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "UpstreamVerificationFailed" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestHandleVerifySession_MissingSessionID(t *testing.T) {
	_, _, h, userID := newHandlerFixture()

	rec := httptest.NewRecorder()
	h.HandleVerifySession(rec, authedRequest(http.MethodPost, "/subscription/verify-session", `{}`, userID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "ValidationError" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestHandleVerifySession_NoTeamMembership(t *testing.T) {
	repo, _, h, userID := newHandlerFixture()
	repo.team = nil

	rec := httptest.NewRecorder()
	h.HandleVerifySession(rec, authedRequest(http.MethodPost, "/subscription/verify-session", `{"sessionId":"cs_1"}`, userID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "NoTeamMembership" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestHandleCreateCheckoutSession_MissingPriceID(t *testing.T) {
	_, _, h, userID := newHandlerFixture()

	rec := httptest.NewRecorder()
	h.HandleCreateCheckoutSession(rec, authedRequest(http.MethodPost, "/subscription/create-checkout-session", `{}`, userID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "ValidationError" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestHandleCreateCheckoutSession_ReturnsURL(t *testing.T) {
	_, _, h, userID := newHandlerFixture()

	rec := httptest.NewRecorder()
	h.HandleCreateCheckoutSession(rec, authedRequest(http.MethodPost, "/subscription/create-checkout-session", `{"priceId":"price_1"}`, userID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp["url"] == "" {
		t.Fatal("expected a checkout url")
	}
}

func TestHandleCreatePortalSession_NoCustomer(t *testing.T) {
	_, _, h, userID := newHandlerFixture()

	rec := httptest.NewRecorder()
	h.HandleCreatePortalSession(rec, authedRequest(http.MethodPost, "/subscription/create-portal-session", "", userID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "NoBillingCustomer" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestHandleGetSubscription_NoTeamIs404(t *testing.T) {
	repo, _, h, userID := newHandlerFixture()
	repo.team = nil

	rec := httptest.NewRecorder()
	h.HandleGetSubscription(rec, authedRequest(http.MethodGet, "/user/subscription", "", userID))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "NoTeamMembership" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestHandleGetSubscription_ReportsPersistedState(t *testing.T) {
	repo, _, h, userID := newHandlerFixture()
	plan := "Starter"
	customer := "cus_abc"
	repo.team.SubscriptionStatus = domain.SubscriptionActive
	repo.team.PlanName = &plan
	repo.team.StripeCustomerID = &customer

	rec := httptest.NewRecorder()
	h.HandleGetSubscription(rec, authedRequest(http.MethodGet, "/user/subscription", "", userID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary domain.SubscriptionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if !summary.IsActive || summary.PlanName != "Starter" || summary.CustomerID != "cus_abc" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestHandlersRejectUnauthenticated(t *testing.T) {
	_, _, h, _ := newHandlerFixture()

	endpoints := []func(http.ResponseWriter, *http.Request){
		h.HandleCreateCheckoutSession,
		h.HandleCreatePortalSession,
		h.HandleVerifySession,
		h.HandleGetSubscription,
	}
	for i, endpoint := range endpoints {
		rec := httptest.NewRecorder()
		endpoint(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("endpoint %d: expected 401, got %d", i, rec.Code)
		}
	}
}
