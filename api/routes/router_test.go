package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/pkg/auth"
	"github.com/angelmondragon/sokolink-backend/pkg/config"
	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubPaymentService struct{}

func (stubPaymentService) Methods(context.Context) []payments.MethodAvailability {
	return []payments.MethodAvailability{{
		MethodInfo: payments.MethodInfo{Method: enums.PaymentMethodMPesa, Class: enums.PaymentMethodMPesa.Class()},
		Available:  true,
	}}
}

func (stubPaymentService) Initiate(context.Context, payments.InitiateRequest) (*payments.InitiationResult, error) {
	return nil, errors.New("not implemented")
}

func (stubPaymentService) GetIntent(context.Context, uuid.UUID, uuid.UUID, enums.UserRole) (*payments.IntentView, error) {
	return nil, errors.New("not implemented")
}

func (stubPaymentService) ManualConfirm(context.Context, uuid.UUID, uuid.UUID, enums.UserRole) (*payments.IntentView, error) {
	return nil, errors.New("not implemented")
}

func (stubPaymentService) Watch(context.Context, uuid.UUID) <-chan payments.Update {
	ch := make(chan payments.Update)
	close(ch)
	return ch
}

type stubSubscriptionService struct{}

func (stubSubscriptionService) CreatePending(context.Context, uuid.UUID, enums.UserRole, string) (*models.Subscription, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (stubSubscriptionService) GetActive(context.Context, uuid.UUID) (*models.Subscription, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "sokolink"},
	}
}

func testRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total", Help: "test"}))
	return NewRouter(cfg, logger.New(logger.Options{ServiceName: "test"}), Dependencies{
		DB:            stubPinger{},
		Metrics:       reg,
		Payments:      stubPaymentService{},
		Subscriptions: stubSubscriptionService{},
	})
}

func bearer(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.AccessTokenClaims{
		UserID: uuid.New(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.JWT.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte(cfg.JWT.Secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutes(t *testing.T) {
	router := testRouter(t, testConfig())

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	resp := httptest.NewRecorder()
	testRouter(t, testConfig()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "router_test_total") {
		t.Fatalf("expected registered metric in body")
	}
}

func TestPaymentRoutesRequireAuth(t *testing.T) {
	cfg := testConfig()
	router := testRouter(t, cfg)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/payments/methods", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/methods", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleVendor))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), string(enums.PaymentMethodMPesa)) {
		t.Fatalf("expected method listing, got %s", resp.Body.String())
	}
}

func TestSubscriptionRoutesRequireSubscriberRole(t *testing.T) {
	cfg := testConfig()
	router := testRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/active", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/active", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleTransporter))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestUnconfiguredWebhooksAreNotMounted(t *testing.T) {
	resp := httptest.NewRecorder()
	testRouter(t, testConfig()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader("{}")))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
