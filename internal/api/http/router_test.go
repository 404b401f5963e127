package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/sla-monitor/internal/api/http/handlers"
	"github.com/spec-kit/sla-monitor/internal/auth"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/mailbox"
	"github.com/spec-kit/sla-monitor/internal/observability"
	"github.com/spec-kit/sla-monitor/internal/persistence"
	"github.com/spec-kit/sla-monitor/internal/repository/memory"
	"github.com/spec-kit/sla-monitor/internal/service"
)

type noMailbox struct{}

func (noMailbox) Connect(ctx context.Context, settings domain.MailSettings, password string) (mailbox.Session, error) {
	return nil, errors.New("unreachable")
}

type apiFixture struct {
	app     *fiber.App
	tickets *memory.Tickets
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	metrics := observability.NewMetrics()

	hash, err := auth.HashPassword("pw", bcrypt.MinCost)
	require.NoError(t, err)
	users := memory.NewUsers(
		domain.User{ID: "admin", Username: "admin", Email: "admin@example.com", PasswordHash: hash, Role: domain.RoleAdministrator, Active: true},
		domain.User{ID: "req", Username: "rita", Email: "rita@example.com", PasswordHash: hash, Role: domain.RoleSelfService, Active: true},
	)
	tickets := memory.NewTickets()
	policies := memory.NewPolicies(memory.DefaultPolicies()...)
	dispatcher := events.NewInMemoryDispatcher()

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  tickets,
		UserRepo:    users,
		HistoryRepo: memory.NewHistory(),
		ProblemRepo: memory.NewProblemTypes(memory.DefaultProblemTypes()...),
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	slaService := service.NewSLAService(service.SLADependencies{
		TicketRepo: tickets,
		PolicyRepo: policies,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	ingestion := service.NewIngestionService(service.IngestionDependencies{
		SettingsRepo: memory.NewMailSettings(nil),
		UserRepo:     users,
		Tickets:      lifecycle,
		Transport:    noMailbox{},
		Logger:       logger,
		Metrics:      metrics,
	})
	tokens := auth.NewTokenManager("test-secret", 5)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("helpdesk", "test", map[string]handlers.Pinger{
			"postgres": &persistence.Postgres{},
		}),
		Users:          handlers.NewUsersHandler(service.NewAuthService(users, tokens)),
		Tickets:        handlers.NewTicketsHandler(lifecycle, slaService),
		Ops:            handlers.NewOpsHandler(slaService, ingestion, nil),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens, users),
	})
	return &apiFixture{app: app, tickets: tickets}
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (f *apiFixture) login(t *testing.T, email string) string {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/auth/login", "", `{"email":"`+email+`","password":"pw"}`)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	return data["auth"].(map[string]any)["token"].(string)
}

func TestTicketFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, "admin@example.com")
	rita := f.login(t, "rita@example.com")

	status, body := f.do(t, http.MethodPost, "/tickets", rita, `{"title":"Printer","description":"Jammed"}`)
	require.Equal(t, http.StatusCreated, status)
	ticket := body["data"].(map[string]any)
	id := ticket["id"].(string)
	assert.Equal(t, "NEW", ticket["status"])
	assert.Equal(t, "req", ticket["requester_id"])

	status, _ = f.do(t, http.MethodPost, "/tickets/"+id+"/classify", rita, `{"urgency":"HIGH"}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = f.do(t, http.MethodPost, "/tickets/"+id+"/classify", admin, `{"urgency":"HIGH","problem_type_id":"pt-hardware"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "HIGH", body["data"].(map[string]any)["urgency"])

	status, body = f.do(t, http.MethodGet, "/tickets/"+id+"/sla", rita, "")
	require.Equal(t, http.StatusOK, status)
	sla := body["data"].(map[string]any)
	assert.Equal(t, true, sla["applicable"])
	assert.Equal(t, "assignment", sla["phase"])

	status, body = f.do(t, http.MethodGet, "/tickets/"+id+"/history", admin, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 2)

	status, body = f.do(t, http.MethodPost, "/tickets/"+id+"/status", admin, `{"status":"RESOLVED"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["error"].(map[string]any)["code"])
}

func TestUnknownTicketIsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, "admin@example.com")

	status, body := f.do(t, http.MethodGet, "/tickets/does-not-exist", admin, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newAPIFixture(t)
	status, body := f.do(t, http.MethodPost, "/auth/login", "", `{"email":"admin@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])
}

func TestOpsEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, "admin@example.com")
	rita := f.login(t, "rita@example.com")

	status, _ := f.do(t, http.MethodPost, "/ops/sla-scan", rita, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, http.MethodPost, "/ops/sla-scan", admin, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["data"], "evaluated")

	// no mail settings stored: the cycle is skipped
	status, body = f.do(t, http.MethodPost, "/ops/mail-ingestion", admin, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["skipped"])

	status, body = f.do(t, http.MethodGet, "/ops/tasks", admin, "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"].(map[string]any)["running"])
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "disabled", body["dependencies"].(map[string]any)["postgres"])

	status, _ = f.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestMetricsUseRouteTemplatesAndFinalStatus(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, "admin@example.com")

	for _, id := range []string{"aaa", "bbb", "ccc"} {
		status, _ := f.do(t, http.MethodGet, "/tickets/"+id, admin, "")
		require.Equal(t, http.StatusNotFound, status)
	}
	status, _ := f.do(t, http.MethodPost, "/auth/login", "", `{"email":"admin@example.com","password":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, status)
	status, body := f.do(t, http.MethodGet, "/no-such-route", "", "")
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	text := string(raw)

	assert.Contains(t, text, `http_errors_total{code="NOT_FOUND",method="GET",path="/tickets/:id"} 3`)
	assert.Contains(t, text, `http_requests_total{method="GET",path="/tickets/:id",status="404"} 3`)
	assert.Contains(t, text, `http_errors_total{code="UNAUTHORIZED",method="POST",path="/auth/login"} 1`)
	assert.Contains(t, text, `http_requests_total{method="POST",path="/auth/login",status="401"} 1`)
	assert.Contains(t, text, `http_requests_total{method="POST",path="/auth/login",status="200"} 1`)
	for _, id := range []string{"aaa", "bbb", "ccc"} {
		assert.NotContains(t, text, `path="/tickets/`+id+`"`)
	}
	assert.NotContains(t, text, `path="/no-such-route"`)
}

func TestCommentsOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, "admin@example.com")
	rita := f.login(t, "rita@example.com")

	status, body := f.do(t, http.MethodPost, "/tickets", rita, `{"title":"Printer","description":"Jammed"}`)
	require.Equal(t, http.StatusCreated, status)
	own := body["data"].(map[string]any)["id"].(string)

	status, body = f.do(t, http.MethodPost, "/tickets/"+own+"/comments", rita, `{"comment":"still jammed"}`)
	require.Equal(t, http.StatusCreated, status)
	entry := body["data"].(map[string]any)
	assert.Equal(t, "COMMENT", entry["change_type"])
	assert.Equal(t, "still jammed", entry["comment"])

	status, body = f.do(t, http.MethodPost, "/tickets/"+own+"/comments", rita, `{"comment":"  "}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body["error"].(map[string]any)["code"])

	status, body = f.do(t, http.MethodPost, "/tickets", admin, `{"title":"Switch","description":"Rack 4"}`)
	require.Equal(t, http.StatusCreated, status)
	other := body["data"].(map[string]any)["id"].(string)

	status, _ = f.do(t, http.MethodPost, "/tickets/"+other+"/comments", rita, `{"comment":"me too"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = f.do(t, http.MethodGet, "/tickets/"+own+"/history", admin, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 2)
}
