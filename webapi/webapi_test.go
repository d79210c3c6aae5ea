package webapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/amirasaad/remittance/infra/cache"
	infraeventbus "github.com/amirasaad/remittance/infra/eventbus"
	"github.com/amirasaad/remittance/infra/provider/mockpayment"
	infrarepo "github.com/amirasaad/remittance/infra/repository"
	"github.com/amirasaad/remittance/pkg/app"
	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain/events"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/fees"
	"github.com/amirasaad/remittance/pkg/gateway"
	"github.com/amirasaad/remittance/pkg/middleware"
	provider "github.com/amirasaad/remittance/pkg/provider/payment"
	"github.com/amirasaad/remittance/pkg/testutils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const (
	jwtSecret = "web-test-secret"
	ozowKey   = "ozow-private-key"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Title   string          `json:"title"`
	Errors  json.RawMessage `json:"errors"`
}

type WebAPITestSuite struct {
	suite.Suite
	app        *fiber.App
	deps       *app.Deps
	bus        *infraeventbus.MemoryEventBus
	gateway    *mockpayment.MockPaymentProvider
	payer      uuid.UUID
	payee      uuid.UUID
	token      string
	payeeToken string
	adminToken string
}

func testConfig(maxRequests int) *config.App {
	return &config.App{
		Env:       "test",
		Auth:      &config.Auth{Jwt: &config.Jwt{Secret: jwtSecret}},
		RateLimit: &config.RateLimit{MaxRequests: maxRequests, Window: time.Minute},
		Fee:       &config.Fee{ServiceFeeBps: 300, QuoteTTL: 15 * time.Minute},
		KYC: &config.KYC{
			BaseCurrency: "ZAR",
			BronzeLimit:  500000,
			SilverLimit:  2500000,
			GoldLimit:    10000000,
		},
	}
}

func (s *WebAPITestSuite) newApp(cfg *config.App) *fiber.App {
	t := s.T()
	logger := testutils.Logger()
	db := testutils.NewSQLiteDB(t)

	s.bus = infraeventbus.NewWithMemory(logger)
	s.gateway = mockpayment.NewMockPaymentProvider(payment.GatewayOzow)
	s.gateway.Status = payment.StatusPending
	s.deps = &app.Deps{
		Uow:              infrarepo.NewUoW(db),
		EventBus:         s.bus,
		Store:            cache.NewMemoryStore(),
		Webhooks:         gateway.NewRegistry(gateway.NewOzow(ozowKey)),
		PaymentProviders: provider.NewService(time.Second, logger, s.gateway),
		RateSource:       fees.StaticRates{"ZAR:USD": decimal.RequireFromString("0.054")},
		Logger:           logger,
	}
	a, err := app.New(s.deps, cfg)
	s.Require().NoError(err)

	s.payer = testutils.SeedUser(t, db, "payer@example.com")
	s.payee = testutils.SeedUser(t, db, "payee@example.com")
	testutils.SeedKYC(t, db, s.payer, 500000)
	s.token = testutils.SignToken(t, jwtSecret, s.payer, "payer@example.com", "")
	s.payeeToken = testutils.SignToken(t, jwtSecret, s.payee, "payee@example.com", "")
	s.adminToken = testutils.SignToken(t, jwtSecret, uuid.New(), "ops@example.com", middleware.RoleAdmin)
	return SetupApp(a)
}

func (s *WebAPITestSuite) SetupTest() {
	s.app = s.newApp(testConfig(1000))
}

func (s *WebAPITestSuite) request(method, path, body, token string, headers ...string) (*http.Response, envelope) {
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
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close() //nolint: errcheck

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(raw) > 0 && raw[0] == '{' {
		s.Require().NoError(json.Unmarshal(raw, &env))
	}
	return resp, env
}

func (s *WebAPITestSuite) ozowWebhook(txID, reference, status, amount, key string) *http.Response {
	form := url.Values{
		"SiteCode":             {"SITE-1"},
		"CurrencyCode":         {"ZAR"},
		"TransactionId":        {txID},
		"TransactionReference": {reference},
		"Status":               {status},
		"Amount":               {amount},
	}
	form.Set(gateway.OzowHashField, gateway.SignOzow(form, key))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ozow", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	return resp
}

func decode[T any](s *WebAPITestSuite, raw json.RawMessage) T {
	var out T
	s.Require().NoError(json.Unmarshal(raw, &out))
	return out
}

const sendBody = `{"amount": 1000, "currency": "ZAR", "recipientIdentifier": "payee@example.com", "description": "rent"}`

func (s *WebAPITestSuite) TestHealthCheck() {
	resp, _ := s.request(fiber.MethodGet, "/", "", "")
	s.Equal(fiber.StatusOK, resp.StatusCode)
}

func (s *WebAPITestSuite) TestSendThenWebhookCompletes() {
	resp, env := s.request(fiber.MethodPost, "/payments/process/ozow", sendBody, s.token)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode, env.Title)
	created := decode[map[string]any](s, env.Data)
	s.Equal("pending", created["status"])
	s.Equal("30.00", created["fee"])
	s.Equal("1030.00", created["totalAmount"])
	s.NotEmpty(created["redirectUrl"])
	paymentID := created["paymentId"].(string)

	webhook := s.ozowWebhook("mock_"+paymentID, paymentID, "Complete", "1030.00", ozowKey)
	defer webhook.Body.Close() //nolint: errcheck
	s.Require().Equal(fiber.StatusOK, webhook.StatusCode)
	var ack map[string]any
	s.Require().NoError(json.NewDecoder(webhook.Body).Decode(&ack))
	s.Equal("applied", ack["outcome"])
	s.Equal(paymentID, ack["paymentId"])

	again := s.ozowWebhook("mock_"+paymentID, paymentID, "Complete", "1030.00", ozowKey)
	defer again.Body.Close() //nolint: errcheck
	s.Require().Equal(fiber.StatusOK, again.StatusCode)
	s.Require().NoError(json.NewDecoder(again.Body).Decode(&ack))
	s.Equal("noop", ack["outcome"])

	resp, env = s.request(fiber.MethodGet, "/payments/status/"+paymentID, "", s.token)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	status := decode[map[string]any](s, env.Data)
	s.Equal("completed", status["status"])
	s.NotEmpty(status["transactionId"])

	resp, _ = s.request(fiber.MethodGet, "/payments/status/"+paymentID, "", s.payeeToken)
	s.Equal(fiber.StatusNotFound, resp.StatusCode)

	resp, env = s.request(fiber.MethodGet, "/payments/history?status=completed&gateway=ozow", "", s.token)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	history := decode[HistoryPage](s, env.Data)
	s.Equal(int64(1), history.Total)
	s.Len(history.Items, 1)

	s.Len(s.bus.PublishedOfType(events.TypePaymentCompleted), 1)

	resp, _ = s.request(fiber.MethodGet, "/metrics", "", "")
	s.Equal(fiber.StatusOK, resp.StatusCode)
}

// HistoryPage mirrors the history payload for decoding.
type HistoryPage struct {
	Items []map[string]any `json:"items"`
	Total int64            `json:"total"`
}

func (s *WebAPITestSuite) TestWebhookRejections() {
	bad := s.ozowWebhook("OZ-1", uuid.NewString(), "Complete", "10.00", "wrong-key")
	defer bad.Body.Close() //nolint: errcheck
	s.Equal(fiber.StatusUnauthorized, bad.StatusCode)
	s.Len(s.bus.PublishedOfType(events.TypeWebhookRejected), 1)

	orphan := s.ozowWebhook("OZ-2", "no-such-reference", "Complete", "10.00", ozowKey)
	defer orphan.Body.Close() //nolint: errcheck
	s.Equal(fiber.StatusBadRequest, orphan.StatusCode)

	resp, _ := s.request(fiber.MethodPost, "/webhooks/paypal", "{}", "")
	s.Equal(fiber.StatusNotFound, resp.StatusCode)

	// Known provider without a configured adapter.
	resp, _ = s.request(fiber.MethodPost, "/webhooks/payfast", "{}", "")
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
}

func (s *WebAPITestSuite) TestProcessValidation() {
	resp, _ := s.request(fiber.MethodPost, "/payments/process/ozow", sendBody, "")
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = s.request(fiber.MethodPost, "/payments/process/paypal", sendBody, s.token)
	s.Equal(fiber.StatusNotFound, resp.StatusCode)

	resp, env := s.request(fiber.MethodPost, "/payments/process/ozow", `{"amount": 10, "currency": "ZAR"}`, s.token)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	s.Contains(string(env.Errors), "recipientIdentifier")

	resp, _ = s.request(fiber.MethodPost, "/payments/process/ozow",
		`{"amount": -5, "currency": "ZAR", "recipientIdentifier": "payee@example.com"}`, s.token)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = s.request(fiber.MethodPost, "/payments/process/ozow",
		`{"amount": 10, "currency": "ZAR", "recipientIdentifier": "nobody@example.com"}`, s.token)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)

	s.Empty(s.gateway.Calls())
}

func (s *WebAPITestSuite) TestProcessOverLimit() {
	body := `{"amount": "4900.00", "currency": "ZAR", "recipientIdentifier": "payee@example.com"}`
	resp, env := s.request(fiber.MethodPost, "/payments/process/ozow", body, s.token)
	s.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)
	s.Contains(string(env.Errors), "5000.00")
	s.Empty(s.gateway.Calls())
}

func (s *WebAPITestSuite) TestProcessWithoutKYC() {
	resp, _ := s.request(fiber.MethodPost, "/payments/process/ozow",
		`{"amount": 10, "currency": "ZAR", "recipientIdentifier": "payer@example.com"}`, s.payeeToken)
	s.Equal(fiber.StatusForbidden, resp.StatusCode)
}

func (s *WebAPITestSuite) TestQuoteThenSend() {
	resp, env := s.request(fiber.MethodPost, "/payments/quote",
		`{"amount": 1000, "currency": "ZAR", "targetCurrency": "USD"}`, s.token)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	quote := decode[map[string]any](s, env.Data)
	s.Equal("30.00", quote["fee"])
	s.Equal("1030.00", quote["totalAmount"])
	s.Equal("54.00", quote["convertedAmount"])

	body := `{"amount": 1000, "currency": "ZAR", "recipientIdentifier": "payee@example.com", "quoteId": "` +
		quote["quoteId"].(string) + `"}`
	resp, env = s.request(fiber.MethodPost, "/payments/process/ozow", body, s.token)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
	created := decode[map[string]any](s, env.Data)
	s.Equal("USD", created["targetCurrency"])
	s.Equal("0.054", created["exchangeRate"])
}

func (s *WebAPITestSuite) TestCancel() {
	resp, env := s.request(fiber.MethodPost, "/payments/process/ozow", sendBody, s.token)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
	paymentID := decode[map[string]any](s, env.Data)["paymentId"].(string)

	resp, _ = s.request(fiber.MethodPost, "/payments/"+paymentID+"/cancel", "", s.payeeToken)
	s.Equal(fiber.StatusNotFound, resp.StatusCode)

	resp, env = s.request(fiber.MethodPost, "/payments/"+paymentID+"/cancel", "", s.token)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal("cancelled", decode[map[string]any](s, env.Data)["status"])

	resp, _ = s.request(fiber.MethodPost, "/payments/"+paymentID+"/cancel", "", s.token)
	s.Equal(fiber.StatusConflict, resp.StatusCode)

	resp, _ = s.request(fiber.MethodPost, "/payments/not-a-uuid/cancel", "", s.token)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
}

func (s *WebAPITestSuite) TestKYCStatus() {
	resp, env := s.request(fiber.MethodGet, "/kyc/status", "", s.token)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	status := decode[map[string]any](s, env.Data)
	s.Equal("bronze", status["level"])
	s.Equal("5000.00", status["monthlySendLimit"])
	s.Equal("5000.00", status["remaining"])

	resp, _ = s.request(fiber.MethodGet, "/kyc/status", "", s.payeeToken)
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
}

func (s *WebAPITestSuite) TestAdminEndpoints() {
	resp, _ := s.request(fiber.MethodGet, "/admin/reconciliation", "", s.token)
	s.Equal(fiber.StatusForbidden, resp.StatusCode)

	resp, env := s.request(fiber.MethodGet, "/admin/reconciliation", "", s.adminToken)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Empty(decode[[]map[string]any](s, env.Data))

	resp, _ = s.request(fiber.MethodPut, "/admin/kyc/"+s.payee.String(),
		`{"level": "silver", "status": "approved"}`, s.adminToken)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)

	resp, env = s.request(fiber.MethodGet, "/kyc/status", "", s.payeeToken)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal("25000.00", decode[map[string]any](s, env.Data)["monthlySendLimit"])

	resp, _ = s.request(fiber.MethodPut, "/admin/kyc/"+s.payee.String(),
		`{"level": "platinum", "status": "approved"}`, s.adminToken)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
}

func (s *WebAPITestSuite) TestRateLimit() {
	s.app = s.newApp(testConfig(2))
	for i := range 3 {
		resp, _ := s.request(fiber.MethodGet, "/", "", "", "X-Forwarded-For", "198.51.100.9, 10.0.0.1")
		if i < 2 {
			s.Equal(fiber.StatusOK, resp.StatusCode, "request %d", i+1)
		} else {
			s.Equal(fiber.StatusTooManyRequests, resp.StatusCode)
		}
	}
	resp, _ := s.request(fiber.MethodGet, "/", "", "", "X-Forwarded-For", "198.51.100.10")
	s.Equal(fiber.StatusOK, resp.StatusCode)
}

func TestWebAPITestSuite(t *testing.T) {
	suite.Run(t, new(WebAPITestSuite))
}
