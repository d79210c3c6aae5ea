package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/kyc"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorToStatusCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: amount", domain.ErrValidation), fiber.StatusBadRequest},
		{fmt.Errorf("%w: bad hash", domain.ErrSignatureInvalid), fiber.StatusUnauthorized},
		{domain.ErrKYCNotVerified, fiber.StatusForbidden},
		{&kyc.LimitExceededError{Remaining: money.Must(100, money.ZAR)}, fiber.StatusUnprocessableEntity},
		{fmt.Errorf("%w: payment", domain.ErrNotFound), fiber.StatusNotFound},
		{domain.ErrUnknownGateway, fiber.StatusNotFound},
		{domain.ErrInvalidTransition, fiber.StatusConflict},
		{domain.ErrConflict, fiber.StatusConflict},
		{fmt.Errorf("%w: timeout", domain.ErrGateway), fiber.StatusBadGateway},
		{fiber.ErrMethodNotAllowed, fiber.StatusMethodNotAllowed},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorToStatusCode(tt.err), tt.err.Error())
	}
}

type input struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func bindApp() *fiber.App {
	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		in, err := BindAndValidate[input](c)
		if in == nil {
			return err
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "ok", in)
	})
	return app
}

func post(t *testing.T, app *fiber.App, body string) (*http.Response, ProblemDetails) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint: errcheck
	var pd ProblemDetails
	_ = json.NewDecoder(resp.Body).Decode(&pd)
	return resp, pd
}

func TestBindAndValidate(t *testing.T) {
	app := bindApp()

	resp, _ := post(t, app, `{"name": "x"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, pd := post(t, app, `{"name": `)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", pd.Title)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	resp, pd = post(t, app, `{"email": "nope"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Validation failed", pd.Title)
	assert.Equal(t, map[string]any{"name": "required", "email": "email"}, pd.Errors)
}

func TestProblemDetailsJSON_HidesInternalDetail(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return ProblemDetailsJSON(c, "Internal Server Error", errors.New("dial tcp 10.0.0.5:5432"))
	})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint: errcheck

	var pd ProblemDetails
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pd))
	assert.Equal(t, fiber.StatusInternalServerError, pd.Status)
	assert.Empty(t, pd.Detail)
	assert.Equal(t, "/", pd.Instance)
}
