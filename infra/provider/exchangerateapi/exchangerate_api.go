// Package exchangerateapi fetches live rates from exchangerate-api.com (v6).
package exchangerateapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/fees"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/shopspring/decimal"
)

// latestResponse is the body of GET /{key}/latest/{base}.
type latestResponse struct {
	Result          string                     `json:"result"`
	ErrorType       string                     `json:"error-type"`
	BaseCode        string                     `json:"base_code"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

// ExchangeRateAPI is a fees.RateSource backed by the HTTP API. Wrap it in a
// fees.CachedRateSource; every call here is a network round trip.
type ExchangeRateAPI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg *config.ExchangeRateApi, logger *slog.Logger) *ExchangeRateAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExchangeRateAPI{
		apiKey:     cfg.ApiKey,
		baseURL:    strings.TrimRight(cfg.ApiUrl, "/"),
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger,
	}
}

// Rate returns units of to per one unit of from.
func (p *ExchangeRateAPI) Rate(ctx context.Context, from, to money.Code) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	log := p.logger.With("handler", "exchangerateapi.Rate", "from", from, "to", to)

	url := fmt.Sprintf("%s/%s/latest/%s", p.baseURL, p.apiKey, from)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Error("rate request failed", "error", err)
		return decimal.Zero, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}
	if body.Result != "success" {
		return decimal.Zero, fmt.Errorf("API returned %s: %s", body.Result, body.ErrorType)
	}
	rate, ok := body.ConversionRates[string(to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s:%s", domain.ErrNotFound, from, to)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fees.ErrInvalidRate
	}
	log.Debug("fetched rate", "rate", rate.String())
	return rate, nil
}

var _ fees.RateSource = (*ExchangeRateAPI)(nil)
