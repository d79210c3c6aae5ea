package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/kyc"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/middleware"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/pkg/repository"
	paymentsvc "github.com/amirasaad/remittance/pkg/service/payment"
	"github.com/amirasaad/remittance/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routes registers the client payment endpoints.
func Routes(app *fiber.App, svc *paymentsvc.Service, cfg *config.App) {
	group := app.Group("/payments", middleware.JwtProtected(cfg.Auth.Jwt))
	group.Post("/quote", Quote(svc))
	group.Post("/process/:gateway", Process(svc))
	group.Post("/:id/cancel", Cancel(svc))
	group.Get("/status/:id", Status(svc))
	group.Get("/history", History(svc))
}

// Quote returns a Fiber handler that prices a send and keeps the quote.
func Quote(svc *paymentsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := middleware.CurrentIdentity(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		input, err := common.BindAndValidate[QuoteRequest](c)
		if input == nil {
			return err // error response already written
		}
		amount, err := toMoney(input.Amount, input.Currency)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid amount", err)
		}
		q, err := svc.Quote(c.UserContext(), id.UserID, amount, money.Code(input.TargetCurrency))
		if err != nil {
			log.Errorf("Failed to quote payment: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to quote payment", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Quote created", toQuoteDTO(q))
	}
}

// Process returns a Fiber handler that starts a send through :gateway.
func Process(svc *paymentsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := middleware.CurrentIdentity(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		gw, err := payment.ParseGateway(c.Params("gateway"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unknown gateway", err)
		}
		input, err := common.BindAndValidate[ProcessRequest](c)
		if input == nil {
			return err // error response already written
		}
		amount, err := toMoney(input.Amount, input.Currency)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid amount", err)
		}

		res, err := svc.Process(c.UserContext(), paymentsvc.ProcessRequest{
			UserID:              id.UserID,
			PayerEmail:          id.Email,
			Gateway:             gw,
			Amount:              amount,
			RecipientIdentifier: input.RecipientIdentifier,
			Description:         input.Description,
			QuoteID:             input.QuoteID,
		})
		if err != nil {
			var limitErr *kyc.LimitExceededError
			if errors.As(err, &limitErr) {
				return common.ProblemDetailsJSON(c, "Monthly send limit exceeded", err, fiber.Map{
					"remaining": major(limitErr.Remaining),
					"currency":  limitErr.Remaining.Code().String(),
				})
			}
			log.Errorf("Failed to process payment: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to process payment", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Payment initiated", ProcessResponse{
			PaymentDTO:  toPaymentDTO(res.Payment),
			RedirectURL: res.RedirectURL,
			FormData:    res.FormData,
		})
	}
}

// Cancel returns a Fiber handler that cancels one of the caller's pending payments.
func Cancel(svc *paymentsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := middleware.CurrentIdentity(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		paymentID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid payment ID", nil, fiber.StatusBadRequest, "payment id must be a UUID")
		}
		p, err := svc.Cancel(c.UserContext(), id.UserID, paymentID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to cancel payment", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payment cancelled", toPaymentDTO(p))
	}
}

// Status returns a Fiber handler for one of the caller's payments.
func Status(svc *paymentsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := middleware.CurrentIdentity(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		paymentID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid payment ID", nil, fiber.StatusBadRequest, "payment id must be a UUID")
		}
		p, err := svc.Status(c.UserContext(), id.UserID, paymentID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Payment not found", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payment fetched", toPaymentDTO(p))
	}
}

// History returns a Fiber handler listing the caller's payments, newest
// first. Filters: status, gateway, from, to (RFC 3339 or YYYY-MM-DD), page,
// pageSize.
func History(svc *paymentsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := middleware.CurrentIdentity(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		filter, err := historyFilter(c, id.UserID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid filter", err)
		}
		list, total, err := svc.History(c.UserContext(), filter)
		if err != nil {
			log.Errorf("Failed to list payments: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to list payments", err)
		}
		items := make([]PaymentDTO, 0, len(list))
		for _, p := range list {
			items = append(items, toPaymentDTO(p))
		}
		page, pageSize := filter.Page, filter.PageSize
		if page < 1 {
			page = 1
		}
		if pageSize < 1 || pageSize > 100 {
			pageSize = 20
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payments fetched", HistoryDTO{
			Items:    items,
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		})
	}
}

func historyFilter(c *fiber.Ctx, userID uuid.UUID) (repository.HistoryFilter, error) {
	filter := repository.HistoryFilter{
		UserID:   userID,
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("pageSize", 20),
	}
	if s := c.Query("status"); s != "" {
		status := payment.Status(s)
		if !status.Valid() {
			return filter, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, s)
		}
		filter.Status = status
	}
	if g := c.Query("gateway"); g != "" {
		gw, err := payment.ParseGateway(g)
		if err != nil {
			return filter, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		filter.Gateway = gw
	}
	var err error
	if filter.From, err = parseTime(c.Query("from")); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime(c.Query("to")); err != nil {
		return filter, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, fmt.Errorf("%w: to is before from", domain.ErrValidation)
	}
	return filter, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid time %q", domain.ErrValidation, s)
}

func toMoney(amount decimal.Decimal, currency string) (money.Money, error) {
	if !amount.IsPositive() {
		return money.Money{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	m, err := money.FromMajor(amount, money.Code(currency))
	if err != nil {
		return money.Money{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return m, nil
}
