package kyc

import (
	"time"

	"github.com/amirasaad/remittance/pkg/config"
	kycsvc "github.com/amirasaad/remittance/pkg/kyc"
	"github.com/amirasaad/remittance/pkg/middleware"
	"github.com/amirasaad/remittance/pkg/money"
	"github.com/amirasaad/remittance/webapi/common"
	"github.com/gofiber/fiber/v2"
)

// StatusDTO is the caller's KYC tier and monthly allowance in major units.
type StatusDTO struct {
	Level            string    `json:"level"`
	Status           string    `json:"status"`
	MonthlySendLimit string    `json:"monthlySendLimit"`
	CurrentMonthSent string    `json:"currentMonthSent"`
	Remaining        string    `json:"remaining"`
	Currency         string    `json:"currency"`
	ResetDate        time.Time `json:"resetDate"`
}

// Routes registers the KYC status endpoint.
func Routes(app *fiber.App, enforcer *kycsvc.Enforcer, cfg *config.App) {
	app.Get("/kyc/status", middleware.JwtProtected(cfg.Auth.Jwt), GetStatus(enforcer))
}

// GetStatus returns a Fiber handler for the caller's KYC record.
func GetStatus(enforcer *kycsvc.Enforcer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := middleware.CurrentIdentity(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		rec, err := enforcer.Status(c.UserContext(), id.UserID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "KYC record not found", err)
		}
		remaining := rec.MonthlySendLimit - rec.CurrentMonthSent
		if remaining < 0 {
			remaining = 0
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "KYC status fetched", StatusDTO{
			Level:            string(rec.Level),
			Status:           string(rec.Status),
			MonthlySendLimit: major(rec.MonthlySendLimit, rec.Currency),
			CurrentMonthSent: major(rec.CurrentMonthSent, rec.Currency),
			Remaining:        major(remaining, rec.Currency),
			Currency:         string(rec.Currency),
			ResetDate:        rec.ResetDate,
		})
	}
}

func major(amount int64, code money.Code) string {
	m := money.Must(amount, code)
	return m.Major().StringFixed(int32(m.Currency().Decimals))
}
