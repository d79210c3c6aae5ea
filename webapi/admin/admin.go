package admin

import (
	"time"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain/kyc"
	kycsvc "github.com/amirasaad/remittance/pkg/kyc"
	"github.com/amirasaad/remittance/pkg/ledger"
	"github.com/amirasaad/remittance/pkg/middleware"
	"github.com/amirasaad/remittance/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// UnreconciledDTO is a payment an operator has to look at.
type UnreconciledDTO struct {
	PaymentID            string     `json:"paymentId"`
	UserID               string     `json:"userId"`
	Gateway              string     `json:"gateway"`
	GatewayTransactionID string     `json:"gatewayTransactionId"`
	Status               string     `json:"status"`
	Amount               int64      `json:"amount"`
	Currency             string     `json:"currency"`
	HasLedgerPair        bool       `json:"hasLedgerPair"`
	ReviewReason         string     `json:"reviewReason,omitempty"`
	ProcessedAt          *time.Time `json:"processedAt,omitempty"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// SetKYCRequest changes a user's verification tier.
type SetKYCRequest struct {
	Level  string `json:"level" validate:"required,oneof=bronze silver gold"`
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}

// Routes registers operator endpoints behind the admin role.
func Routes(app *fiber.App, reconciler *ledger.Reconciler, enforcer *kycsvc.Enforcer, cfg *config.App) {
	group := app.Group("/admin", middleware.JwtProtected(cfg.Auth.Jwt), middleware.AdminOnly())
	group.Get("/reconciliation", Unreconciled(reconciler))
	group.Put("/kyc/:userId", SetKYC(enforcer))
}

// Unreconciled returns a Fiber handler listing completed payments without
// a ledger pair and payments flagged for review.
func Unreconciled(reconciler *ledger.Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		if limit < 1 || limit > 1000 {
			limit = 100
		}
		list, err := reconciler.ListUnreconciled(c.UserContext(), limit)
		if err != nil {
			log.Errorf("Failed to list unreconciled payments: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to list unreconciled payments", err)
		}
		out := make([]UnreconciledDTO, 0, len(list))
		for _, p := range list {
			out = append(out, UnreconciledDTO{
				PaymentID:            p.ID.String(),
				UserID:               p.UserID.String(),
				Gateway:              string(p.Gateway),
				GatewayTransactionID: p.GatewayTransactionID,
				Status:               string(p.Status),
				Amount:               p.TotalAmount.Amount(),
				Currency:             p.TotalAmount.Code().String(),
				HasLedgerPair:        p.TransactionID != nil,
				ReviewReason:         p.ReviewReason,
				ProcessedAt:          p.ProcessedAt,
				UpdatedAt:            p.UpdatedAt,
			})
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Unreconciled payments fetched", out)
	}
}

// SetKYC returns a Fiber handler that sets a user's KYC tier and status.
func SetKYC(enforcer *kycsvc.Enforcer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := uuid.Parse(c.Params("userId"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid user ID", nil, fiber.StatusBadRequest, "user id must be a UUID")
		}
		input, err := common.BindAndValidate[SetKYCRequest](c)
		if input == nil {
			return err // error response already written
		}
		rec, err := enforcer.SetLevel(c.UserContext(), userID, kyc.Level(input.Level), kyc.Status(input.Status))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to update KYC", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "KYC updated", fiber.Map{
			"userId":           rec.UserID.String(),
			"level":            rec.Level,
			"status":           rec.Status,
			"monthlySendLimit": rec.MonthlySendLimit,
			"currency":         rec.Currency,
		})
	}
}
