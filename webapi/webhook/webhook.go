package webhook

import (
	"errors"
	"net/http"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/ledger"
	"github.com/amirasaad/remittance/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// MaxBodyBytes bounds a single provider notification.
const MaxBodyBytes = 64 << 10

// Ack is the body returned for every acknowledged delivery.
type Ack struct {
	Received  bool   `json:"received"`
	Outcome   string `json:"outcome"`
	PaymentID string `json:"paymentId,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Routes registers the provider callback endpoint. It is unauthenticated;
// each provider's signature is the credential.
func Routes(app *fiber.App, reconciler *ledger.Reconciler) {
	app.Post("/webhooks/:provider", Handle(reconciler))
}

// Handle returns a Fiber handler reconciling one provider notification.
// Duplicates, conflicts and events that do not concern a charge are
// acknowledged with 200 so the provider stops retrying; only infrastructure
// failures return 5xx.
func Handle(reconciler *ledger.Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		provider, err := payment.ParseGateway(c.Params("provider"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unknown provider", err)
		}
		body := c.Body()
		if len(body) > MaxBodyBytes {
			return common.ProblemDetailsJSON(c, "Payload too large", nil, fiber.StatusRequestEntityTooLarge)
		}

		headers := make(http.Header)
		c.Request().Header.VisitAll(func(k, v []byte) {
			headers.Add(string(k), string(v))
		})

		res, err := reconciler.HandleWebhook(c.UserContext(), ledger.Webhook{
			Provider: provider,
			// fasthttp reuses the body buffer after the handler returns.
			Payload:  append([]byte(nil), body...),
			Headers:  headers,
			RemoteIP: c.IP(),
		})
		switch {
		case err == nil:
			ack := Ack{Received: true, Outcome: string(res.Outcome), Status: string(res.Status)}
			if res.PaymentID != uuid.Nil {
				ack.PaymentID = res.PaymentID.String()
			}
			return c.Status(fiber.StatusOK).JSON(ack)
		case errors.Is(err, domain.ErrConflict):
			log.Warnf("Webhook conflicts with recorded payment: %v", err)
			return c.Status(fiber.StatusOK).JSON(Ack{Received: true, Outcome: string(ledger.OutcomeConflict)})
		case errors.Is(err, domain.ErrSignatureInvalid):
			return common.ProblemDetailsJSON(c, "Invalid signature", err)
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnknownGateway):
			return common.ProblemDetailsJSON(c, "Malformed webhook", err)
		default:
			log.Errorf("Webhook processing failed: %v", err)
			return common.ProblemDetailsJSON(c, "Webhook processing failed", err, fiber.StatusInternalServerError)
		}
	}
}
