// Package webapi provides the HTTP surface of the remittance service.
// It is organized into sub-packages:
// - webhook: provider callbacks
// - payment: quotes, client-initiated sends, status and history
// - kyc: the caller's sending allowance
// - admin: reconciliation monitoring and KYC tiers
package webapi

import (
	"errors"
	"strings"

	"github.com/amirasaad/remittance/pkg/app"
	adminweb "github.com/amirasaad/remittance/webapi/admin"
	"github.com/amirasaad/remittance/webapi/common"
	kycweb "github.com/amirasaad/remittance/webapi/kyc"
	paymentweb "github.com/amirasaad/remittance/webapi/payment"
	webhookweb "github.com/amirasaad/remittance/webapi/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupApp Initialize Fiber with custom configuration
func SetupApp(a *app.App) *fiber.App {
	fiberApp := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		},
	})

	// Configure rate limiting middleware
	// Uses X-Forwarded-For header when behind a proxy
	// Falls back to X-Real-IP or direct IP if needed
	fiberApp.Use(limiter.New(limiter.Config{
		Max:        a.Config.RateLimit.MaxRequests,
		Expiration: a.Config.RateLimit.Window,
		Next: func(c *fiber.Ctx) bool {
			// Providers retry on 429 as on 5xx; their deliveries are not throttled.
			return strings.HasPrefix(c.Path(), "/webhooks/")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
				// Take the first IP in the chain
				if commaIndex := strings.Index(forwardedFor, ","); commaIndex != -1 {
					return strings.TrimSpace(forwardedFor[:commaIndex])
				}
				return strings.TrimSpace(forwardedFor)
			}
			if realIP := c.Get("X-Real-IP"); realIP != "" {
				return realIP
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return common.ProblemDetailsJSON(
				c,
				"Too Many Requests",
				errors.New("rate limit exceeded"),
				fiber.StatusTooManyRequests,
			)
		},
	}))
	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())

	// Health check endpoint
	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Remittance API is running! 🚀")
	})
	fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	webhookweb.Routes(fiberApp, a.Reconciler)
	paymentweb.Routes(fiberApp, a.PaymentService, a.Config)
	kycweb.Routes(fiberApp, a.KYC, a.Config)
	adminweb.Routes(fiberApp, a.Reconciler, a.KYC, a.Config)
	return fiberApp
}
