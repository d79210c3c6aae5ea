package common

import (
	"errors"
	"strings"

	"github.com/amirasaad/remittance/pkg/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const problemJSON = "application/problem+json"

var validate = validator.New()

// Response defines the standard API response structure for success cases.
type Response struct {
	Status  int    `json:"status"`         // HTTP status code
	Message string `json:"message"`        // Human-readable explanation
	Data    any    `json:"data,omitempty"` // Response data
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`     // A URI reference that identifies the problem type
	Title    string `json:"title"`              // Short, human-readable summary
	Status   int    `json:"status"`             // HTTP status code
	Detail   string `json:"detail,omitempty"`   // Human-readable explanation
	Instance string `json:"instance,omitempty"` // URI reference that identifies the specific occurrence
	Errors   any    `json:"errors,omitempty"`   // Optional: additional error details
}

// SuccessResponseJSON writes the standard success envelope.
func SuccessResponseJSON(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{
		Status:  status,
		Message: message,
		Data:    data,
	})
}

// ProblemDetailsJSON writes err as problem+json. The status is derived from
// err unless an int is passed in opts; a string in opts replaces the detail,
// anything else is reported under "errors".
func ProblemDetailsJSON(c *fiber.Ctx, title string, err error, opts ...any) error {
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   fiber.StatusInternalServerError,
		Instance: c.OriginalURL(),
	}
	if err != nil {
		pd.Status = ErrorToStatusCode(err)
		pd.Detail = err.Error()
	}
	for _, opt := range opts {
		switch v := opt.(type) {
		case int:
			pd.Status = v
		case string:
			pd.Detail = v
		case nil:
		default:
			pd.Errors = v
		}
	}
	// Internal errors are not echoed back to callers.
	if pd.Status >= fiber.StatusInternalServerError && pd.Status != fiber.StatusBadGateway {
		pd.Detail = ""
	}
	return c.Status(pd.Status).JSON(pd, problemJSON)
}

// ErrorToStatusCode maps domain errors to HTTP status codes.
func ErrorToStatusCode(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrSignatureInvalid),
		errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrKYCNotVerified):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnknownGateway):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyExists):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrLimitExceeded):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGateway):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// BindAndValidate parses the request body and validates it using
// go-playground/validator. On failure the problem response has already been
// written, the returned input is nil and the error is whatever writing the
// response returned.
func BindAndValidate[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		return nil, ProblemDetailsJSON(c, "Invalid request body", nil, fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(input); err != nil {
		return nil, ProblemDetailsJSON(c, "Validation failed", nil, fiber.StatusBadRequest, fieldErrors(err))
	}
	return &input, nil
}

func fieldErrors(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[strings.ToLower(fe.Field()[:1])+fe.Field()[1:]] = fe.Tag()
	}
	return out
}
