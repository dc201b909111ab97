package exts

import (
	"errors"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/composer"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/gofiber/fiber/v2"
)

// ValidationError is the body returned for a draft that broke a rule.
type ValidationError struct {
	Error string `json:"error"`
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ErrorResponse turns a domain error into the matching response.
func ErrorResponse(c *fiber.Ctx, err error) error {
	var violation *models.ValidationFailed
	if errors.As(err, &violation) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ValidationError{
			Error: err.Error(),
			Field: violation.Field,
			Rule:  violation.Rule,
		})
	}
	return fiber.NewError(StatusOf(err), err.Error())
}

func StatusOf(err error) int {
	var fiberErr *fiber.Error
	var transition *composer.TransitionError
	var preStep *models.PreStepFailed
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, models.ErrNotFound), errors.Is(err, ledger.ErrUnknownTicket):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrUnknownVariant),
		errors.Is(err, models.ErrNotAPoll),
		errors.Is(err, models.ErrUnknownPollOption),
		errors.Is(err, models.ErrPollClosed):
		return fiber.StatusBadRequest
	case errors.Is(err, composer.ErrSubmitting), errors.As(err, &transition):
		return fiber.StatusConflict
	case errors.As(err, &preStep):
		return fiber.StatusBadGateway
	case errors.Is(err, models.ErrSchemaMismatch):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, models.ErrPersistenceUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
