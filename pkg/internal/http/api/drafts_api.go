package api

import (
	"errors"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/composer"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/gofiber/fiber/v2"
)

func (r *Router) openComposer(c *fiber.Ctx) (*composer.Composer, error) {
	identity, err := exts.EnsureIdentity(c)
	if err != nil {
		return nil, err
	}
	session, owned := r.Sessions.Open(c.Params("session"), identity)
	if !owned {
		return nil, fiber.NewError(fiber.StatusForbidden, "draft session belongs to another author")
	}
	return session, nil
}

func (r *Router) getDraft(c *fiber.Ctx) error {
	session, err := r.openComposer(c)
	if err != nil {
		return err
	}

	return c.JSON(session.Snapshot())
}

func (r *Router) startDraft(c *fiber.Ctx) error {
	session, err := r.openComposer(c)
	if err != nil {
		return err
	}

	var data struct {
		Variant any `json:"variant" validate:"required"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	if err := session.StartDraft(data.Variant); err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(session.Snapshot())
}

func (r *Router) updateDraft(c *fiber.Ctx) error {
	session, err := r.openComposer(c)
	if err != nil {
		return err
	}

	var patch models.DraftPatch
	if err := exts.BindAndValidate(c, &patch); err != nil {
		return err
	}

	if err := session.UpdateField(patch); err != nil {
		var transition *composer.TransitionError
		if errors.As(err, &transition) || errors.Is(err, composer.ErrSubmitting) {
			return exts.ErrorResponse(c, err)
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(session.Snapshot())
}

func (r *Router) changeDraftVariant(c *fiber.Ctx) error {
	session, err := r.openComposer(c)
	if err != nil {
		return err
	}

	var data struct {
		Variant any `json:"variant" validate:"required"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	if err := session.ChangeVariant(data.Variant); err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.JSON(session.Snapshot())
}

func (r *Router) submitDraft(c *fiber.Ctx) error {
	session, err := r.openComposer(c)
	if err != nil {
		return err
	}

	item, err := session.Submit(c.UserContext())
	if err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"item":    item,
		"pending": item.HasExternalRef() && !item.ExternalRef.Confirmed,
	})
}

func (r *Router) discardDraft(c *fiber.Ctx) error {
	if _, err := r.openComposer(c); err != nil {
		return err
	}

	if err := r.Sessions.Close(c.Params("session")); err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
