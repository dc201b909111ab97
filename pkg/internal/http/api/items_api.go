package api

import (
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/http/exts"
	"github.com/gofiber/fiber/v2"
)

func (r *Router) getItem(c *fiber.Ctx) error {
	itemId, err := c.ParamsInt("itemId", 0)
	if err != nil || itemId <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid item id")
	}

	item, err := r.Store.GetContentItem(c.UserContext(), uint(itemId))
	if err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.JSON(item)
}

func (r *Router) getItemSummary(c *fiber.Ctx) error {
	itemId, err := c.ParamsInt("itemId", 0)
	if err != nil || itemId <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid item id")
	}

	item, err := r.Store.GetContentItem(c.UserContext(), uint(itemId))
	if err != nil {
		return exts.ErrorResponse(c, err)
	}

	summary, err := r.Registry.RenderSummary(item)
	if err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.JSON(summary)
}

func (r *Router) interactItem(c *fiber.Ctx) error {
	if _, err := exts.EnsureIdentity(c); err != nil {
		return err
	}

	itemId, err := c.ParamsInt("itemId", 0)
	if err != nil || itemId <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid item id")
	}

	var data struct {
		Counter string `json:"counter" validate:"required,oneof=like comment share save"`
		Delta   int64  `json:"delta" validate:"omitempty,oneof=-1 1"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}
	if data.Delta == 0 {
		data.Delta = 1
	}

	item, err := r.Feed.Interact(c.UserContext(), uint(itemId), data.Counter+"_count", data.Delta)
	if err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"id":         item.ID,
		"engagement": item.Engagement,
	})
}
