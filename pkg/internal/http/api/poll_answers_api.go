package api

import (
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/http/exts"
	"github.com/gofiber/fiber/v2"
)

func (r *Router) answerPoll(c *fiber.Ctx) error {
	identity, err := exts.EnsureIdentity(c)
	if err != nil {
		return err
	}

	itemId, err := c.ParamsInt("itemId", 0)
	if err != nil || itemId <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid item id")
	}

	var data struct {
		Answer string `json:"answer" validate:"required"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	item, answer, err := r.Feed.AnswerPoll(c.UserContext(), uint(itemId), identity, data.Answer)
	if err != nil {
		return exts.ErrorResponse(c, err)
	}

	summary, err := r.Registry.RenderSummary(item)
	if err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"answer":  answer,
		"summary": summary,
	})
}
