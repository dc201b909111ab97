package api

import (
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/http/exts"
	"github.com/gofiber/fiber/v2"
)

func (r *Router) listPending(c *fiber.Ctx) error {
	identity, err := exts.EnsureIdentity(c)
	if err != nil {
		return err
	}

	items := r.Pipeline.Pending().List(identity)

	return c.JSON(fiber.Map{
		"count": len(items),
		"data":  items,
	})
}

func (r *Router) drainNotices(c *fiber.Ctx) error {
	identity, err := exts.EnsureIdentity(c)
	if err != nil {
		return err
	}

	items := r.Pipeline.Notices().Drain(identity)

	return c.JSON(fiber.Map{
		"count": len(items),
		"data":  items,
	})
}
