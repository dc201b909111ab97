package api

import (
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/http/exts"
	"github.com/gofiber/fiber/v2"
)

func (r *Router) getTicketBalance(c *fiber.Ctx) error {
	holder := c.Query("holder")
	if len(holder) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "holder is required")
	}

	balance, err := r.Ledger.GetTicketBalance(c.UserContext(), c.Params("resource"), holder)
	if err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"resource_id": c.Params("resource"),
		"holder":      holder,
		"balance":     balance,
	})
}

// cancelTickets is signed by the service key, only the author of the item
// backed by the resource may ask for it.
func (r *Router) cancelTickets(c *fiber.Ctx) error {
	identity, err := exts.EnsureIdentity(c)
	if err != nil {
		return err
	}

	item, err := r.Store.GetContentItemByResource(c.UserContext(), c.Params("resource"))
	if err != nil {
		return exts.ErrorResponse(c, err)
	}
	if item.AuthorIdentity != identity {
		return fiber.NewError(fiber.StatusForbidden, "only the author of the item can cancel its tickets")
	}

	txRef, err := r.Ledger.Cancel(c.UserContext(), c.Params("resource"))
	if err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"tx_ref": txRef,
	})
}
