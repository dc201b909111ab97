package api

import (
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/feed"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

func (r *Router) getFeed(c *fiber.Ctx) error {
	take := c.QueryInt("take", 20)
	if take > services.MaxListTake {
		take = services.MaxListTake
	}

	mode, err := feed.ParseSortMode(c.Query("sort"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	window, err := feed.ParseWindow(c.Query("window"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	query := services.FeedQuery{
		Community: c.Query("community"),
		Author:    c.Query("author"),
		Window:    window,
		Sort:      mode,
		Take:      take,
		Truncate:  c.QueryBool("truncate", true),
	}
	if len(c.Query("type")) > 0 {
		query.Type = c.Query("type")
	}

	entries, err := r.Feed.GetFeed(c.UserContext(), query)
	if err != nil {
		return exts.ErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"count": len(entries),
		"data":  entries,
	})
}
