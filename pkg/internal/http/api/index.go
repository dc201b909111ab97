package api

import (
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/composer"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/pipeline"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/registry"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

// Router holds what the handlers work with, every field is required.
type Router struct {
	Registry *registry.Registry
	Sessions *composer.Sessions
	Pipeline *pipeline.Pipeline
	Store    *services.ContentStore
	Feed     *services.FeedService
	Ledger   ledger.Ledger
}

func MapAPIs(app *fiber.App, baseURL string, r *Router) {
	api := app.Group(baseURL).Name("API")
	{
		drafts := api.Group("/drafts/:session").Name("Drafts API")
		{
			drafts.Get("/", r.getDraft)
			drafts.Post("/", r.startDraft)
			drafts.Patch("/", r.updateDraft)
			drafts.Put("/variant", r.changeDraftVariant)
			drafts.Post("/submit", r.submitDraft)
			drafts.Delete("/", r.discardDraft)
		}

		api.Get("/feed", r.getFeed)

		items := api.Group("/items/:itemId").Name("Items API")
		{
			items.Get("/", r.getItem)
			items.Get("/summary", r.getItemSummary)
			items.Post("/interactions", r.interactItem)
			items.Post("/answer", r.answerPoll)
		}

		api.Get("/pending", r.listPending)
		api.Get("/notices", r.drainNotices)

		tickets := api.Group("/tickets/:resource").Name("Tickets API")
		{
			tickets.Get("/balance", r.getTicketBalance)
			tickets.Post("/cancel", r.cancelTickets)
		}
	}
}
