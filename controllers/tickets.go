package controllers

import (
	"schoolreports_go/middleware"
	"schoolreports_go/services"
	"schoolreports_go/utils"

	"github.com/gofiber/fiber/v2"
)

type TicketController struct {
	tickets *services.TicketService
}

func NewTicketController(tickets *services.TicketService) *TicketController {
	return &TicketController{tickets: tickets}
}

func ticketFilter(c *fiber.Ctx) services.TicketFilter {
	return services.TicketFilter{
		Q:      c.Query("q"),
		Status: c.Query("status"),
		Order:  c.Query("order"),
		Mine:   c.QueryBool("mine"),
	}
}

func listingJSON(l *services.TicketListing) fiber.Map {
	return fiber.Map{
		"tickets":    utils.ToTicketDTOs(l.Tickets),
		"stats":      l.Stats,
		"pagination": l.Pagination,
	}
}

// Create opens a ticket; the optional file goes in the "attachment" multipart field.
func (tc *TicketController) Create(c *fiber.Ctx) error {
	var in services.TicketInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	attachment, err := c.FormFile("attachment")
	if err != nil {
		attachment = nil
	}
	t, err := tc.tickets.Create(currentTeacher(c), in, attachment)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "tickets", t.ID, fiber.Map{"title": t.Title})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ticket": utils.ToTicketDTO(*t)})
}

func (tc *TicketController) MyRequests(c *fiber.Ctx) error {
	l, err := tc.tickets.MyRequests(currentTeacher(c), ticketFilter(c), utils.FixedPage(c, services.MyRequestsPageSize))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(listingJSON(l))
}

func (tc *TicketController) Inbox(c *fiber.Ctx) error {
	l, err := tc.tickets.Inbox(currentTeacher(c), ticketFilter(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(listingJSON(l))
}

func (tc *TicketController) Assigned(c *fiber.Ctx) error {
	l, err := tc.tickets.AssignedToMe(currentTeacher(c), ticketFilter(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(listingJSON(l))
}

func (tc *TicketController) Detail(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	d, err := tc.tickets.Detail(currentTeacher(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"ticket": utils.ToTicketDTO(d.Ticket),
		"notes":  utils.ToTicketNoteDTOs(d.Notes),
	})
}

// Act applies a status change and/or a note. Refused parts come back as warnings.
func (tc *TicketController) Act(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.ActInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	res, err := tc.tickets.Act(currentTeacher(c), id, in)
	if err != nil {
		return respondError(c, err)
	}
	if res.Changed || res.NoteID != 0 {
		middleware.LogActivity(c, "UPDATE", "tickets", id, fiber.Map{"status_changed": res.Changed, "note_id": res.NoteID})
	}
	out := fiber.Map{
		"changed":  res.Changed,
		"note_id":  res.NoteID,
		"warnings": res.Warnings,
		"ticket":   nil,
	}
	if res.Visible {
		out["ticket"] = utils.ToTicketDTO(res.Ticket)
	}
	return c.JSON(out)
}
