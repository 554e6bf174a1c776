package controllers

import (
	"schoolreports_go/middleware"
	"schoolreports_go/services/notifications"
	"schoolreports_go/utils"

	"github.com/gofiber/fiber/v2"
)

type NotificationController struct {
	notifications *notifications.Service
}

func NewNotificationController(svc *notifications.Service) *NotificationController {
	return &NotificationController{notifications: svc}
}

// cookieNames lists the names of the request's cookies that carry a value.
func cookieNames(c *fiber.Ctx) []string {
	var names []string
	c.Request().Header.VisitAllCookie(func(key, value []byte) {
		if len(value) > 0 {
			names = append(names, string(key))
		}
	})
	return names
}

// List returns the current teacher's notifications; ?unread=true keeps only unread ones.
func (nc *NotificationController) List(c *fiber.Ctx) error {
	me := currentTeacher(c)
	rows, p, err := nc.notifications.List(me.ID, c.QueryBool("unread"), utils.PaginationFromQuery(c, 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"notifications": utils.ToNotificationDTOs(rows),
		"pagination":    p,
		"unread_count":  nc.notifications.UnreadCount(me.ID),
	})
}

func (nc *NotificationController) UnreadCount(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"unread_count": nc.notifications.UnreadCount(currentTeacher(c).ID)})
}

// Hero returns the banner notification, honoring notif_dismissed_<id> cookies.
func (nc *NotificationController) Hero(c *fiber.Ctx) error {
	h := nc.notifications.Hero(currentTeacher(c).ID, notifications.DismissedIDs(cookieNames(c)))
	return c.JSON(fiber.Map{"hero": h})
}

func (nc *NotificationController) MarkRead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	me := currentTeacher(c)
	if err := nc.notifications.MarkRead(me.ID, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "unread_count": nc.notifications.UnreadCount(me.ID)})
}

func (nc *NotificationController) MarkAllRead(c *fiber.Ctx) error {
	changed, err := nc.notifications.MarkAllRead(currentTeacher(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "updated": changed})
}

// Recipients lists who the current teacher may notify.
func (nc *NotificationController) Recipients(c *fiber.Ctx) error {
	teachers, err := nc.notifications.Recipients(currentTeacher(c))
	if err != nil {
		return respondError(c, err)
	}
	out := make([]utils.TeacherShort, 0, len(teachers))
	for _, t := range teachers {
		out = append(out, utils.TeacherShort{ID: t.ID, Name: t.Name})
	}
	return c.JSON(fiber.Map{"results": out})
}

func (nc *NotificationController) Compose(c *fiber.Ctx) error {
	var in notifications.ComposeInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	n, count, err := nc.notifications.Compose(currentTeacher(c), in)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "notifications", n.ID, fiber.Map{"recipients": count})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": n.ID, "recipients": count})
}

func (nc *NotificationController) Sent(c *fiber.Ctx) error {
	items, p, err := nc.notifications.Sent(currentTeacher(c), utils.PaginationFromQuery(c, 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"notifications": items, "pagination": p})
}

type setActiveRequest struct {
	IsActive bool `json:"is_active"`
}

func (nc *NotificationController) SetActive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req setActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := nc.notifications.SetActive(currentTeacher(c), id, req.IsActive); err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "UPDATE", "notifications", id, fiber.Map{"is_active": req.IsActive})
	return c.JSON(fiber.Map{"ok": true, "is_active": req.IsActive})
}
