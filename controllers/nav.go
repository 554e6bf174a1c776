package controllers

import (
	"time"

	"schoolreports_go/services"
	"schoolreports_go/services/notifications"
	"schoolreports_go/utils"

	"github.com/gofiber/fiber/v2"
)

const homeRecentTickets = 5

// NavController assembles the per-request header context and the dashboards.
type NavController struct {
	perms         *services.PermissionService
	reports       *services.ReportService
	tickets       *services.TicketService
	notifications *notifications.Service
	dashboard     *services.DashboardService
}

func NewNavController(perms *services.PermissionService, reports *services.ReportService, tickets *services.TicketService,
	notif *notifications.Service, dashboard *services.DashboardService) *NavController {
	return &NavController{perms: perms, reports: reports, tickets: tickets, notifications: notif, dashboard: dashboard}
}

// Nav never fails: every lookup degrades to a zero value.
func (nc *NavController) Nav(c *fiber.Ctx) error {
	me := currentTeacher(c)
	mine, assigned := nc.tickets.OpenCounts(me)

	depts := nc.perms.OfficerDepartments(me)
	officerOf := make([]*utils.DepartmentShort, 0, len(depts))
	for i := range depts {
		officerOf = append(officerOf, utils.ToDepartmentShort(&depts[i]))
	}

	return c.JSON(fiber.Map{
		"user":                   profile(nc.perms, me),
		"my_open_tickets":        mine,
		"assigned_open_tickets":  assigned,
		"officer_departments":    officerOf,
		"officer_recent_reports": nc.dashboard.OfficerRecentReports(me, time.Now()),
		"show_admin":             me.IsStaff || me.IsSuperuser,
		"can_send_notifications": nc.perms.CanSendNotifications(me),
		"unread_notifications":   nc.notifications.UnreadCount(me.ID),
		"hero":                   nc.notifications.Hero(me.ID, notifications.DismissedIDs(cookieNames(c))),
	})
}

// Home is the teacher landing page: report stats and recent tickets.
func (nc *NavController) Home(c *fiber.Ctx) error {
	me := currentTeacher(c)
	stats, err := nc.reports.HomeStats(me, time.Now())
	if err != nil {
		return respondError(c, err)
	}
	recent, ticketStats, err := nc.tickets.Recent(me, homeRecentTickets)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"reports": fiber.Map{
			"total":      stats.Total,
			"today":      stats.Today,
			"last_title": stats.LastTitle,
			"recent":     utils.ToReportDTOs(stats.Recent),
		},
		"tickets": fiber.Map{
			"stats":  ticketStats,
			"recent": utils.ToTicketDTOs(recent),
		},
	})
}

func (nc *NavController) AdminDashboard(c *fiber.Ctx) error {
	counts, err := nc.dashboard.AdminCounts()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(counts)
}
