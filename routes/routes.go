package routes

import (
	"time"

	"schoolreports_go/controllers"
	"schoolreports_go/handlers"
	"schoolreports_go/middleware"
	"schoolreports_go/models"
	"schoolreports_go/services"
	"schoolreports_go/services/notifications"
	"schoolreports_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Services bundles everything the HTTP layer needs.
type Services struct {
	DB            *gorm.DB
	Perms         *services.PermissionService
	Teachers      *services.TeacherService
	Departments   *services.DepartmentService
	ReportTypes   *services.ReportTypeService
	Roles         *services.RoleService
	Reports       *services.ReportService
	Tickets       *services.TicketService
	Notifications *notifications.Service
	Dashboard     *services.DashboardService
	Health        *services.HealthService
	Archive       *services.ActivityArchiveService
	LineGroups    *services.LineGroupMatcher
	Line          *services.LineMessagingService
	LineSecret    string
	Hub           *websocket.Hub
	Location      *time.Location
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, s *Services) {
	authController := controllers.NewAuthController(s.Teachers, s.Perms)
	teacherController := controllers.NewTeacherController(s.Teachers)
	departmentController := controllers.NewDepartmentController(s.Departments)
	reportTypeController := controllers.NewReportTypeController(s.ReportTypes)
	roleController := controllers.NewRoleController(s.Roles)
	reportController := controllers.NewReportController(s.Reports, s.Location)
	ticketController := controllers.NewTicketController(s.Tickets)
	notificationController := controllers.NewNotificationController(s.Notifications)
	navController := controllers.NewNavController(s.Perms, s.Reports, s.Tickets, s.Notifications, s.Dashboard)
	healthController := controllers.NewHealthController(s.Health)
	logController := controllers.NewLogController(s.DB, s.Archive)
	wsController := controllers.NewWebSocketController(s.Hub)
	lineWebhook := handlers.NewLineWebhookHandler(s.LineSecret, s.LineGroups, s.Line)

	app.Get("/health", healthController.Health)
	app.Get("/health/live", healthController.Live)
	app.Post("/line/webhook", lineWebhook.Handle)

	// WebSocket: /ws?token=<jwt>
	app.Get("/ws", wsController.Upgrade, wsController.Handler())

	api := app.Group("/api")

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware())
	staff := middleware.RequireStaff()
	manager := middleware.RequireManager()

	protected.Post("/auth/logout", authController.Logout)
	protected.Get("/auth/me", authController.Me)
	protected.Put("/auth/password", authController.ChangePassword)

	protected.Get("/nav", navController.Nav)
	protected.Get("/home", navController.Home)
	protected.Get("/admin/dashboard", staff, navController.AdminDashboard)

	// Reports: fixed paths before /:id
	reports := protected.Group("/reports")
	reports.Get("/", reportController.MyReports)
	reports.Post("/", reportController.Create)
	reports.Get("/admin", manager, reportController.AdminReports)
	reports.Get("/admin/export", manager, reportController.Export)
	reports.Delete("/admin/:id", staff, reportController.AdminDelete)
	reports.Get("/officer", reportController.OfficerReports)
	reports.Delete("/officer/:id", reportController.OfficerDelete)
	reports.Get("/:id/print", reportController.Print)
	reports.Get("/:id", reportController.Get)
	reports.Put("/:id", reportController.Update)
	reports.Delete("/:id", reportController.Delete)

	reportTypes := protected.Group("/report-types")
	reportTypes.Get("/active", reportTypeController.Active)
	reportTypes.Get("/", manager, reportTypeController.List)
	reportTypes.Post("/", manager, reportTypeController.Create)
	reportTypes.Put("/:id", manager, reportTypeController.Update)
	reportTypes.Delete("/:id", manager, reportTypeController.Delete)

	roles := protected.Group("/roles", manager)
	roles.Get("/", roleController.List)
	roles.Post("/", roleController.Create)
	roles.Get("/:id", roleController.Get)
	roles.Put("/:id", roleController.Update)

	teachers := protected.Group("/teachers", manager)
	teachers.Get("/", teacherController.List)
	teachers.Post("/", teacherController.Create)
	teachers.Get("/:id", teacherController.Get)
	teachers.Put("/:id", teacherController.Update)
	teachers.Delete("/:id", teacherController.Delete)

	departments := protected.Group("/departments")
	departments.Get("/members", departmentController.MembersJSON)
	departments.Get("/", manager, departmentController.List)
	departments.Post("/", manager, departmentController.Create)
	departments.Get("/:code", manager, departmentController.Get)
	departments.Put("/:code", manager, departmentController.Update)
	departments.Delete("/:code", manager, departmentController.Delete)
	departments.Get("/:code/available", manager, departmentController.Available)
	departments.Post("/:code/members", manager, departmentController.AddMember)
	departments.Delete("/:code/members/:teacherId", manager, departmentController.RemoveMember)

	tickets := protected.Group("/tickets")
	tickets.Get("/statuses", departmentController.Statuses)
	tickets.Get("/", ticketController.MyRequests)
	tickets.Post("/", ticketController.Create)
	handlesTickets := middleware.RequireStaffOrOfficer(func(t *models.Teacher) bool {
		return len(s.Perms.DepartmentCodes(t)) > 0
	})
	tickets.Get("/inbox", handlesTickets, ticketController.Inbox)
	tickets.Get("/assigned", ticketController.Assigned)
	tickets.Get("/:id", ticketController.Detail)
	tickets.Post("/:id/actions", ticketController.Act)

	notifs := protected.Group("/notifications")
	notifs.Get("/", notificationController.List)
	notifs.Get("/unread-count", notificationController.UnreadCount)
	notifs.Get("/hero", notificationController.Hero)
	notifs.Post("/read-all", notificationController.MarkAllRead)
	notifs.Get("/recipients", notificationController.Recipients)
	notifs.Post("/compose", notificationController.Compose)
	notifs.Get("/sent", notificationController.Sent)
	notifs.Post("/:id/read", notificationController.MarkRead)
	notifs.Patch("/:id/active", notificationController.SetActive)

	logs := protected.Group("/logs", manager)
	logs.Get("/", logController.List)
	logs.Get("/stats", logController.Stats)
	logs.Post("/flush", logController.Flush)
	logs.Post("/archive", logController.Archive)
	logs.Get("/archives", logController.Archives)

	protected.Get("/ws/stats", staff, wsController.Stats)
}
