package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"schoolreports_go/config"
	"schoolreports_go/database"
	"schoolreports_go/database/seeders"
	"schoolreports_go/middleware"
	"schoolreports_go/routes"
	"schoolreports_go/services"
	"schoolreports_go/services/notifications"
	"schoolreports_go/services/websocket"
	"schoolreports_go/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	config.LoadConfig()
	setupLogging(config.AppConfig)

	database.Connect()
	defer database.Close()
	db := database.DB
	rdb := database.GetRedisClient()

	if !config.AppConfig.SkipSeed {
		if err := seeders.SeedAll(db); err != nil {
			logrus.WithError(err).Fatal("seeding failed")
		}
	}
	bootstrapSuperuser(db)

	wsHub := websocket.NewHub()
	go wsHub.Run()

	store, err := storage.NewStorageService(config.AppConfig)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialise S3 storage")
	}
	line := services.NewLineMessagingService(config.AppConfig.LineChannelSecret, config.AppConfig.LineChannelAccessToken)
	loc := config.AppConfig.Location()
	perms := services.NewPermissionService(db)

	archive := services.NewActivityArchiveService(db, rdb, config.AppConfig)
	if err := archive.Start(); err != nil {
		logrus.WithError(err).Error("failed to start log maintenance scheduler")
	}

	svc := &routes.Services{
		DB:            db,
		Perms:         perms,
		Teachers:      services.NewTeacherService(db),
		Departments:   services.NewDepartmentService(db),
		ReportTypes:   services.NewReportTypeService(db),
		Roles:         services.NewRoleService(db),
		Reports:       services.NewReportService(db, perms, store, loc, config.AppConfig.MaxImageSize),
		Tickets:       services.NewTicketService(db, perms, store, line, wsHub, config.AppConfig.MaxAttachmentSize),
		Notifications: notifications.NewService(db, perms, rdb, wsHub),
		Dashboard:     services.NewDashboardService(db, perms, loc),
		Health:        services.NewHealthService(db, rdb, wsHub, line.Enabled(), config.AppConfig.AppEnv),
		Archive:       archive,
		LineGroups:    services.NewLineGroupMatcher(db),
		Line:          line,
		LineSecret:    config.AppConfig.LineChannelSecret,
		Hub:           wsHub,
		Location:      loc,
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(config.AppConfig.MaxFileSize),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.LoggerMiddleware())

	routes.SetupRoutes(app, svc)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":        config.AppConfig.Port,
			"environment": config.AppConfig.AppEnv,
		}).Info("server starting")
		if err := app.Listen(":" + config.AppConfig.Port); err != nil {
			logrus.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down")
	archive.Stop()
	wsHub.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Error("server shutdown failed")
	}
	// drain what the request middleware left in the Redis queue
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if n, err := archive.FlushCachedLogs(ctx); err != nil {
		logrus.WithError(err).Warn("final activity log flush failed")
	} else if n > 0 {
		logrus.WithField("count", n).Info("flushed cached activity logs")
	}
}

// bootstrapSuperuser creates the first account from SUPERUSER_PHONE and SUPERUSER_PASSWORD
// when no superuser exists yet.
func bootstrapSuperuser(db *gorm.DB) {
	phone, password := os.Getenv("SUPERUSER_PHONE"), os.Getenv("SUPERUSER_PASSWORD")
	if phone == "" || password == "" {
		return
	}
	var n int64
	if err := db.Table("teachers").Where("is_superuser = ?", true).Count(&n).Error; err != nil || n > 0 {
		return
	}
	name := os.Getenv("SUPERUSER_NAME")
	if name == "" {
		name = "المدير"
	}
	if _, err := services.NewTeacherService(db).CreateSuperuser(phone, name, password); err != nil {
		logrus.WithError(err).Error("failed to create superuser")
		return
	}
	logrus.WithField("phone", phone).Info("superuser created")
}

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// Log to stdout in development, to the log file elsewhere
	if cfg.AppEnv == "development" || cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logrus.SetOutput(file)
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
