package controllers

import (
	"time"

	"schoolreports_go/models"
	"schoolreports_go/services"
	"schoolreports_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LogController struct {
	db      *gorm.DB
	archive *services.ActivityArchiveService
}

func NewLogController(db *gorm.DB, archive *services.ActivityArchiveService) *LogController {
	return &LogController{db: db, archive: archive}
}

type countRow struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func (lc *LogController) filtered(c *fiber.Ctx) *gorm.DB {
	query := lc.db.Model(&models.ActivityLog{})
	if teacherID := c.QueryInt("teacher_id"); teacherID > 0 {
		query = query.Where("teacher_id = ?", teacherID)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		query = query.Where("resource = ?", resource)
	}
	if startDate := c.Query("start_date"); startDate != "" {
		if parsedDate, err := time.Parse("2006-01-02", startDate); err == nil {
			query = query.Where("created_at >= ?", parsedDate)
		}
	}
	if endDate := c.Query("end_date"); endDate != "" {
		if parsedDate, err := time.Parse("2006-01-02", endDate); err == nil {
			query = query.Where("created_at < ?", parsedDate.Add(24*time.Hour))
		}
	}
	return query
}

// List returns activity logs, newest first.
func (lc *LogController) List(c *fiber.Ctx) error {
	p := utils.PaginationFromQuery(c, 50)
	query := lc.filtered(c)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return respondError(c, err)
	}
	var logs []models.ActivityLog
	if err := query.Preload("Teacher").Order("created_at DESC, id DESC").Scopes(utils.Paginate(p)).Find(&logs).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"logs": logs, "pagination": p.WithTotal(total)})
}

// Stats breaks the filtered logs down by action and resource.
func (lc *LogController) Stats(c *fiber.Ctx) error {
	query := lc.filtered(c)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return respondError(c, err)
	}
	var actions, resources []countRow
	if err := query.Session(&gorm.Session{}).Select("action AS name, COUNT(*) AS count").Group("action").Scan(&actions).Error; err != nil {
		return respondError(c, err)
	}
	if err := query.Session(&gorm.Session{}).Select("resource AS name, COUNT(*) AS count").Group("resource").Scan(&resources).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"total": total, "actions": actions, "resources": resources})
}

// Flush moves queued Redis entries into the database.
func (lc *LogController) Flush(c *fiber.Ctx) error {
	n, err := lc.archive.FlushCachedLogs(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"flushed": n})
}

// Archive ships logs past retention to S3 now instead of waiting for the hourly job.
func (lc *LogController) Archive(c *fiber.Ctx) error {
	a, err := lc.archive.ArchiveOldLogs(c.UserContext())
	if err == services.ErrArchiveStorageDisabled {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"archive": a})
}

func (lc *LogController) Archives(c *fiber.Ctx) error {
	archives, err := lc.archive.Archives()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"archives": archives})
}
