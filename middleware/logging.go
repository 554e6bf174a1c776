package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"schoolreports_go/database"
	"schoolreports_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const activityCacheTTL = 24 * time.Hour

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)

		err := c.Next()

		fields := logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"request_id": requestID,
		}
		if t, ok := c.Locals("user").(*models.Teacher); ok && t != nil {
			fields["teacher_id"] = t.ID
		}
		logrus.WithFields(fields).Info("HTTP Request")
		return err
	}
}

// LogActivity records a teacher action. It never blocks the request: the entry goes to the
// Redis queue, or straight to the database when Redis is unavailable.
func LogActivity(c *fiber.Ctx, action, resource string, resourceID uint, details interface{}) {
	var teacherID uint
	if t, err := GetCurrentUser(c); err == nil {
		teacherID = t.ID
	}

	entry := models.ActivityLog{
		TeacherID:  teacherID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}
	entry.CreatedAt = time.Now()

	requestID, _ := c.Locals("request_id").(string)
	meta := map[string]interface{}{
		"details":        details,
		"integrity_hash": integrityHash(entry),
		"request_id":     requestID,
		"method":         c.Method(),
		"path":           c.Path(),
		"status_code":    c.Response().StatusCode(),
	}
	if b, err := json.Marshal(meta); err == nil {
		entry.Details = b
	}

	go func(al models.ActivityLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()
		if err := cacheActivityLog(al); err == nil {
			return
		}
		if database.DB == nil {
			logrus.Error("database.DB is nil; cannot save activity log")
			return
		}
		if err := database.DB.Omit("Teacher").Create(&al).Error; err != nil {
			logrus.WithError(err).Error("Failed to save activity log to database")
		}
	}(entry)
}

// integrityHash fingerprints a log entry for tamper detection.
func integrityHash(l models.ActivityLog) string {
	data := fmt.Sprintf("%d:%s:%s:%d:%s:%s:%s",
		l.TeacherID, l.Action, l.Resource, l.ResourceID, l.IPAddress, l.UserAgent,
		l.CreatedAt.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func cacheActivityLog(l models.ActivityLog) error {
	rc := database.GetRedisClient()
	if rc == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}
	ctx := context.Background()
	key := fmt.Sprintf("log:%d:%s:%s", l.TeacherID, l.Action, uuid.NewString())
	if err := rc.Set(ctx, key, data, activityCacheTTL).Err(); err != nil {
		return fmt.Errorf("cache log: %w", err)
	}
	if err := rc.ZAdd(ctx, database.ActivityQueueKey, &redis.Z{
		Score:  float64(l.CreatedAt.Unix()),
		Member: key,
	}).Err(); err != nil {
		logrus.WithError(err).Error("Failed to add log to processing queue")
	}
	return nil
}
