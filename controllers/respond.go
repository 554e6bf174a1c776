package controllers

import (
	"errors"
	"strconv"

	"schoolreports_go/middleware"
	"schoolreports_go/models"
	"schoolreports_go/services"
	"schoolreports_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// respondError maps service errors onto HTTP responses.
func respondError(c *fiber.Ctx, err error) error {
	var ve utils.ValidationErrors
	var inUse *services.InUseError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "fields": ve})
	case errors.As(err, &inUse):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": services.InUseMessage(inUse), "count": inUse.Count})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrNotOfficer):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "ليس لديك صلاحية لتنفيذ هذا الإجراء"})
	case errors.Is(err, services.ErrProtectedDepartment):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "لا يمكن تعديل معرّف قسم الإدارة أو حذفه"})
	case errors.Is(err, services.ErrSlugTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "المعرّف مستخدم لقسم أو دور آخر"})
	case errors.Is(err, services.ErrUseAdminReports):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "use_admin_reports", "redirect": "/api/reports/admin"})
	case errors.Is(err, services.ErrEmptyAction):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "لا يوجد تغيير لتطبيقه"})
	case errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "حالة غير صالحة"})
	case errors.Is(err, services.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}
	logrus.WithError(err).WithFields(logrus.Fields{"path": c.Path(), "method": c.Method()}).Error("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func currentTeacher(c *fiber.Ctx) *models.Teacher {
	t, _ := middleware.GetCurrentUser(c)
	return t
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}
