package controllers

import (
	"schoolreports_go/middleware"
	"schoolreports_go/services"

	"github.com/gofiber/fiber/v2"
)

type ReportTypeController struct {
	types *services.ReportTypeService
}

func NewReportTypeController(types *services.ReportTypeService) *ReportTypeController {
	return &ReportTypeController{types: types}
}

func (rc *ReportTypeController) List(c *fiber.Ctx) error {
	types, err := rc.types.List()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"report_types": types})
}

// Active lists the types teachers may file reports under.
func (rc *ReportTypeController) Active(c *fiber.Ctx) error {
	types, err := rc.types.Active()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"report_types": types})
}

func (rc *ReportTypeController) Create(c *fiber.Ctx) error {
	var in services.ReportTypeInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	rt, err := rc.types.Create(in)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "report_types", rt.ID, fiber.Map{"code": rt.Code})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"report_type": rt})
}

func (rc *ReportTypeController) Update(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.ReportTypeInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	rt, err := rc.types.Update(id, in)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "UPDATE", "report_types", rt.ID, fiber.Map{"code": rt.Code, "is_active": rt.IsActive})
	return c.JSON(fiber.Map{"report_type": rt})
}

// Delete refuses with 409 while reports still use the type.
func (rc *ReportTypeController) Delete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := rc.types.Delete(id); err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "DELETE", "report_types", id, nil)
	return c.JSON(fiber.Map{"message": "تم حذف نوع التقرير"})
}
