package controllers

import (
	"schoolreports_go/middleware"
	"schoolreports_go/services"
	"schoolreports_go/utils"

	"github.com/gofiber/fiber/v2"
)

const teachersPageSize = 25

type TeacherController struct {
	teachers *services.TeacherService
}

func NewTeacherController(teachers *services.TeacherService) *TeacherController {
	return &TeacherController{teachers: teachers}
}

// List searches teachers by name, phone or national id.
func (tc *TeacherController) List(c *fiber.Ctx) error {
	items, p, err := tc.teachers.List(c.Query("q"), utils.PaginationFromQuery(c, teachersPageSize))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"teachers": items, "pagination": p})
}

func (tc *TeacherController) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	t, err := tc.teachers.Get(id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"teacher": t})
}

func (tc *TeacherController) Create(c *fiber.Ctx) error {
	var in services.TeacherInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	t, err := tc.teachers.Create(in)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "teachers", t.ID, fiber.Map{"phone": t.Phone})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"teacher": t})
}

func (tc *TeacherController) Update(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.TeacherInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	t, err := tc.teachers.Update(id, in)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "UPDATE", "teachers", t.ID, nil)
	return c.JSON(fiber.Map{"teacher": t})
}

func (tc *TeacherController) Delete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if me := currentTeacher(c); me != nil && me.ID == id {
		return badRequest(c, "لا يمكنك حذف حسابك")
	}
	if err := tc.teachers.Delete(id); err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "DELETE", "teachers", id, nil)
	return c.JSON(fiber.Map{"message": "تم حذف المعلم"})
}
