package controllers

import (
	"schoolreports_go/middleware"
	"schoolreports_go/models"
	"schoolreports_go/services"
	"schoolreports_go/utils"

	"github.com/gofiber/fiber/v2"
)

type DepartmentController struct {
	departments *services.DepartmentService
}

func NewDepartmentController(departments *services.DepartmentService) *DepartmentController {
	return &DepartmentController{departments: departments}
}

func (dc *DepartmentController) List(c *fiber.Ctx) error {
	depts, err := dc.departments.List()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"departments": depts})
}

// Get accepts a slug or a numeric id.
func (dc *DepartmentController) Get(c *fiber.Ctx) error {
	d, err := dc.departments.Get(c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	members, err := dc.departments.Members(d)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"department": d, "members": members})
}

func (dc *DepartmentController) Create(c *fiber.Ctx) error {
	var in services.DepartmentInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	d, err := dc.departments.Create(in)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "departments", d.ID, fiber.Map{"slug": d.Slug})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"department": d})
}

func (dc *DepartmentController) Update(c *fiber.Ctx) error {
	var in services.DepartmentInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	d, err := dc.departments.Update(c.Params("code"), in)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "UPDATE", "departments", d.ID, fiber.Map{"slug": d.Slug})
	return c.JSON(fiber.Map{"department": d})
}

func (dc *DepartmentController) Delete(c *fiber.Ctx) error {
	if err := dc.departments.Delete(c.Params("code")); err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "DELETE", "departments", 0, fiber.Map{"slug": c.Params("code")})
	return c.JSON(fiber.Map{"message": "تم حذف القسم"})
}

// Available lists active teachers that can still be added to the department.
func (dc *DepartmentController) Available(c *fiber.Ctx) error {
	d, err := dc.departments.Get(c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	teachers, err := dc.departments.AvailableTeachers(d)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]*utils.TeacherShort, 0, len(teachers))
	for i := range teachers {
		out = append(out, utils.ToTeacherShort(&teachers[i]))
	}
	return c.JSON(fiber.Map{"teachers": out})
}

type addMemberRequest struct {
	TeacherID uint   `json:"teacher_id" validate:"required"`
	RoleType  string `json:"role_type"`
}

func (dc *DepartmentController) AddMember(c *fiber.Ctx) error {
	d, err := dc.departments.Get(c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	m, err := dc.departments.AddMember(d, req.TeacherID, req.RoleType)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "department_members", d.ID, fiber.Map{"teacher_id": req.TeacherID, "role_type": m.RoleType})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"membership": m})
}

func (dc *DepartmentController) RemoveMember(c *fiber.Ctx) error {
	d, err := dc.departments.Get(c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	teacherID, err := paramID(c, "teacherId")
	if err != nil {
		return err
	}
	if err := dc.departments.RemoveMember(d, teacherID); err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "DELETE", "department_members", d.ID, fiber.Map{"teacher_id": teacherID})
	return c.JSON(fiber.Map{"message": "تمت إزالة العضو"})
}

// MembersJSON backs the assignee picker: ?department=<slug> → {"results":[{id,name}]}.
func (dc *DepartmentController) MembersJSON(c *fiber.Ctx) error {
	teachers, err := dc.departments.MembersBySlug(c.Query("department"))
	if err != nil {
		return respondError(c, err)
	}
	results := make([]utils.TeacherShort, 0, len(teachers))
	for _, t := range teachers {
		results = append(results, utils.TeacherShort{ID: t.ID, Name: t.Name})
	}
	return c.JSON(fiber.Map{"results": results})
}

// Statuses exposes the ticket status vocabulary for clients.
func (dc *DepartmentController) Statuses(c *fiber.Ctx) error {
	out := make([]fiber.Map, 0, len(models.TicketStatuses))
	for _, s := range models.TicketStatuses {
		out = append(out, fiber.Map{"value": s, "label": models.TicketStatusLabel(s)})
	}
	return c.JSON(fiber.Map{"statuses": out})
}
