package controllers

import (
	"strconv"

	"schoolreports_go/middleware"
	"schoolreports_go/services"

	"github.com/gofiber/fiber/v2"
)

type RoleController struct {
	roles *services.RoleService
}

func NewRoleController(roles *services.RoleService) *RoleController {
	return &RoleController{roles: roles}
}

// optionalBool reads a tri-state query flag: absent or unparsable means no filter.
func optionalBool(c *fiber.Ctx, key string) *bool {
	v, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return nil
	}
	return &v
}

// List supports ?q=, ?is_active=, ?is_staff_by_default= and ?can_view_all_reports=.
func (rc *RoleController) List(c *fiber.Ctx) error {
	roles, err := rc.roles.List(services.RoleFilter{
		Q:                 c.Query("q"),
		IsActive:          optionalBool(c, "is_active"),
		IsStaffByDefault:  optionalBool(c, "is_staff_by_default"),
		CanViewAllReports: optionalBool(c, "can_view_all_reports"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"roles": roles})
}

func (rc *RoleController) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	role, err := rc.roles.Get(id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"role": role})
}

func (rc *RoleController) Create(c *fiber.Ctx) error {
	var in services.RoleInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	role, err := rc.roles.Create(in)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "roles", role.ID, fiber.Map{"slug": role.Slug})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"role": role})
}

func (rc *RoleController) Update(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.RoleInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	role, err := rc.roles.Update(id, in)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "UPDATE", "roles", role.ID, fiber.Map{
		"is_staff_by_default":  role.IsStaffByDefault,
		"can_view_all_reports": role.CanViewAllReports,
		"is_active":            role.IsActive,
	})
	return c.JSON(fiber.Map{"role": role})
}
