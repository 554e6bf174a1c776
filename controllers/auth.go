package controllers

import (
	"time"

	"schoolreports_go/middleware"
	"schoolreports_go/models"
	"schoolreports_go/services"
	"schoolreports_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	teachers *services.TeacherService
	perms    *services.PermissionService
}

func NewAuthController(teachers *services.TeacherService, perms *services.PermissionService) *AuthController {
	return &AuthController{teachers: teachers, perms: perms}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates a teacher by phone and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	teacher, err := ac.teachers.Authenticate(req.Phone, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	token, err := middleware.GenerateToken(teacher)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}

	c.Locals("user", teacher)
	middleware.LogActivity(c, "LOGIN", "auth", teacher.ID, fiber.Map{"phone": teacher.Phone})

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
		"user":    profile(ac.perms, teacher),
	})
}

// Logout blacklists the current token for the rest of its lifetime.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	token, _ := c.Locals("token").(string)
	ttl := time.Duration(0)
	if claims, err := middleware.GetCurrentClaims(c); err == nil && claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if err := middleware.BlacklistToken(token, ttl); err != nil {
		logrus.WithError(err).Warn("token blacklist write failed")
	}
	if t := currentTeacher(c); t != nil {
		middleware.LogActivity(c, "LOGOUT", "auth", t.ID, nil)
	}
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// Me returns the current teacher with derived permission flags.
func (ac *AuthController) Me(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"user": profile(ac.perms, currentTeacher(c))})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	me := currentTeacher(c)
	if err := ac.teachers.ChangePassword(me, req.CurrentPassword, req.NewPassword); err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "UPDATE", "auth", me.ID, fiber.Map{"field": "password"})
	return c.JSON(fiber.Map{"message": "تم تغيير كلمة المرور"})
}

func profile(perms *services.PermissionService, teacher *models.Teacher) fiber.Map {
	return fiber.Map{
		"id":           teacher.ID,
		"name":         teacher.Name,
		"phone":        teacher.Phone,
		"role":         teacher.RoleSlug(),
		"is_staff":     teacher.IsStaff,
		"is_superuser": teacher.IsSuperuser,
		"is_manager":   perms.IsManager(teacher),
		"is_officer":   perms.IsOfficer(teacher),
	}
}
