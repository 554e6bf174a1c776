package controllers

import (
	"schoolreports_go/services"

	"github.com/gofiber/fiber/v2"
)

type HealthController struct {
	health *services.HealthService
}

func NewHealthController(health *services.HealthService) *HealthController {
	return &HealthController{health: health}
}

// Health reports dependency status; a critical result answers 503.
func (hc *HealthController) Health(c *fiber.Ctx) error {
	r := hc.health.Report()
	return c.Status(hc.health.HTTPStatus(r.Status)).JSON(r)
}

// Live only says the process is up.
func (hc *HealthController) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": services.HealthOK})
}
