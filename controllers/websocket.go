package controllers

import (
	"schoolreports_go/database"
	"schoolreports_go/middleware"
	"schoolreports_go/models"
	"schoolreports_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{hub: hub}
}

// Upgrade authenticates the ?token= JWT before the protocol switch and stores the teacher id.
func (wsc *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	claims, err := middleware.ParseToken(middleware.BearerToken(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	var teacher models.Teacher
	if err := database.DB.Select("id").Where("id = ? AND is_active = ?", claims.TeacherID, true).First(&teacher).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found or inactive"})
	}
	c.Locals("teacher_id", teacher.ID)
	return c.Next()
}

// Handler attaches the connection to the hub.
func (wsc *WebSocketController) Handler() fiber.Handler {
	return fiberws.New(func(conn *fiberws.Conn) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("websocket handler panic")
			}
		}()
		teacherID, _ := conn.Locals("teacher_id").(uint)
		if teacherID == 0 {
			conn.Close()
			return
		}
		logrus.WithField("teacher_id", teacherID).Debug("websocket connected")
		wsc.hub.ServeFiberWS(conn, teacherID)
	})
}

func (wsc *WebSocketController) Stats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"connected_clients": wsc.hub.ClientCount()})
}
