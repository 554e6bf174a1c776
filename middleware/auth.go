package middleware

import (
	"context"
	"strings"
	"time"

	"schoolreports_go/config"
	"schoolreports_go/database"
	"schoolreports_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

const blacklistPrefix = "blacklist:jwt:"

type Claims struct {
	TeacherID uint   `json:"teacher_id"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for a teacher
func GenerateToken(t *models.Teacher) (string, error) {
	now := time.Now()
	claims := &Claims{
		TeacherID: t.ID,
		Phone:     t.Phone,
		Role:      t.RoleSlug(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(config.AppConfig.JWTExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ParseToken validates tokenString and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>", falling back to the
// token query parameter used by websocket clients.
func BearerToken(c *fiber.Ctx) string {
	if h := c.Get("Authorization"); h != "" {
		if tok := strings.TrimPrefix(h, "Bearer "); tok != h {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return c.Query("token")
}

// BlacklistToken revokes tokenString until it would have expired anyway.
func BlacklistToken(tokenString string, ttl time.Duration) error {
	rc := database.GetRedisClient()
	if rc == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = config.AppConfig.JWTExpiresIn
	}
	return rc.Set(context.Background(), blacklistPrefix+tokenString, "1", ttl).Err()
}

func isBlacklisted(tokenString string) bool {
	rc := database.GetRedisClient()
	if rc == nil {
		return false
	}
	n, err := rc.Exists(context.Background(), blacklistPrefix+tokenString).Result()
	if err != nil {
		logrus.WithError(err).Warn("token blacklist lookup failed")
		return false
	}
	return n > 0
}

// JWTMiddleware validates JWT tokens
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := BearerToken(c)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization token",
			})
		}

		claims, err := ParseToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}
		if isBlacklisted(tokenString) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token has been revoked",
			})
		}

		// Verify teacher still exists and is active
		var teacher models.Teacher
		if err := database.DB.Preload("Role").
			Where("id = ? AND is_active = ?", claims.TeacherID, true).
			First(&teacher).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "User not found or inactive",
			})
		}

		c.Locals("user", &teacher)
		c.Locals("claims", claims)
		c.Locals("token", tokenString)
		return c.Next()
	}
}

// RequireManager allows superusers and holders of the manager role.
func RequireManager() fiber.Handler {
	return requireTeacher(func(t *models.Teacher) bool {
		return t.IsSuperuser || t.RoleSlug() == models.RoleManager
	})
}

// RequireStaff allows teachers flagged is_staff.
func RequireStaff() fiber.Handler {
	return requireTeacher(func(t *models.Teacher) bool {
		return t.IsStaff || t.IsSuperuser
	})
}

// RequireStaffOrOfficer allows staff and officers of an active department.
func RequireStaffOrOfficer(isOfficer func(*models.Teacher) bool) fiber.Handler {
	return requireTeacher(func(t *models.Teacher) bool {
		return t.IsStaff || t.IsSuperuser || isOfficer(t)
	})
}

func requireTeacher(ok func(*models.Teacher) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		t, err := GetCurrentUser(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing user",
			})
		}
		if !ok(t) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "ليس لديك صلاحية للوصول إلى هذه الصفحة",
			})
		}
		return c.Next()
	}
}

// GetCurrentUser returns the current authenticated teacher
func GetCurrentUser(c *fiber.Ctx) (*models.Teacher, error) {
	t, ok := c.Locals("user").(*models.Teacher)
	if !ok || t == nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "User not found in context")
	}
	return t, nil
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}
