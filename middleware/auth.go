package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// HeaderAPIKey - заголовок с ключом доступа к закрытым маршрутам
const HeaderAPIKey = "X-API-Key"

// Маршруты, доступные агентам без ключа
var publicRoutes = []string{
	"/api/v1/ocsp",
	"/api/v1/crl",
	"/api/v1/ca",
	"/api/v1/certificate_request",
	"/metrics",
}

// AuthMiddleware пропускает запросы к публичным маршрутам, остальные только
// с ключом apiKey. Пустой apiKey закрывает все непубличные маршруты
func AuthMiddleware(apiKey string) fiber.Handler {
	return func(c fiber.Ctx) error {
		path := c.Path()
		for _, route := range publicRoutes {
			if path == route || strings.HasPrefix(path, route+"/") {
				return c.Next()
			}
		}

		key := c.Get(HeaderAPIKey)
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			slog.Warn("Auth: Отказано в доступе", "path", path, "ip", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "Требуется ключ доступа",
			})
		}

		return c.Next()
	}
}
