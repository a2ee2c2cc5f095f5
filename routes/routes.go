package routes

import (
	"github.com/addspin/tlsca/ca"
	Controllers "github.com/addspin/tlsca/controllers"
	"github.com/addspin/tlsca/middleware"
	"github.com/addspin/tlsca/ocsp"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup регистрирует маршруты сервера УЦ
func Setup(app *fiber.App, authority *ca.Authority, responder *ocsp.Responder, apiKey, digest string) {
	app.Use(middleware.AuthMiddleware(apiKey))

	app.Post("/api/v1/ocsp", Controllers.HandleOCSP(responder))
	app.Get("/api/v1/ocsp/*", Controllers.HandleOCSP(responder))
	app.Get("/api/v1/crl", Controllers.GetCRL(authority))
	app.Get("/api/v1/ca", Controllers.GetCACertificate(authority))
	app.Put("/api/v1/certificate_request/:name", Controllers.SubmitCertificateRequest(authority))

	app.Get("/certs", Controllers.CertsController(authority, digest))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
