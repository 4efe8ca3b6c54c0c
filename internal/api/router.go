package api

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/zaphost/gateway/internal/api/handler"
	"github.com/zaphost/gateway/internal/api/middleware"
	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
	"github.com/zaphost/gateway/internal/infrastructure/http/handlers"
)

// Deps is everything the router needs to serve requests.
type Deps struct {
	Auth          ports.AuthService
	Tokens        ports.TokenVerifier
	Validator     ports.CredentialValidator
	Credentials   ports.CredentialService
	Sessions      ports.SessionService
	Messaging     ports.MessagingService
	Readiness     []handlers.Dependency
	WebhookSecret string
	Log           zerolog.Logger
	// Registerer receives the HTTP metrics. Defaults to the global registry.
	Registerer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization,
			middleware.HeaderSecretToken, handler.HeaderIdempotencyKey,
		},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:                 "zaphost",
		Registerer:                d.Registerer,
		DoNotUseRequestPathFor404: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.Auth, d.WebhookSecret)
	apiKeyHandler := handler.NewAPIKeyHandler(d.Credentials)
	projectHandler := handler.NewProjectHandler(d.Credentials)
	whatsappHandler := handler.NewWhatsAppHandler(d.Sessions, d.Log)
	publicHandler := handler.NewPublicAPIHandler(d.Sessions, d.Messaging)

	identity := middleware.Identity(d.Tokens)
	gated := middleware.GatedIdentity(d.Validator)
	bearer := middleware.Bearer(d.Validator)
	apiCredential := middleware.APICredential(d.Validator)

	// --- Accounts ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.POST("/user/select-plan", authHandler.SelectPlan, identity)
	e.POST("/payment/verify", authHandler.VerifyPayment)

	// --- Credentials: listing and revocation stay open after the trial ---
	e.GET("/apikeys", apiKeyHandler.List, identity)
	e.POST("/apikeys", apiKeyHandler.Create, gated)
	e.DELETE("/apikeys/:id", apiKeyHandler.Revoke, identity)

	e.GET("/projects", projectHandler.List, identity)
	e.POST("/projects", projectHandler.Create, gated)
	e.DELETE("/projects/:id", projectHandler.Revoke, identity)

	// --- WhatsApp session (dashboard) ---
	wa := e.Group("/whatsapp", bearer)
	wa.POST("/connect", whatsappHandler.Connect)
	wa.GET("/status", whatsappHandler.Status)
	wa.GET("/qr.png", whatsappHandler.QRImage)
	wa.POST("/disconnect", whatsappHandler.Disconnect, middleware.RequireScheme(domain.SchemeIdentityToken))

	// --- Public API ---
	v1 := e.Group("/v1", apiCredential)
	v1.GET("/status", publicHandler.Status)
	v1.POST("/send-message", publicHandler.SendMessage)

	// --- Operations (no auth required) ---
	e.GET("/health", handlers.NewHealthHandler().Liveness)
	e.GET("/health/ready", handlers.NewReadinessHandler(d.Readiness...).Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger feeds echo's request log into zerolog. Handler errors are
// passed to the error handler first so the logged status is the one sent.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		HandleError:  true,
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Status >= http.StatusInternalServerError {
				evt = log.Error().Err(v.Error)
			}
			evt.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("path", v.URIPath).
				Str("route", v.RoutePath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
