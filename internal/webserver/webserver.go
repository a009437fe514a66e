// Package webserver hosts the echo HTTP server and the route registry used
// by API controllers.
package webserver

import (
	"fmt"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/waplex/waplex/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dbContextKey = "waplex_db"

type WebServer struct {
	root *echo.Echo
	api  *echo.Group
	cfg  *config.AppConfig
}

var server *WebServer

// Init builds the server: recovery + logging middleware, a DB-injection
// middleware, an open route group and a JWT-protected /api group.
func Init(cfg *config.AppConfig, db *gorm.DB) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			zap.L().Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(dbContextKey, db)
			return next(c)
		}
	})

	api := e.Group("/api")
	api.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(cfg.Web.JwtSecret),
		TokenLookup: "header:Authorization:Bearer ,query:token",
	}))

	server = &WebServer{root: e, api: api, cfg: cfg}
	return server
}

// GetDB returns the request-scoped database handle.
func GetDB(c echo.Context) *gorm.DB {
	return c.Get(dbContextKey).(*gorm.DB)
}

// Start serves until the listener fails or shuts down.
func (s *WebServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Web.Host, s.cfg.Web.Port)
	zap.L().Info("webserver listening", zap.String("addr", addr))
	err := s.root.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Echo exposes the underlying echo instance (tests).
func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

// PubGET registers an unauthenticated route.
func PubGET(path string, h echo.HandlerFunc) {
	server.root.GET(path, h)
}

// PubPOST registers an unauthenticated route.
func PubPOST(path string, h echo.HandlerFunc) {
	server.root.POST(path, h)
}

// ApiGET registers a JWT-protected route under /api.
func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

// ApiPOST registers a JWT-protected route under /api.
func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

// ApiPUT registers a JWT-protected route under /api.
func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

// ApiDELETE registers a JWT-protected route under /api.
func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}
