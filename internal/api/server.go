// Package api serves the bot's operational HTTP surface: a health check and
// the Prometheus metrics endpoint.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

// Server is the operational HTTP server.
type Server struct {
	echo *echo.Echo
	port int
}

// NewServer wires the health and metrics routes.
func NewServer(port int, metricsHandler http.Handler) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})
	e.GET("/metrics", echo.WrapHandler(metricsHandler))

	return &Server{
		echo: e,
		port: port,
	}
}

// Start begins serving in the background. The bot's control loop owns the
// foreground.
func (s *Server) Start() {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
