package httpcontroller

import (
	"github.com/labstack/echo/v4"
)

// initRoutes registers all page, media and API routes.
func (s *Server) initRoutes() {
	h := s.Handlers
	limit := s.rateLimiter()

	// Pages
	s.Echo.GET("/", h.Index)
	s.Echo.GET("/register", h.RegisterForm)
	s.Echo.POST("/register", h.Register, limit)
	s.Echo.GET("/login", h.LoginForm)
	s.Echo.POST("/login", h.Login, limit)
	s.Echo.GET("/logout", h.Logout)
	s.Echo.GET("/predict", h.PredictForm)
	s.Echo.POST("/predict", h.Predict, limit)
	s.Echo.GET("/history", h.History, h.RequireLogin("Please log in to view your history"))
	s.Echo.GET("/dashboard", h.Dashboard, h.RequireLogin("Please log in to view dashboard"))
	s.Echo.GET("/view_result/:id", h.ViewResult)

	// Media
	s.Echo.GET("/view_result/:id/image", h.ResultImage)
	s.Echo.GET("/view_result/:id/thumbnail", h.ResultThumbnail)
	s.Echo.GET("/uploads/:name", h.ServeUpload)

	// Operations
	s.Echo.GET("/healthz", h.Health)
	if s.Settings.Observability.Enabled {
		s.Echo.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	// JSON API
	api := s.Echo.Group("/api/v1")
	api.POST("/predict", h.APIPredict, limit)
	api.GET("/history", h.APIHistory, h.RequireAPIUser)
	api.GET("/history/:id", h.APIHistoryItem, h.RequireAPIUser)
}
