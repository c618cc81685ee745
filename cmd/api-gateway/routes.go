package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/geoattend-api/api/swagger"
	"github.com/noah-isme/geoattend-api/internal/handler"
	"github.com/noah-isme/geoattend-api/internal/middleware"
	"github.com/noah-isme/geoattend-api/internal/models"
	"github.com/noah-isme/geoattend-api/pkg/config"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

type routeHandlers struct {
	auth       *handler.AuthHandler
	classes    *handler.ClassHandler
	enrollment *handler.EnrollmentHandler
	attendance *handler.AttendanceHandler
	metrics    *handler.MetricsHandler
	tokens     tokenValidator
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h routeHandlers) {
	r.GET("/health", h.metrics.Health)
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, h.metrics.Prometheus)
		r.GET(path+"/summary", h.metrics.Summary)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	authed := middleware.JWT(h.tokens)
	teacher := middleware.RequireRoles(models.RoleTeacher)
	student := middleware.RequireRoles(models.RoleStudent)

	auth := api.Group("/auth")
	auth.POST("/signup", h.auth.Signup)
	auth.POST("/login", h.auth.Login)
	auth.POST("/refresh", h.auth.Refresh)
	auth.POST("/logout", authed, h.auth.Logout)
	auth.POST("/change-password", authed, h.auth.ChangePassword)
	auth.GET("/me", authed, h.auth.Me)

	classes := api.Group("/classes", authed)
	classes.GET("", teacher, h.classes.List)
	classes.POST("", teacher, h.classes.Create)
	classes.GET("/:id", h.classes.Get)
	classes.PUT("/:id", teacher, h.classes.Update)
	classes.GET("/:id/students", teacher, h.classes.Students)
	classes.POST("/:id/check-in", student, h.attendance.CheckIn)
	classes.GET("/:id/attendance", teacher, h.attendance.ClassAttendance)
	classes.GET("/:id/attendance/report", teacher, h.attendance.ClassReport)
	classes.GET("/:id/attendance/export", teacher, h.attendance.ExportClassReport)

	enrollments := api.Group("/enrollments", authed, student)
	enrollments.POST("", h.enrollment.Join)
	enrollments.GET("", h.enrollment.List)

	attendance := api.Group("/attendance", authed, student)
	attendance.GET("/me", h.attendance.MyHistory)
	attendance.GET("/me/summary", h.attendance.MySummary)
	attendance.POST("/:id/check-out", h.attendance.CheckOut)
}
