package main

import (
	"drone-dispatch/internal/middleware"
)

func (a *AppContext) setupRoutes() {
	r := a.Router

	// ── Global Middleware (outermost → innermost) ──
	r.Use(middleware.Logger())                 // 1. Request logging
	r.Use(middleware.Recovery())               // 2. Panic recovery
	r.Use(middleware.RateLimit(a.RateLimiter)) // 3. Per-IP rate limiting
	r.Use(middleware.Auth(a.JWTService))       // 4. JWT auth (skips /auth/token)

	// ── Health (no auth, no rate limit) ──
	r.GET("/health", a.healthCheck)

	// ── Auth ──
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/token", a.AuthHandler.GenerateToken)
	}

	// ── Customer Routes (role: customer) ──
	customerGroup := r.Group("")
	customerGroup.Use(middleware.RoleGuard("customer"))
	customerGroup.Use(middleware.Bulkhead(a.Config.Bulkhead.TrackingPool))
	{
		customerGroup.GET("/tracking/:orderId", a.TrackingHandler.GetTracking)
	}

	// ── Service Routes (role: service, order-service callbacks) ──
	serviceGroup := r.Group("/internal")
	serviceGroup.Use(middleware.RoleGuard("service"))
	serviceGroup.Use(middleware.Bulkhead(a.Config.Bulkhead.MutationPool))
	serviceGroup.Use(middleware.Idempotency(a.IdempotencyStore))
	{
		serviceGroup.POST("/orders/:orderId/confirm-delivery", a.DispatchHandler.ConfirmDelivery)
		serviceGroup.POST("/orders/:orderId/cancel-assignment", a.DispatchHandler.CancelAssignment)
	}

	// ── Admin Routes (role: admin) ──
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.RoleGuard("admin"))
	adminGroup.Use(middleware.Bulkhead(a.Config.Bulkhead.AdminPool))
	{
		adminGroup.POST("/drones", a.AdminHandler.CreateDrone)
		adminGroup.GET("/drones", a.AdminHandler.ListDrones)
		adminGroup.GET("/drones/:id", a.AdminHandler.GetDrone)
		adminGroup.PATCH("/drones/:id", a.AdminHandler.UpdateDrone)
		adminGroup.POST("/drones/:id/activate", a.AdminHandler.ActivateDrone)
		adminGroup.POST("/drones/:id/disable", a.AdminHandler.DisableDrone)
		adminGroup.PATCH("/drones/:id/status", a.AdminHandler.UpdateDroneStatus)

		adminGroup.POST("/dispatch/sweep", a.DispatchHandler.TriggerSweep)
		adminGroup.POST("/dispatch/assign", a.DispatchHandler.AssignDrone)
		adminGroup.GET("/dispatch/assignments", a.DispatchHandler.ListAssignments)
		adminGroup.DELETE("/dispatch/assignments/:orderId", a.DispatchHandler.CancelAssignment)
	}
}
