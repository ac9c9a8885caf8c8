package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Session, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := router.Group("/api")

	if cfg.Engine != nil {
		syncController := NewSyncController(cfg)
		api.GET("/status", syncController.Status)
		api.POST("/sync", syncController.Sync)
		if cfg.Queue != nil {
			api.GET("/queue", syncController.Queue)
		}
		if cfg.Notices != nil {
			api.GET("/activity", syncController.Activity)
		}
	}

	if cfg.Session != nil {
		sessionController := NewSessionController(cfg.Session, cfg.OnLogin)
		api.POST("/session", sessionController.Login)
		api.DELETE("/session", sessionController.Logout)
	}

	if cfg.Records != nil {
		rc := NewRecordsController(cfg.Records)

		api.GET("/patients", rc.ListPatients)
		api.POST("/patients", rc.CreatePatient)
		api.GET("/patients/:id", rc.GetPatient)
		api.PATCH("/patients/:id", rc.UpdatePatient)
		api.DELETE("/patients/:id", rc.DeletePatient)

		api.GET("/treatment-plans", rc.ListPlans)
		api.POST("/treatment-plans", rc.CreatePlan)
		api.GET("/treatment-plans/:id", rc.GetPlan)
		api.PATCH("/treatment-plans/:id", rc.UpdatePlan)
		api.DELETE("/treatment-plans/:id", rc.DeletePlan)

		api.GET("/plan-steps", rc.ListSteps)
		api.POST("/plan-steps", rc.CreateStep)
		api.GET("/plan-steps/:id", rc.GetStep)
		api.PATCH("/plan-steps/:id", rc.UpdateStep)
		api.DELETE("/plan-steps/:id", rc.DeleteStep)
	}

	return router
}
