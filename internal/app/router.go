package app

import (
	"cardofun_backend/internal/config"
	"cardofun_backend/internal/middleware"
	"cardofun_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	api.GET("/health", c.health.HealthCheck)

	authGroup := api.Group("")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/ws", c.ws.HandleWS)
		authGroup.GET("/users", c.user.GetUsers)
		authGroup.GET("/users/:userId", c.user.GetUser)
	}

	// everything below acts on behalf of :userId, which must be the caller
	self := authGroup.Group("/users/:userId")
	self.Use(middleware.PathIdentityMiddleware())
	{
		self.GET("/friends", c.user.GetFriends)
		self.POST("/friends/:targetId", c.user.SendFriendRequest)
		self.PUT("/friends/:targetId", c.user.RespondFriendRequest)

		self.GET("/messages/dialogues", c.message.GetDialogues)
		self.GET("/messages/thread/:secondUserId", c.message.GetThread)
		self.GET("/messages/:id", c.message.GetMessage)
		self.POST("/messages", c.message.CreateMessage)
	}
}
