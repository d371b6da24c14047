package controller

import (
	"cardofun_backend/internal/util"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewHealthController(db *gorm.DB, rdb *redis.Client) *HealthController {
	return &HealthController{DB: db, Redis: rdb}
}

func (ctrl *HealthController) HealthCheck(c *gin.Context) {
	sqlDB, err := ctrl.DB.DB()
	if err != nil {
		util.InternalServerError(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		util.Error(c, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	components := gin.H{"database": "up"}
	if ctrl.Redis != nil {
		if err := ctrl.Redis.Ping(ctx).Err(); err != nil {
			util.Error(c, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
		components["redis"] = "up"
	}

	util.Success(c, gin.H{
		"status":     "ok",
		"components": components,
	})
}
