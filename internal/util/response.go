package util

import (
	"cardofun_backend/pkg/logger"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

// SuccessPage writes the page items and mirrors the counts into the Pagination header.
func SuccessPage[T any](c *gin.Context, page *PagedResult[T]) {
	if meta, err := json.Marshal(page.Meta()); err == nil {
		c.Header(PaginationHeader, string(meta))
	}
	Success(c, page)
}

func Created(c *gin.Context, location string, data interface{}) {
	if location != "" {
		c.Header("Location", location)
	}
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// Unauthorized rejects without a body.
func Unauthorized(c *gin.Context) {
	c.AbortWithStatus(http.StatusUnauthorized)
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err), zap.String("path", c.FullPath()))
	InternalServerError(c)
}

// Fail renders err according to its kind.
func Fail(c *gin.Context, err error) {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrUnauthorized):
		Unauthorized(c)
	case errors.Is(err, ErrNotFound):
		NotFound(c)
	case errors.As(err, &ve):
		if ve.Err != nil {
			logger.Log.Warn("Request rejected", zap.String("reason", ve.Reason), zap.Error(ve.Err))
		}
		BadRequest(c, ve.Reason)
	default:
		LogInternalError(c, err)
	}
}
