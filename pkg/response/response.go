package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Error writes a flat JSON error body: {"error": msg, ...extra}.
func Error(c *gin.Context, status int, msg string, extra gin.H) {
	body := gin.H{"error": msg}
	for k, v := range extra {
		if k != "error" {
			body[k] = v
		}
	}
	c.JSON(status, body)
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	Error(c, http.StatusBadRequest, err, nil)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	Error(c, http.StatusUnauthorized, err, nil)
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	Error(c, http.StatusForbidden, err, nil)
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	Error(c, http.StatusNotFound, err, nil)
}

// Conflict sends 409.
func Conflict(c *gin.Context, err string) {
	Error(c, http.StatusConflict, err, nil)
}

// PayloadTooLarge sends 413.
func PayloadTooLarge(c *gin.Context, err string, limit int64) {
	Error(c, http.StatusRequestEntityTooLarge, err, gin.H{"maxBytes": limit})
}

// TooManyRequests sends 429 with a Retry-After header in whole seconds.
func TooManyRequests(c *gin.Context, err string, retryAfter time.Duration) {
	secs := int(retryAfter / time.Second)
	if retryAfter%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	Error(c, http.StatusTooManyRequests, err, gin.H{"retryAfter": secs})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	Error(c, http.StatusServiceUnavailable, err, nil)
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	Error(c, http.StatusInternalServerError, err, nil)
}
