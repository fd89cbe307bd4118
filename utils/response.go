package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the gateway's error envelope.
type ErrorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Error codes used in API responses
const (
	CodeBadRequest    = "BAD_REQUEST_ERROR"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeNotFound      = "NOT_FOUND"
	CodeInternalError = "INTERNAL_ERROR"
)

// Error sends an error response in the gateway envelope {error: {code, description}}
func Error(c *gin.Context, statusCode int, code, description string) {
	c.JSON(statusCode, gin.H{
		"error": ErrorBody{
			Code:        code,
			Description: description,
		},
	})
}

// BadRequest sends a 400 Bad Request response
func BadRequest(c *gin.Context, description string) {
	Error(c, http.StatusBadRequest, CodeBadRequest, description)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(c *gin.Context, description string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, description)
}

// NotFound sends a 404 Not Found response
func NotFound(c *gin.Context, description string) {
	Error(c, http.StatusNotFound, CodeNotFound, description)
}

// InternalServerError sends a 500 Internal Server Error response
func InternalServerError(c *gin.Context, description string) {
	Error(c, http.StatusInternalServerError, CodeInternalError, description)
}
