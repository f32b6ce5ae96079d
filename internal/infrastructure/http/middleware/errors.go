package middleware

import (
	"errors"
	"net/http"

	"github.com/apascualco/careway/internal/domain"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func AbortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Status:  "error",
		Error:   code,
		Message: message,
	})
}

// AbortWithGatewayError maps err onto a JSON error response. Errors that
// carry no GatewayError become 500 without exposing their text.
func AbortWithGatewayError(c *gin.Context, err error) {
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		AbortWithError(c, gwErr.Status, gwErr.Code, gwErr.Message)
		return
	}
	_ = c.Error(err)
	AbortWithError(c, http.StatusInternalServerError, "internal_error", "Internal Server Error")
}
