package response

import (
	"github.com/gin-gonic/gin"

	"github.com/parlorchat/parlor-backend/internal/platform/apierr"
)

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func RespondOK(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// RespondError maps the error to its HTTP status and writes the
// standard envelope. The public message is intentionally generic for
// 5xx errors.
func RespondError(c *gin.Context, err error) {
	status := apierr.StatusCode(err)
	code := apierr.CodeOf(err)

	message := err.Error()
	if status >= 500 {
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, errorEnvelope{
		Error: errorBody{Message: message, Code: code},
	})
}
