package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesisdesk/thesisdesk-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondOK(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// RespondError maps any error onto the JSON error envelope. Unknown
// errors are reported as persistence failures without leaking internals.
func RespondError(c *gin.Context, err error) {
	ae := apierr.From(err)
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := ae.Error()
	if status >= http.StatusInternalServerError {
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{
		Message: message,
		Code:    ae.Code,
	}})
}
