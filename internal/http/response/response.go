package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/dcengine/internal/engine/command"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondResult writes a dispatch result with the status its kind maps to.
// Failed results still carry the full body so callers see every reason.
func RespondResult(c *gin.Context, res command.Result) {
	c.JSON(StatusFor(res.Kind), res)
}

func StatusFor(kind command.Kind) int {
	switch kind {
	case command.KindNone:
		return http.StatusOK
	case command.KindUnknownAction:
		return http.StatusNotFound
	case command.KindInvalidParameters:
		return http.StatusBadRequest
	case command.KindAuthorizationDenied:
		return http.StatusForbidden
	case command.KindValidationRejected, command.KindQuotaExceeded, command.KindCanceled:
		return http.StatusConflict
	case command.KindSessionExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
