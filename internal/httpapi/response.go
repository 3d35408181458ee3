package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/littlewriters/credits-service/internal/domain/credits"
)

// envelope is the tri-state response shape every route returns: a success
// flag, a human-readable message, and a payload or null.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func ok(ctx *gin.Context, message string, data any) {
	ctx.JSON(http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func fail(ctx *gin.Context, err error) {
	ctx.JSON(statusFor(err), envelope{Success: false, Message: messageFor(err)})
}

func statusFor(err error) int {
	switch credits.KindOf(err) {
	case credits.KindNotFound:
		return http.StatusNotFound
	case credits.KindInvalidInput:
		return http.StatusBadRequest
	case credits.KindConflict:
		return http.StatusConflict
	case credits.KindInconsistency:
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

// messageFor keeps store details out of client responses: coded messages are
// safe to show, anything else collapses to a generic failure.
func messageFor(err error) string {
	var ce *credits.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return "operation failed, please retry"
}
