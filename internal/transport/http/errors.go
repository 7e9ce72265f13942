package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shopit/backend/internal/apperrors"
	"github.com/shopit/backend/internal/logging"
)

type errorResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ErrorHandler is the single place errors become responses. Service errors
// carry their kind; everything unclassified is a 500 with a generic body so
// internals never leak.
func ErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal error"

		var he *echo.HTTPError
		var ae *apperrors.Error
		switch {
		case errors.As(err, &he):
			status = he.Code
			message = fmt.Sprintf("%v", he.Message)
		case errors.As(err, &ae):
			status = apperrors.HTTPStatus(ae)
			message = ae.Message
		}

		if status >= 500 {
			logging.FromContext(c.Request().Context()).Error("unhandled error", "error", err)
			message = "internal error"
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, errorResponse{Message: message, Success: false})
	}
}
