package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roadops/operator-console/internal/console"
	"github.com/roadops/operator-console/internal/dispatcher"
	"github.com/roadops/operator-console/internal/geo"
	"github.com/roadops/operator-console/internal/path"
)

// Response is the envelope of every API reply.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// SuccessResponse creates a success envelope.
func SuccessResponse(message string, data any) Response {
	return Response{Status: "success", Message: message, Data: data}
}

// ErrorResponse creates an error envelope.
func ErrorResponse(message string) Response {
	return Response{Status: "error", Message: message}
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, path.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, path.ErrTooFewPoints), errors.Is(err, geo.ErrTooFewPoints):
		return http.StatusUnprocessableEntity
	case errors.Is(err, path.ErrPointNotFound),
		errors.Is(err, console.ErrUnknownScenario),
		errors.Is(err, dispatcher.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, path.ErrInvalidOutcome),
		errors.Is(err, geo.ErrInvalidCoordinates),
		errors.Is(err, console.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, dispatcher.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler replies with the error envelope. Domain failures are the
// operator's to fix and are logged at info; anything unmapped is an error.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := StatusFor(err)
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Error("Unhandled error occurred",
				"path", c.Request().URL.Path,
				"error", err)
			msg = "An unexpected internal error occurred."
		} else {
			logger.Info("Error handled",
				"path", c.Request().URL.Path,
				"status_code", code,
				"error", err)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, ErrorResponse(msg))
		}
		if werr != nil {
			logger.Error("Error writing error response", "error", werr)
		}
	}
}
