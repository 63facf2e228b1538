// Package response defines the JSON envelope shared by every endpoint.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the success envelope.
type APIResponse struct {
	Data    any    `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
}

// APIError is the error envelope.
type APIError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
}

func pathOf(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().URL.Path
}

func send(c echo.Context, status int, data any, message string) error {
	return c.JSON(status, APIResponse{
		Data:    data,
		Status:  status,
		Message: message,
		Path:    pathOf(c),
	})
}

// OK sends a 200 envelope with data.
func OK(c echo.Context, data any, message string) error {
	return send(c, http.StatusOK, data, message)
}

// Accepted sends a 202 envelope; used by the ingestion path.
func Accepted(c echo.Context, data any, message string) error {
	return send(c, http.StatusAccepted, data, message)
}

// Error sends an error envelope with the given status.
func Error(c echo.Context, status int, message, errDetail string) error {
	return c.JSON(status, APIError{
		Message: message,
		Error:   errDetail,
		Path:    pathOf(c),
		Status:  status,
	})
}

// BadRequest sends a 400 envelope.
func BadRequest(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusBadRequest, message, errDetail)
}

// NotFound sends a 404 envelope.
func NotFound(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusNotFound, message, errDetail)
}

// InternalError sends a 500 envelope.
func InternalError(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusInternalServerError, message, errDetail)
}
