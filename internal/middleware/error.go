package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Fields    []string `json:"fields,omitempty"`
	Error     string   `json:"error,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

func statusText(code int) string {
	if code >= http.StatusInternalServerError {
		return "error"
	}
	return "fail"
}

// ErrorHandler turns the last error pushed with c.Error into the response.
// Operational errors keep their message; anything else is reported as a
// generic 500. In development the underlying error is included.
func ErrorHandler(development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		last := c.Errors.Last().Err

		resp := ErrorResponse{RequestID: requestID, Message: "Something went wrong"}
		code := http.StatusInternalServerError
		if appErr, ok := apperrors.As(last); ok {
			code = appErr.StatusCode()
			if appErr.Message != "" {
				resp.Message = appErr.Message
			}
			resp.Fields = appErr.Fields
		}
		resp.Status = statusText(code)
		if development {
			resp.Error = last.Error()
		}

		event := log.Warn()
		if code >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.Err(last).
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", code).
			Msg("Request failed")

		if c.Writer.Written() {
			return
		}
		c.JSON(code, resp)
	}
}

// NotFound answers unknown routes through the same error shape.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		_ = c.Error(apperrors.NotFound("route "+c.Request.URL.Path, nil))
	}
}
