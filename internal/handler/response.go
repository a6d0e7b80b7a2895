package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Results *int        `json:"results,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

// NewListResponse reports the number of items next to them.
func NewListResponse[T any](items []T) *Response {
	n := len(items)
	return &Response{
		Status:  "success",
		Results: &n,
		Data:    items,
	}
}

func NewMessageResponse(message string) *Response {
	return &Response{
		Status:  "success",
		Message: message,
	}
}

// BindJSON decodes the body into obj. On failure the error is pushed for the
// error middleware and false is returned.
func BindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		_ = c.Error(apperrors.BadRequest("Request body is required", err))
	case errors.As(err, &maxErr):
		_ = c.Error(apperrors.BadRequest("Request body is too large", err))
	default:
		_ = c.Error(apperrors.BadRequest("Invalid request body: "+err.Error(), err))
	}
	return false
}

// BindQuery decodes query parameters into obj.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		_ = c.Error(apperrors.BadRequest("Invalid query: "+err.Error(), err))
		return false
	}
	return true
}

// ParamUUID parses a path parameter. A malformed id reads as not found.
func ParamUUID(c *gin.Context, name, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		_ = c.Error(apperrors.NotFound(resource, err))
		return uuid.Nil, false
	}
	return id, true
}
