package review

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/review"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type Handler struct {
	svc  *review.Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc *review.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reviews := r.Group("/reviews")
	reviews.GET("", h.List)

	patient := reviews.Group("", h.auth.Authenticate(), h.auth.RequireRole(model.RolePatient))
	{
		patient.POST("", h.Create)
		patient.PATCH("/:id", h.Update)
		patient.DELETE("/:id", h.Delete)
	}
}

type listQuery struct {
	Doctor string `form:"doctor"`
	model.Pagination
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	filter := &model.ReviewFilter{Pagination: q.Pagination}
	if q.Doctor != "" {
		doctorID, err := uuid.Parse(q.Doctor)
		if err != nil {
			_ = c.Error(apperrors.BadRequest("doctor must be a valid id", err))
			return
		}
		filter.DoctorID = &doctorID
	}
	reviews, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(reviews))
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateReviewRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	created, err := h.svc.Create(c.Request.Context(), middleware.CurrentAccount(c).ID, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

// Update never moves a review to another doctor; the doctor field is not
// part of the request.
func (h *Handler) Update(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id", "review")
	if !ok {
		return
	}
	var req model.UpdateReviewRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	updated, err := h.svc.Update(c.Request.Context(), middleware.CurrentAccount(c).ID, id, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id", "review")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentAccount(c).ID, id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
