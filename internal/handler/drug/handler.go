package drug

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/drug"
)

type Handler struct {
	svc  *drug.Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc *drug.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	drugs := r.Group("/drugs")
	drugs.GET("", middleware.CacheControl(300), h.List)
	drugs.GET("/:id", middleware.CacheControl(300), h.Get)

	admin := drugs.Group("", h.auth.Authenticate(), h.auth.RequireRole(model.RoleAdmin))
	{
		admin.POST("", h.Create)
		admin.PATCH("/:id", h.Update)
		admin.DELETE("/:id", h.Delete)
	}
}

func (h *Handler) List(c *gin.Context) {
	var filter model.DrugFilter
	if !handler.BindQuery(c, &filter) {
		return
	}
	drugs, err := h.svc.List(c.Request.Context(), &filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(drugs))
}

func (h *Handler) Get(c *gin.Context) {
	found, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(found))
}

type createRequest struct {
	Name     string `json:"name" binding:"required"`
	Image    string `json:"image"`
	Category string `json:"category" binding:"required"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	created, err := h.svc.Create(c.Request.Context(), &model.Drug{Name: req.Name, Image: req.Image, Category: req.Category})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) Update(c *gin.Context) {
	var req model.UpdateDrugRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	updated, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
