package account

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/account"
)

type Handler struct {
	svc        *account.Service
	auth       *middleware.AuthMiddleware
	cookieName string
}

func NewHandler(svc *account.Service, authMW *middleware.AuthMiddleware, cookieName string) *Handler {
	return &Handler{svc: svc, auth: authMW, cookieName: cookieName}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/doctors", h.ListDoctors)
		users.GET("/doctors/:id", h.GetDoctor)
	}

	me := users.Group("/me", h.auth.Authenticate(), middleware.NoStore())
	{
		me.GET("", h.GetMe)
		me.PATCH("", middleware.FilterBody(middleware.ProtectedFields...), h.UpdateMe)
		me.DELETE("", h.DeleteMe)
		me.PATCH("/doctor", h.auth.RequireRole(model.RoleDoctor),
			middleware.FilterBody(middleware.ProtectedFields...), h.UpdateDoctorOptions)
	}

	admin := users.Group("", h.auth.Authenticate(), h.auth.RequireRole(model.RoleAdmin), middleware.NoStore())
	{
		admin.POST("", h.Create)
		admin.GET("", h.List)
		admin.GET("/:id", h.Get)
	}
}

type doctorQuery struct {
	Specification string `form:"specification"`
	model.Pagination
}

func (h *Handler) ListDoctors(c *gin.Context) {
	var q doctorQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	doctors, err := h.svc.ListDoctors(c.Request.Context(), q.Specification, q.Pagination)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(doctors))
}

func (h *Handler) GetDoctor(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id", "doctor")
	if !ok {
		return
	}
	doctor, err := h.svc.GetDoctor(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(doctor))
}

func (h *Handler) GetMe(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(middleware.CurrentAccount(c)))
}

func (h *Handler) UpdateMe(c *gin.Context) {
	var req model.UpdateMeRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	updated, err := h.svc.UpdateMe(c.Request.Context(), middleware.CurrentAccount(c), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}

// DeleteMe deactivates the account and ends the cookie session.
func (h *Handler) DeleteMe(c *gin.Context) {
	if err := h.svc.Deactivate(c.Request.Context(), middleware.CurrentAccount(c).ID); err != nil {
		_ = c.Error(err)
		return
	}
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (h *Handler) UpdateDoctorOptions(c *gin.Context) {
	var req model.UpdateDoctorRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	updated, err := h.svc.UpdateDoctorOptions(c.Request.Context(), middleware.CurrentAccount(c), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateAccountRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	created, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

type listQuery struct {
	Role model.Role `form:"role"`
	model.Pagination
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	accounts, err := h.svc.List(c.Request.Context(), &model.AccountFilter{Role: q.Role, Pagination: q.Pagination})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(accounts))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id", "account")
	if !ok {
		return
	}
	found, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(found))
}
