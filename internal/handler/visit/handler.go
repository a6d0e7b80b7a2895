package visit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/visit"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc  *visit.Service
	auth *middleware.AuthMiddleware
	loc  *time.Location
}

// NewHandler takes the clinic location so date query parameters name clinic
// days.
func NewHandler(svc *visit.Service, authMW *middleware.AuthMiddleware, loc *time.Location) *Handler {
	return &Handler{svc: svc, auth: authMW, loc: loc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	visits := r.Group("/visits")
	visits.GET("/availability", middleware.CacheControl(30), h.Availability)

	protected := visits.Group("", h.auth.Authenticate(), middleware.NoStore())

	patient := protected.Group("", h.auth.RequireRole(model.RolePatient))
	{
		patient.POST("/patient", h.Book)
		patient.GET("/patient", h.ListForPatient)
		patient.GET("/:id/patient", h.GetForPatient)
		patient.PATCH("/:id/patient",
			middleware.FilterBody(append(middleware.ProtectedFields, middleware.VisitProtectedFields...)...),
			h.Reschedule)
		patient.DELETE("/:id/patient", h.Cancel)
	}

	staff := protected.Group("", h.auth.RequireRole(model.RoleDoctor, model.RoleSecretary))
	{
		staff.GET("/doctor", h.ListForDoctor)
		staff.GET("/doctor/today", h.Today)
		staff.PATCH("/:id/doctor/close-visit", h.Close)
	}

	protected.GET("/:id/prescription", h.Prescriptions)
	doctor := protected.Group("", h.auth.RequireRole(model.RoleDoctor))
	{
		doctor.PATCH("/:id/prescription", h.AddPrescriptions)
		doctor.DELETE("/:id/prescription/:prescriptionId", h.DeletePrescription)
	}
}

func (h *Handler) parseDate(c *gin.Context, value string) (time.Time, bool) {
	day, err := time.ParseInLocation(dateLayout, value, h.loc)
	if err != nil {
		_ = c.Error(apperrors.BadRequest("date must be formatted as YYYY-MM-DD", err))
		return time.Time{}, false
	}
	return day, true
}

func (h *Handler) Book(c *gin.Context) {
	var req model.BookVisitRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	booked, err := h.svc.Book(c.Request.Context(), middleware.CurrentAccount(c).ID, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(booked))
}

type listQuery struct {
	Closed *bool  `form:"closed"`
	Date   string `form:"date"`
	model.Pagination
}

func (h *Handler) filter(c *gin.Context) (*model.VisitFilter, bool) {
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return nil, false
	}
	filter := &model.VisitFilter{Closed: q.Closed, Pagination: q.Pagination}
	if q.Date != "" {
		day, ok := h.parseDate(c, q.Date)
		if !ok {
			return nil, false
		}
		next := day.AddDate(0, 0, 1)
		filter.From, filter.To = &day, &next
	}
	return filter, true
}

func (h *Handler) ListForPatient(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	visits, err := h.svc.ListForPatient(c.Request.Context(), middleware.CurrentAccount(c).ID, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(visits))
}

func (h *Handler) GetForPatient(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id", "visit")
	if !ok {
		return
	}
	found, err := h.svc.GetForPatient(c.Request.Context(), middleware.CurrentAccount(c).ID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(found))
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id", "visit")
	if !ok {
		return
	}
	var req model.RescheduleVisitRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	updated, err := h.svc.Reschedule(c.Request.Context(), middleware.CurrentAccount(c).ID, id, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id", "visit")
	if !ok {
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), middleware.CurrentAccount(c).ID, id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListForDoctor(c *gin.Context) {
	doctorID, err := visit.DoctorFor(middleware.CurrentAccount(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	visits, err := h.svc.ListForDoctor(c.Request.Context(), doctorID, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(visits))
}

func (h *Handler) Today(c *gin.Context) {
	doctorID, err := visit.DoctorFor(middleware.CurrentAccount(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	visits, err := h.svc.Today(c.Request.Context(), doctorID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(visits))
}

func (h *Handler) Close(c *gin.Context) {
	doctorID, err := visit.DoctorFor(middleware.CurrentAccount(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, ok := handler.ParamUUID(c, "id", "visit")
	if !ok {
		return
	}
	closed, err := h.svc.Close(c.Request.Context(), doctorID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(closed))
}

func (h *Handler) Prescriptions(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id", "visit")
	if !ok {
		return
	}
	items, err := h.svc.Prescriptions(c.Request.Context(), middleware.CurrentAccount(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(items))
}

func (h *Handler) AddPrescriptions(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id", "visit")
	if !ok {
		return
	}
	var req model.AddPrescriptionsRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	items, err := h.svc.AddPrescriptions(c.Request.Context(), middleware.CurrentAccount(c).ID, id, req.Prescriptions)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(items))
}

func (h *Handler) DeletePrescription(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id", "visit")
	if !ok {
		return
	}
	prescriptionID, ok := handler.ParamUUID(c, "prescriptionId", "prescription")
	if !ok {
		return
	}
	if err := h.svc.DeletePrescription(c.Request.Context(), middleware.CurrentAccount(c).ID, id, prescriptionID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Availability(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Query("doctor"))
	if err != nil {
		_ = c.Error(apperrors.MissingFields("doctor"))
		return
	}
	day, ok := h.parseDate(c, c.Query("date"))
	if !ok {
		return
	}
	slots, err := h.svc.Availability(c.Request.Context(), doctorID, day)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(slots))
}
