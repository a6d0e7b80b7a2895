package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/auth"
)

// CookieConfig controls the session cookie set next to the JSON token.
type CookieConfig struct {
	Name       string
	ExpiryDays int
	Secure     bool
}

type Handler struct {
	svc    *auth.Service
	auth   *middleware.AuthMiddleware
	cookie CookieConfig
}

func NewHandler(svc *auth.Service, authMW *middleware.AuthMiddleware, cookie CookieConfig) *Handler {
	return &Handler{svc: svc, auth: authMW, cookie: cookie}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	public := r.Group("/auth")
	{
		public.POST("/otp", h.auth.Optional(), h.RequestOTP)
		public.POST("/login/phone", h.LoginPhone)
		public.POST("/signup/email", h.SignupEmail)
		public.POST("/login/email", h.LoginEmail)
		public.POST("/forgot-password", h.ForgotPassword)
		public.PATCH("/reset-password/:token", h.ResetPassword)
		public.POST("/verify-email/:token", h.VerifyEmail)
		public.POST("/logout", h.Logout)
	}

	protected := r.Group("/auth", h.auth.Authenticate())
	{
		protected.PATCH("/update-password", h.UpdatePassword)
		protected.PATCH("/set-password", h.SetPassword)
		protected.PATCH("/update-phone", h.UpdatePhone)
		protected.GET("/verify-email", h.RequestEmailVerification)
	}
}

func (h *Handler) sendSession(c *gin.Context, code int, session *model.SessionResponse) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, session.Token, h.cookie.ExpiryDays*24*60*60, "/", "", h.cookie.Secure, true)
	c.JSON(code, handler.NewSuccessResponse(session))
}

func (h *Handler) RequestOTP(c *gin.Context) {
	var req model.RequestOTPRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	if err := h.svc.RequestOTP(c.Request.Context(), middleware.CurrentAccount(c), &req); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewMessageResponse("Code sent"))
}

func (h *Handler) LoginPhone(c *gin.Context) {
	var req model.PhoneLoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	session, err := h.svc.LoginPhone(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sendSession(c, http.StatusOK, session)
}

func (h *Handler) SignupEmail(c *gin.Context) {
	var req model.EmailSignupRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	session, err := h.svc.SignupEmail(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sendSession(c, http.StatusCreated, session)
}

func (h *Handler) LoginEmail(c *gin.Context) {
	var req model.EmailLoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	session, err := h.svc.LoginEmail(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sendSession(c, http.StatusOK, session)
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req model.ForgotPasswordRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	if err := h.svc.ForgotPassword(c.Request.Context(), &req); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewMessageResponse("Token sent to email"))
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req model.ResetPasswordRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	session, err := h.svc.ResetPassword(c.Request.Context(), c.Param("token"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sendSession(c, http.StatusOK, session)
}

func (h *Handler) UpdatePassword(c *gin.Context) {
	var req model.UpdatePasswordRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	session, err := h.svc.UpdatePassword(c.Request.Context(), middleware.CurrentAccount(c), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sendSession(c, http.StatusOK, session)
}

func (h *Handler) SetPassword(c *gin.Context) {
	var req model.SetPasswordRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	session, err := h.svc.SetPassword(c.Request.Context(), middleware.CurrentAccount(c), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sendSession(c, http.StatusOK, session)
}

func (h *Handler) UpdatePhone(c *gin.Context) {
	var req model.UpdatePhoneRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	account, err := h.svc.UpdatePhone(c.Request.Context(), middleware.CurrentAccount(c), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(account))
}

func (h *Handler) RequestEmailVerification(c *gin.Context) {
	if err := h.svc.RequestEmailVerification(c.Request.Context(), middleware.CurrentAccount(c)); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewMessageResponse("Verification link sent to email"))
}

func (h *Handler) VerifyEmail(c *gin.Context) {
	if err := h.svc.VerifyEmail(c.Request.Context(), c.Param("token")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewMessageResponse("Email verified"))
}

// Logout overwrites the session cookie. Bearer tokens held by the client
// stay valid until they expire.
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	c.JSON(http.StatusOK, handler.NewMessageResponse("Logged out"))
}
