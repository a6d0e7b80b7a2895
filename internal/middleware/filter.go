package middleware

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

// ProtectedFields may never be set through self-service update routes.
var ProtectedFields = []string{
	"password",
	"password_confirm",
	"password_changed_at",
	"password_reset_token",
	"password_reset_expires",
	"otp",
	"otp_expires",
	"active",
	"ratings_average",
	"ratings_quantity",
	"role",
	"phone",
	"new_phone",
	"email_verified",
	"doctor_id",
}

// VisitProtectedFields are stripped from patient visit edits on top of
// ProtectedFields.
var VisitProtectedFields = []string{"patient", "patient_id", "closed", "prescriptions", "doctor"}

// FilterBody drops the named top-level keys from a JSON object body before
// the handler binds it.
func FilterBody(fields ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			_ = c.Error(apperrors.BadRequest("Request body could not be read", err))
			c.Abort()
			return
		}

		var body map[string]json.RawMessage
		if err := json.Unmarshal(raw, &body); err != nil {
			_ = c.Error(apperrors.BadRequest("Request body must be a JSON object", err))
			c.Abort()
			return
		}
		for _, field := range fields {
			delete(body, field)
		}

		filtered, err := json.Marshal(body)
		if err != nil {
			_ = c.Error(apperrors.Internal(err))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(filtered))
		c.Request.ContentLength = int64(len(filtered))
		c.Next()
	}
}
