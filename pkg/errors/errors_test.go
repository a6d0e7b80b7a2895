package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want int
	}{
		{"missing fields", MissingFields("doctor"), http.StatusBadRequest},
		{"unauthenticated", Unauthenticated(nil), http.StatusUnauthorized},
		{"stale", SessionStale(), http.StatusUnauthorized},
		{"forbidden", Forbidden(""), http.StatusForbidden},
		{"not found", NotFound("visit", nil), http.StatusNotFound},
		{"otp expired", OTPExpired(), http.StatusUnauthorized},
		{"otp mismatch", OTPMismatch(), http.StatusUnauthorized},
		{"confirm mismatch", PasswordConfirmMismatch(), http.StatusBadRequest},
		{"login mismatch", PasswordMismatch(""), http.StatusUnauthorized},
		{"daily limit", DailyLimitExceeded(), http.StatusForbidden},
		{"unavailable", SlotUnavailable(), http.StatusBadRequest},
		{"conflict", SlotConflict(nil), http.StatusBadRequest},
		{"horizon", HorizonExceeded(30), http.StatusBadRequest},
		{"profile", ProfileIncomplete("name"), http.StatusForbidden},
		{"duplicate", DuplicateKey("phone", nil), http.StatusBadRequest},
		{"validation", Validation("rating must be at most 5"), http.StatusBadRequest},
		{"rate", TooManyRequests(), http.StatusTooManyRequests},
		{"internal", Internal(nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestIsMatchesOnCode(t *testing.T) {
	wrapped := fmt.Errorf("failed to book: %w", SlotConflict(stderrors.New("23505")))

	assert.True(t, Is(wrapped, SlotConflictErr))
	assert.False(t, Is(wrapped, SlotUnavailableErr))
	assert.True(t, Is(OTPExpired(), OTPExpiredErr))
	assert.False(t, Is(OTPExpired(), OTPMismatchErr))
}

func TestAs(t *testing.T) {
	appErr, ok := As(fmt.Errorf("wrapped: %w", NotFound("doctor", nil)))
	assert.True(t, ok)
	assert.Equal(t, "doctor not found", appErr.Message)

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "doctor is required", MissingFields("doctor", "date_time").Message)
	assert.Equal(t, "This email already exists", DuplicateKey("email", nil).Message)
	assert.Equal(t, "Invalid input data. a. b", Validation("a", "b").Message)
	assert.Equal(t, "Something went wrong", Internal(stderrors.New("db down")).Message)
}
