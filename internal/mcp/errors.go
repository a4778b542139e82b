package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/officedesk/internal/domain/attendance"
)

// APIError is the payload of a failed tool call.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to tool error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		return &APIError{Code: "ALREADY_CHECKED_IN", Message: "already checked in", RecoveryHint: "Call check_out first"}
	case errors.Is(err, attendance.ErrNoActiveSession):
		return &APIError{Code: "NO_ACTIVE_SESSION", Message: "no active session", RecoveryHint: "Call check_in first"}
	default:
		return &APIError{Code: "INTERNAL", Message: err.Error()}
	}
}
