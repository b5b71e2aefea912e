package types

import (
	"errors"
	"fmt"
	"net/http"

	appErr "github.com/foundernet/engine/pkg/errors"
)

// FromAppError converts err into the wire error. Errors without a code are
// reported as internal without their text.
func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	var e *appErr.AppError
	if !errors.As(err, &e) {
		return &APIError{Code: string(appErr.CodeInternal), Message: "internal error"}
	}
	out := &APIError{Code: string(e.Code), Message: e.Message}
	if e.Code == appErr.CodeInternal {
		return out
	}
	for _, k := range []string{"fields", "field", "operation", "policy", "constraint"} {
		if v, ok := e.Meta[k]; ok {
			out.Details = fmt.Sprintf("%s=%v", k, v)
			break
		}
	}
	return out
}

// StatusFor maps an error's code to an HTTP status.
func StatusFor(err error) int {
	switch appErr.CodeOf(err) {
	case "":
		return http.StatusOK
	case appErr.CodeInvalid:
		return http.StatusBadRequest
	case appErr.CodeUnauthorized:
		return http.StatusUnauthorized
	case appErr.CodePolicyDenied:
		return http.StatusForbidden
	case appErr.CodeNotFound:
		return http.StatusNotFound
	case appErr.CodeConflict, appErr.CodeAlreadyExists:
		return http.StatusConflict
	case appErr.CodeUnavailable:
		return http.StatusServiceUnavailable
	case appErr.CodeDeadline:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
