package errors

import (
	"net/http"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestProperty_ErrorResponse_StandardFormat tests that all error responses follow the standard format
// *For any* API error, the error response SHALL include code, message, timestamp and request_id.
func TestProperty_ErrorResponse_StandardFormat(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		errorCodes := []ErrorCode{
			ErrInvalidRequest, ErrValidationFailed, ErrOutOfBounds,
			ErrUnauthenticated, ErrInvalidCredentials, ErrTokenExpiredAuth,
			ErrForbidden, ErrOwnedByOther,
			ErrNotFound, ErrUserNotFound, ErrInvalidCode, ErrDanglingReference,
			ErrExpired, ErrExhausted, ErrAlreadyReferred, ErrSelfReferral,
			ErrInsufficientTokens, ErrInsufficientFunds,
			ErrInternalServer, ErrTransientStoreFailure,
		}
		codeIdx := rapid.IntRange(0, len(errorCodes)-1).Draw(rt, "codeIdx")
		code := errorCodes[codeIdx]

		message := rapid.StringMatching(`[a-zA-Z0-9 .,!?]{10,100}`).Draw(rt, "message")
		requestID := rapid.StringMatching(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`).Draw(rt, "requestID")
		correlationID := rapid.StringMatching(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`).Draw(rt, "correlationID")

		paths := []string{"/api/v1/tokens/redeem", "/api/v1/conversions", "/api/v1/referrals"}
		methods := []string{"GET", "POST", "PUT", "DELETE"}
		path := paths[rapid.IntRange(0, len(paths)-1).Draw(rt, "pathIdx")]
		method := methods[rapid.IntRange(0, len(methods)-1).Draw(rt, "methodIdx")]

		apiErr := &APIError{
			Code:       code,
			Message:    message,
			HTTPStatus: GetHTTPStatusFromCode(code),
		}

		response := NewErrorResponse(apiErr, requestID, correlationID, path, method)

		if response.Error.Code == "" {
			t.Fatal("PROPERTY VIOLATION: Error response must have error code")
		}
		if response.Error.Message == "" {
			t.Fatal("PROPERTY VIOLATION: Error response must have message")
		}
		if response.Error.Timestamp == "" {
			t.Fatal("PROPERTY VIOLATION: Error response must have timestamp")
		}
		if _, err := time.Parse(time.RFC3339, response.Error.Timestamp); err != nil {
			t.Fatalf("PROPERTY VIOLATION: Timestamp must be valid RFC3339 format: %v", err)
		}
		if response.RequestID == "" {
			t.Fatal("PROPERTY VIOLATION: Error response must have request_id")
		}
		if response.CorrelationID == "" {
			t.Fatal("PROPERTY VIOLATION: Error response must have correlation_id")
		}
	})
}

// TestProperty_HTTPStatusMapping tests that every code maps to a valid 4xx/5xx status
func TestProperty_HTTPStatusMapping(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		errorCodes := []ErrorCode{
			ErrInvalidRequest, ErrValidationFailed, ErrOutOfBounds,
			ErrUnauthenticated, ErrInvalidCredentials, ErrTokenExpiredAuth,
			ErrForbidden, ErrOwnedByOther,
			ErrNotFound, ErrUserNotFound, ErrInvalidCode, ErrDanglingReference,
			ErrExpired, ErrExhausted, ErrAlreadyReferred, ErrSelfReferral,
			ErrInsufficientTokens, ErrInsufficientFunds,
			ErrInternalServer, ErrTransientStoreFailure,
		}
		code := errorCodes[rapid.IntRange(0, len(errorCodes)-1).Draw(rt, "codeIdx")]

		status := GetHTTPStatusFromCode(code)
		if status < http.StatusBadRequest || status > http.StatusNetworkAuthenticationRequired {
			t.Fatalf("PROPERTY VIOLATION: code %s maps to non-error status %d", code, status)
		}
	})
}

// TestErrorVariantsMatchMapping verifies the predeclared error values agree with the code mapping
func TestErrorVariantsMatchMapping(t *testing.T) {
	variants := []*APIError{
		ErrUnauthenticatedError, ErrInvalidCredentialsError, ErrTokenExpiredError,
		ErrForbiddenError, ErrUserNotFoundError, ErrNotFoundError,
		ErrInvalidCodeError, ErrDanglingReferenceError,
		ErrExpiredError, ErrExhaustedError, ErrOwnedByOtherError,
		ErrAlreadyReferredError, ErrSelfReferralError,
		ErrInsufficientTokensError, ErrInsufficientFundsError,
		ErrOutOfBoundsError, ErrInternalServerError, ErrTransientStoreFailureError,
	}
	for _, v := range variants {
		if got := GetHTTPStatusFromCode(v.Code); got != v.HTTPStatus {
			t.Errorf("code %s: declared status %d, mapping says %d", v.Code, v.HTTPStatus, got)
		}
	}
}
