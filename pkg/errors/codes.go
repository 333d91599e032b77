package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes shared by every module.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_005"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_006"
	ErrCodeTimeout            ErrorCode = "COMMON_007"
	ErrCodeValidation         ErrorCode = "COMMON_008"
	ErrCodeSerialization      ErrorCode = "COMMON_009"
	ErrCodeDatabaseError      ErrorCode = "COMMON_010"
	ErrCodeCacheError         ErrorCode = "COMMON_011"
	ErrCodeExternalService    ErrorCode = "COMMON_012"
	ErrCodeConfiguration      ErrorCode = "COMMON_013"
)

// Short aliases used throughout the codebase.
const (
	CodeInternal      = ErrCodeInternal
	CodeInvalidParam  = ErrCodeBadRequest
	CodeNotFound      = ErrCodeNotFound
	CodeConflict      = ErrCodeConflict
	CodeConfiguration = ErrCodeConfiguration
	CodeUnknown       = ErrorCode("UNKNOWN")
	CodeOK            = ErrorCode("OK")
)

// Region module error codes.
const (
	ErrCodeRegionNotFound    ErrorCode = "REG_001"
	ErrCodeRegionInvalidBBox ErrorCode = "REG_002"
	ErrCodeRegionInvalidTier ErrorCode = "REG_003"
)

// Change-detection module error codes.
//
// DataUnavailable, ComputationTimeout, and EmptyComposite are environmental
// conditions: they are recovered locally and surfaced as result flags, never
// propagated as fatal errors.
const (
	ErrCodeDataUnavailable     ErrorCode = "DET_001"
	ErrCodeComputationTimeout  ErrorCode = "DET_002"
	ErrCodeEmptyComposite      ErrorCode = "DET_003"
	ErrCodeVectorizationFailed ErrorCode = "DET_004"
	ErrCodeInvalidWindow       ErrorCode = "DET_005"
	ErrCodeDateSearchExhausted ErrorCode = "DET_006"
)

// Scoring module error codes.
const (
	ErrCodeScoringFailed    ErrorCode = "SCR_001"
	ErrCodeBenchmarkMissing ErrorCode = "SCR_002"
)

// Data-source (collaborator) error codes.
const (
	ErrCodeDataSourceUnavailable ErrorCode = "SRC_001"
	ErrCodeDataSourceRateLimited ErrorCode = "SRC_002"
	ErrCodeDataSourceParseError  ErrorCode = "SRC_003"
)

// Monitoring-run module error codes.
const (
	ErrCodeRunFailed          ErrorCode = "RUN_001"
	ErrCodeRunNotFound        ErrorCode = "RUN_002"
	ErrCodeAlertPublishFailed ErrorCode = "RUN_003"
	ErrCodeArtifactStoreError ErrorCode = "RUN_004"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusInternalServerError,
	ErrCodeConfiguration:      http.StatusInternalServerError,

	ErrCodeRegionNotFound:    http.StatusNotFound,
	ErrCodeRegionInvalidBBox: http.StatusBadRequest,
	ErrCodeRegionInvalidTier: http.StatusBadRequest,

	ErrCodeDataUnavailable:     http.StatusServiceUnavailable,
	ErrCodeComputationTimeout:  http.StatusGatewayTimeout,
	ErrCodeEmptyComposite:      http.StatusServiceUnavailable,
	ErrCodeVectorizationFailed: http.StatusInternalServerError,
	ErrCodeInvalidWindow:       http.StatusBadRequest,
	ErrCodeDateSearchExhausted: http.StatusServiceUnavailable,

	ErrCodeScoringFailed:    http.StatusInternalServerError,
	ErrCodeBenchmarkMissing: http.StatusInternalServerError,

	ErrCodeDataSourceUnavailable: http.StatusServiceUnavailable,
	ErrCodeDataSourceRateLimited: http.StatusTooManyRequests,
	ErrCodeDataSourceParseError:  http.StatusBadGateway,

	ErrCodeRunFailed:          http.StatusInternalServerError,
	ErrCodeRunNotFound:        http.StatusNotFound,
	ErrCodeAlertPublishFailed: http.StatusInternalServerError,
	ErrCodeArtifactStoreError: http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeConfiguration:      "invalid configuration",

	ErrCodeRegionNotFound:    "region not found",
	ErrCodeRegionInvalidBBox: "invalid region bounding box",
	ErrCodeRegionInvalidTier: "invalid region tier",

	ErrCodeDataUnavailable:     "no usable capture in requested window",
	ErrCodeComputationTimeout:  "remote computation exceeded its time budget",
	ErrCodeEmptyComposite:      "composite has no usable bands",
	ErrCodeVectorizationFailed: "vectorization failed",
	ErrCodeInvalidWindow:       "invalid time window",
	ErrCodeDateSearchExhausted: "adaptive date search exhausted its lookback cap",

	ErrCodeScoringFailed:    "investment scoring failed",
	ErrCodeBenchmarkMissing: "no benchmark price for tier",

	ErrCodeDataSourceUnavailable: "data source unavailable",
	ErrCodeDataSourceRateLimited: "data source rate limited",
	ErrCodeDataSourceParseError:  "failed to parse data source response",

	ErrCodeRunFailed:          "monitoring run failed",
	ErrCodeRunNotFound:        "monitoring run not found",
	ErrCodeAlertPublishFailed: "failed to publish alert",
	ErrCodeArtifactStoreError: "failed to store run artifact",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
