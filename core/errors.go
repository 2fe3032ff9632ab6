package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	MonitorErrorBadInput        = "MONITOR_BAD_INPUT"
	MonitorErrorUnauthorized    = "MONITOR_UNAUTHORIZED"
	MonitorErrorNotFound        = "MONITOR_NOT_FOUND"
	MonitorErrorConflict        = "MONITOR_CONFLICT"
	MonitorErrorRateLimited     = "MONITOR_RATE_LIMITED"
	MonitorErrorPublishFailed   = "MONITOR_PUBLISH_FAILED"
	MonitorErrorOperationFailed = "MONITOR_OPERATION_FAILED"
	MonitorErrorInternal        = "MONITOR_INTERNAL_ERROR"
)

func monitorErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureMonitorErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "token mismatch"):
		return newMonitorError(err.Error(), goerrors.CategoryAuth, MonitorErrorUnauthorized)
	case strings.Contains(msg, "publish"):
		return newMonitorError(err.Error(), goerrors.CategoryExternal, MonitorErrorPublishFailed)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newMonitorError(err.Error(), goerrors.CategoryRateLimit, MonitorErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return newMonitorError(err.Error(), goerrors.CategoryBadInput, MonitorErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureMonitorErrorEnvelope(mapped)
}

func newMonitorError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureMonitorErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureMonitorErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = MonitorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = MonitorTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

// MonitorTextCode is the text code used for category when none is set.
func MonitorTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return MonitorErrorBadInput
	case goerrors.CategoryNotFound:
		return MonitorErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return MonitorErrorUnauthorized
	case goerrors.CategoryConflict:
		return MonitorErrorConflict
	case goerrors.CategoryRateLimit:
		return MonitorErrorRateLimited
	case goerrors.CategoryExternal:
		return MonitorErrorPublishFailed
	case goerrors.CategoryOperation:
		return MonitorErrorOperationFailed
	default:
		return MonitorErrorInternal
	}
}

// MonitorHTTPStatus maps an error category onto the status the endpoint
// answers with.
func MonitorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError converts any error into a monitor error envelope.
func MapError(err error) *goerrors.Error {
	return monitorErrorMapper(err)
}

func publishError(source error, destination string) error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, "core: publish refresh signal failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(MonitorErrorPublishFailed).
		WithMetadata(map[string]any{"destination": destination})
}
