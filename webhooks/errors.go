package webhooks

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-config-monitor/core"
)

// failure is one class of webhook error: the go-errors category plus the
// HTTP status and text code callers see.
type failure struct {
	category goerrors.Category
	status   int
	textCode string
}

var (
	failBadInput     = failure{goerrors.CategoryBadInput, http.StatusBadRequest, core.MonitorErrorBadInput}
	failUnauthorized = failure{goerrors.CategoryAuth, http.StatusUnauthorized, core.MonitorErrorUnauthorized}
	failNotFound     = failure{goerrors.CategoryNotFound, http.StatusNotFound, core.MonitorErrorNotFound}
	failInternal     = failure{goerrors.CategoryInternal, http.StatusInternalServerError, core.MonitorErrorInternal}
)

func (f failure) new(message string, metadata map[string]any) error {
	return f.wrap(nil, message, metadata)
}

// wrap keeps source as the cause when it is set.
func (f failure) wrap(source error, message string, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, f.category)
	} else {
		err = goerrors.Wrap(source, f.category, message)
	}
	err = err.WithCode(f.status).WithTextCode(f.textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}
