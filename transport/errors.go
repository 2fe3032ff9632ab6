package transport

import (
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-config-monitor/core"
)

func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	return transportWrapError(nil, category, message, code, metadata)
}

// transportWrapError builds a monitor envelope, wrapping source when set.
func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(code).WithTextCode(core.MonitorTextCode(category))
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}
