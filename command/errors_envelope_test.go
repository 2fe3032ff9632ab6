package command

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-config-monitor/core"
)

func TestNotifyByFormMessage_ValidateReturnsRichError(t *testing.T) {
	err := (NotifyByFormMessage{Paths: []string{" "}}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.MonitorErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.MonitorErrorBadInput, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "path" {
		t.Fatalf("expected path validation field, got %#v", validation)
	}
}

func TestNotifyByPathCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *NotifyByPathCommand
	err := cmd.Execute(context.Background(), NotifyByPathMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.MonitorErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.MonitorErrorInternal, rich.TextCode)
	}
}
