package command

import (
	"strings"
)

const (
	TypeNotifyByPath  = "config_monitor.command.notify.path"
	TypeNotifyByForm  = "config_monitor.command.notify.form"
	TypeRelayOutbox   = "config_monitor.command.outbox.relay"
	TypeAttachContext = "config_monitor.command.context.attach"
)

// NotifyByPathMessage carries a decoded webhook for the notification
// extractor.
type NotifyByPathMessage struct {
	Headers map[string]string
	Payload map[string]any
}

func (NotifyByPathMessage) Type() string { return TypeNotifyByPath }

func (m NotifyByPathMessage) Validate() error {
	if m.Payload == nil {
		return commandValidationError("payload", "payload is required")
	}
	return nil
}

// NotifyByFormMessage carries changed paths directly, bypassing extraction.
type NotifyByFormMessage struct {
	Headers map[string]string
	Paths   []string
}

func (NotifyByFormMessage) Type() string { return TypeNotifyByForm }

func (m NotifyByFormMessage) Validate() error {
	for _, path := range m.Paths {
		if strings.TrimSpace(path) != "" {
			return nil
		}
	}
	return commandValidationError("path", "at least one path is required")
}

type RelayOutboxMessage struct {
	BatchSize int
}

func (RelayOutboxMessage) Type() string { return TypeRelayOutbox }

func (m RelayOutboxMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandValidationError("batch_size", "batch size must be >= 0")
	}
	return nil
}

type AttachContextMessage struct {
	ContextID string
}

func (AttachContextMessage) Type() string { return TypeAttachContext }

func (m AttachContextMessage) Validate() error {
	if strings.TrimSpace(m.ContextID) == "" {
		return commandValidationError("context_id", "context id is required")
	}
	return nil
}
