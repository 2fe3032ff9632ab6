package command

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-config-monitor/core"
)

var (
	_ gocmd.Commander[NotifyByPathMessage]  = (*NotifyByPathCommand)(nil)
	_ gocmd.Commander[NotifyByFormMessage]  = (*NotifyByFormCommand)(nil)
	_ gocmd.Commander[RelayOutboxMessage]   = (*RelayOutboxCommand)(nil)
	_ gocmd.Commander[AttachContextMessage] = (*AttachContextCommand)(nil)
	_ ContextAttacher                       = (*core.Monitor)(nil)
)
