package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Registry         = (*ProviderRegistry)(nil)
	_ NotifyService    = (*Monitor)(nil)
	_ RefreshPublisher = RefreshPublisherFunc(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
