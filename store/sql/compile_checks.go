package sqlstore

import (
	"github.com/goliatone/go-config-monitor/core"
	"github.com/goliatone/go-config-monitor/ratelimit"
	"github.com/goliatone/go-config-monitor/webhooks"
)

var (
	_ core.OutboxStore        = (*OutboxStore)(nil)
	_ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
	_ ratelimit.StateStore    = (*ThrottleStateStore)(nil)
	_ ratelimit.StateStore    = (*CachedThrottleStateStore)(nil)
)
