package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"

	monitorcommand "github.com/goliatone/go-config-monitor/command"
	"github.com/goliatone/go-config-monitor/core"
	monitorquery "github.com/goliatone/go-config-monitor/query"
)

// MonitorBindings lists the collaborators behind the monitor's commands and
// queries. Nil collaborators leave their handlers unregistered.
type MonitorBindings struct {
	Monitor *core.Monitor
	Relay   core.OutboxDispatcher
	Outbox  monitorquery.OutboxReader
}

// MonitorSubscriptions owns the dispatcher subscriptions created by
// RegisterMonitor.
type MonitorSubscriptions struct {
	subscriptions []commanddispatcher.Subscription
}

func (s *MonitorSubscriptions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.subscriptions)
}

func (s *MonitorSubscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for _, subscription := range s.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	s.subscriptions = nil
}

func (s *MonitorSubscriptions) add(subscription commanddispatcher.Subscription, err error) error {
	if err != nil {
		return err
	}
	s.subscriptions = append(s.subscriptions, subscription)
	return nil
}

// RegisterMonitor registers the notify, relay and context commands and the
// preview queries on the dispatcher.
func RegisterMonitor(adapter *RegistryAdapter, bindings MonitorBindings) (*MonitorSubscriptions, error) {
	if bindings.Monitor == nil {
		return nil, fmt.Errorf("gocommand: monitor is required")
	}
	subs := &MonitorSubscriptions{}
	steps := []func() error{
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, monitorcommand.NewNotifyByPathCommand(bindings.Monitor)))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, monitorcommand.NewNotifyByFormCommand(bindings.Monitor)))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, monitorcommand.NewAttachContextCommand(bindings.Monitor)))
		},
		func() error {
			return subs.add(SubscribeQuery(monitorquery.NewResolveServicesQuery(bindings.Monitor)))
		},
		func() error {
			return subs.add(SubscribeQuery(monitorquery.NewContextIDQuery(bindings.Monitor)))
		},
	}
	if bindings.Relay != nil {
		steps = append(steps, func() error {
			return subs.add(RegisterAndSubscribe(adapter, monitorcommand.NewRelayOutboxCommand(bindings.Relay)))
		})
	}
	if bindings.Outbox != nil {
		steps = append(steps, func() error {
			return subs.add(SubscribeQuery(monitorquery.NewListOutboxQuery(bindings.Outbox)))
		})
	}

	for _, step := range steps {
		if err := step(); err != nil {
			subs.Unsubscribe()
			return nil, err
		}
	}
	return subs, nil
}
