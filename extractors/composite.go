package extractors

import (
	"github.com/goliatone/go-config-monitor/core"
)

// Composite asks each extractor in order and returns the first recognized
// notification.
type Composite struct {
	extractors []core.NotificationExtractor
}

func NewComposite(extractors ...core.NotificationExtractor) *Composite {
	filtered := make([]core.NotificationExtractor, 0, len(extractors))
	for _, extractor := range extractors {
		if extractor != nil {
			filtered = append(filtered, extractor)
		}
	}
	return &Composite{extractors: filtered}
}

// FromProviders builds a composite from provider extractors, keeping order.
func FromProviders(providers ...core.Provider) *Composite {
	extractors := make([]core.NotificationExtractor, 0, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		extractors = append(extractors, provider.Extractor())
	}
	return NewComposite(extractors...)
}

// Default recognizes every built-in provider.
func Default() *Composite {
	return FromProviders(Defaults()...)
}

func (c *Composite) Extract(headers map[string]string, payload map[string]any) (core.PropertyPathNotification, bool) {
	if c == nil {
		return core.PropertyPathNotification{}, false
	}
	for _, extractor := range c.extractors {
		if notification, ok := extractor.Extract(headers, payload); ok {
			return notification, true
		}
	}
	return core.PropertyPathNotification{}, false
}

func (c *Composite) Len() int {
	if c == nil {
		return 0
	}
	return len(c.extractors)
}

var _ core.NotificationExtractor = (*Composite)(nil)
