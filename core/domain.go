package core

import (
	"strings"
	"time"
)

const (
	WildcardServiceName     = "*"
	ReservedApplicationName = "application"
	ProfileSeparator        = "-"
	ProfileQualifier        = ":"

	DefaultOrigin = "config-monitor"
)

const (
	SurfaceWebhook = "webhook"
	SurfaceForm    = "form"
)

// PropertyPathNotification is the ordered list of changed paths carried by one
// webhook delivery.
type PropertyPathNotification struct {
	Paths []string
}

func NewPropertyPathNotification(paths ...string) PropertyPathNotification {
	return PropertyPathNotification{Paths: append([]string(nil), paths...)}
}

func (n PropertyPathNotification) Empty() bool {
	for _, path := range n.Paths {
		if strings.TrimSpace(path) != "" {
			return false
		}
	}
	return true
}

// RefreshSignal instructs the services matching Destination to reload their
// configuration.
type RefreshSignal struct {
	ID          string    `json:"id"`
	Origin      string    `json:"origin"`
	ContextID   string    `json:"context_id"`
	Destination string    `json:"destination"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (s RefreshSignal) Wildcard() bool {
	return s.Destination == WildcardServiceName ||
		strings.HasPrefix(s.Destination, WildcardServiceName+ProfileQualifier)
}

// Profile returns the profile qualifier of the destination, if any.
func (s RefreshSignal) Profile() string {
	_, profile, found := strings.Cut(s.Destination, ProfileQualifier)
	if !found {
		return ""
	}
	return profile
}

type InboundRequest struct {
	ProviderID string
	Surface    string
	Headers    map[string]string
	Body       []byte
	Form       map[string][]string
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Services   []string
	Metadata   map[string]any
}

// HeaderValue looks up a header case-insensitively.
func HeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
