package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/goliatone/go-config-monitor/core"
)

// FormPathField is the repeated form field carrying changed paths.
const FormPathField = "path"

// MonitorHandler adapts a core.NotifyService to the inbound handler contract.
// Form deliveries are passed straight through as paths; everything else is
// decoded as a JSON object for the notification extractor.
type MonitorHandler struct {
	Service core.NotifyService
}

func NewMonitorHandler(service core.NotifyService) *MonitorHandler {
	return &MonitorHandler{Service: service}
}

func (h *MonitorHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h == nil || h.Service == nil {
		return core.InboundResult{}, failInternal.new("webhooks: monitor handler requires a notify service", nil)
	}

	var (
		services []string
		err      error
	)
	if strings.EqualFold(strings.TrimSpace(req.Surface), core.SurfaceForm) {
		services, err = h.Service.NotifyByForm(ctx, req.Headers, req.Form[FormPathField])
	} else {
		services, err = h.Service.NotifyByPath(ctx, req.Headers, decodePayload(req.Body))
	}
	if services == nil {
		services = []string{}
	}
	if err != nil {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusBadGateway,
			Services:   services,
		}, err
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Services:   services,
	}, nil
}

// decodePayload returns an empty map for bodies that are not a JSON object,
// which extractors treat as unrecognized.
func decodePayload(body []byte) map[string]any {
	payload := map[string]any{}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return payload
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	if err := decoder.Decode(&payload); err != nil {
		return map[string]any{}
	}
	return payload
}

var _ core.InboundHandler = (*MonitorHandler)(nil)
