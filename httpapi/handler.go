// Package httpapi exposes the monitor endpoint over gin.
package httpapi

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-config-monitor/core"
	"github.com/goliatone/go-config-monitor/extractors"
	"github.com/goliatone/go-config-monitor/webhooks"
)

const defaultMaxBodyBytes int64 = 5 << 20

type InboundProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type Handler struct {
	processor    InboundProcessor
	logger       core.Logger
	errorMapper  core.ErrorMapper
	maxBodyBytes int64
}

type Option func(*Handler)

func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithErrorMapper(mapper core.ErrorMapper) Option {
	return func(h *Handler) {
		h.errorMapper = mapper
	}
}

// WithMaxBodyBytes caps the request body. Larger bodies are rejected with 413
// before any processing.
func WithMaxBodyBytes(limit int64) Option {
	return func(h *Handler) {
		if limit > 0 {
			h.maxBodyBytes = limit
		}
	}
}

func NewHandler(processor InboundProcessor, opts ...Option) *Handler {
	handler := &Handler{
		processor:    processor,
		logger:       glog.Nop(),
		errorMapper:  core.MapError,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	handler.logger = glog.Ensure(handler.logger)
	if handler.errorMapper == nil {
		handler.errorMapper = core.MapError
	}
	return handler
}

// NewEngine returns a gin engine in release mode with panic recovery.
func NewEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

// Register mounts the monitor endpoint on route.
func (h *Handler) Register(routes gin.IRoutes, route string) {
	routes.POST(route, h.Monitor)
}

// Monitor accepts provider webhooks as JSON and plain notifications as
// repeated form "path" fields, and answers with the refreshed service names.
func (h *Handler) Monitor(c *gin.Context) {
	body, err := h.readBody(c.Request)
	if err != nil {
		h.renderError(c, err)
		return
	}
	headers := flattenHeaders(c.Request.Header)

	req := core.InboundRequest{
		ProviderID: extractors.DetectProvider(headers),
		Surface:    core.SurfaceWebhook,
		Headers:    headers,
		Body:       body,
	}
	if isFormRequest(c.ContentType()) {
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		req.Surface = core.SurfaceForm
		req.Form = map[string][]string{
			webhooks.FormPathField: c.PostFormArray(webhooks.FormPathField),
		}
	}

	result, err := h.processor.Process(c.Request.Context(), req)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("monitor request failed",
			"provider_id", req.ProviderID,
			"surface", req.Surface,
			"error", err.Error(),
		)
		h.renderError(c, err)
		return
	}
	services := result.Services
	if services == nil {
		services = []string{}
	}
	c.JSON(http.StatusOK, services)
}

// readBody reads one byte past the cap so an oversized delivery is refused
// instead of being decoded truncated and acknowledged.
func (h *Handler) readBody(req *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(req.Body, h.maxBodyBytes+1))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "httpapi: read request body failed").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.MonitorErrorBadInput)
	}
	if int64(len(body)) > h.maxBodyBytes {
		return nil, goerrors.New("httpapi: request body too large", goerrors.CategoryBadInput).
			WithCode(http.StatusRequestEntityTooLarge).
			WithTextCode(core.MonitorErrorBadInput).
			WithMetadata(map[string]any{"max_body_bytes": h.maxBodyBytes})
	}
	return body, nil
}

func (h *Handler) renderError(c *gin.Context, err error) {
	mapped := h.errorMapper(err)
	if mapped == nil {
		mapped = core.MapError(err)
	}
	status := mapped.Code
	if status == 0 {
		status = core.MonitorHTTPStatus(mapped.Category)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"message":   mapped.Message,
			"text_code": mapped.TextCode,
			"category":  mapped.Category.String(),
		},
	})
}

func isFormRequest(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.EqualFold(strings.TrimSpace(mediaType), gin.MIMEPOSTForm)
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}
