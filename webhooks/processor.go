package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-config-monitor/core"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

// ErrDeliveryIDMissing is returned by delivery id extractors when no header
// carries an id.
var ErrDeliveryIDMissing = errors.New("webhooks: delivery id is required for dedupe")

type DeliveryRecord struct {
	ID            string
	ClaimID       string
	ProviderID    string
	DeliveryID    string
	Status        string
	Attempts      int
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type DeliveryLedger interface {
	Claim(
		ctx context.Context,
		providerID string,
		deliveryID string,
		payload []byte,
		lease time.Duration,
	) (DeliveryRecord, bool, error)
	Get(ctx context.Context, providerID string, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type DeliveryIDExtractor func(req core.InboundRequest) (string, error)

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type Handler = core.InboundHandler

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Processor runs one inbound webhook through verification, delivery dedupe
// and burst control before invoking the handler. The ledger is optional;
// without it every delivery is handled.
type Processor struct {
	Verifier    Verifier
	Ledger      DeliveryLedger
	Handler     Handler
	ExtractID   DeliveryIDExtractor
	Burst       BurstController
	RetryPolicy RetryPolicy
	// RequireDeliveryID rejects deliveries without an id instead of handling
	// them without dedupe.
	RequireDeliveryID bool
	ClaimLease        time.Duration
	MaxAttempts       int
	Now               func() time.Time
}

func NewProcessor(verifier Verifier, ledger DeliveryLedger, handler Handler) *Processor {
	return &Processor{
		Verifier:    verifier,
		Ledger:      ledger,
		Handler:     handler,
		ExtractID:   DefaultDeliveryIDExtractor,
		RetryPolicy: ExponentialRetryPolicy{},
		ClaimLease:  defaultClaimLease,
		MaxAttempts: defaultMaxAttempts,
	}
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Handler == nil {
		return core.InboundResult{}, failInternal.new("webhooks: processor requires a handler", nil)
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ProviderID == "" {
		return core.InboundResult{}, failBadInput.new("webhooks: provider id is required", nil)
	}
	if rejected, err := p.verify(ctx, req); err != nil {
		return rejected, err
	}
	deliveryID, err := p.deliveryID(req)
	if err != nil {
		return core.InboundResult{}, err
	}
	if p.Ledger == nil || deliveryID == "" {
		return p.handle(ctx, req, deliveryID)
	}
	return p.handleTracked(ctx, req, deliveryID)
}

func (p *Processor) verify(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p.Verifier == nil {
		return core.InboundResult{}, nil
	}
	err := p.Verifier.Verify(ctx, req)
	if err == nil {
		return core.InboundResult{}, nil
	}
	metadata := map[string]any{"provider_id": req.ProviderID, "rejected": true}
	result := core.InboundResult{StatusCode: http.StatusUnauthorized, Services: []string{}, Metadata: metadata}
	return result, failUnauthorized.wrap(err, "webhooks: delivery rejected", metadata)
}

// deliveryID returns "" for deliveries without an id unless ids are required.
func (p *Processor) deliveryID(req core.InboundRequest) (string, error) {
	extract := p.ExtractID
	if extract == nil {
		extract = DefaultDeliveryIDExtractor
	}
	id, err := extract(req)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, ErrDeliveryIDMissing) && !p.RequireDeliveryID:
		return "", nil
	default:
		return "", failBadInput.new(err.Error(), map[string]any{"provider_id": req.ProviderID})
	}
}

// handleTracked claims the delivery in the ledger so a redelivery of a
// processed or in-flight webhook is acknowledged without a second refresh.
func (p *Processor) handleTracked(ctx context.Context, req core.InboundRequest, deliveryID string) (core.InboundResult, error) {
	delivery, claimed, err := p.Ledger.Claim(ctx, req.ProviderID, deliveryID, req.Body, p.claimLease())
	if err != nil {
		return core.InboundResult{}, err
	}
	if !claimed {
		return acknowledged(map[string]any{
			"provider_id": req.ProviderID,
			"delivery_id": delivery.DeliveryID,
			"status":      delivery.Status,
			"deduped":     true,
		}), nil
	}

	suppressed, skip, err := p.checkBurst(ctx, req, deliveryID)
	if err != nil {
		return core.InboundResult{}, err
	}
	if skip {
		if err := p.Ledger.Complete(ctx, delivery.ClaimID); err != nil {
			return core.InboundResult{}, err
		}
		return suppressed, nil
	}

	result, err := p.Handler.Handle(ctx, req)
	if err == nil && (!result.Accepted || result.StatusCode >= http.StatusInternalServerError) {
		err = fmt.Errorf("webhooks: delivery handler returned retryable status %d", result.StatusCode)
	}
	if err != nil {
		retryAt := p.now().Add(p.retryPolicy().NextDelay(delivery.Attempts))
		_ = p.Ledger.Fail(ctx, delivery.ClaimID, err, retryAt, p.maxAttempts())
		return result, err
	}
	if err := p.Ledger.Complete(ctx, delivery.ClaimID); err != nil {
		return core.InboundResult{}, err
	}
	return decorate(result, req.ProviderID, deliveryID), nil
}

func (p *Processor) handle(ctx context.Context, req core.InboundRequest, deliveryID string) (core.InboundResult, error) {
	if suppressed, skip, err := p.checkBurst(ctx, req, deliveryID); err != nil || skip {
		return suppressed, err
	}
	result, err := p.Handler.Handle(ctx, req)
	if err != nil {
		return result, err
	}
	return decorate(result, req.ProviderID, deliveryID), nil
}

// checkBurst reports true when the burst controller suppressed the request.
func (p *Processor) checkBurst(ctx context.Context, req core.InboundRequest, deliveryID string) (core.InboundResult, bool, error) {
	if p.Burst == nil {
		return core.InboundResult{}, false, nil
	}
	decision, err := p.Burst.Allow(ctx, req)
	if err != nil || decision.Allow {
		return core.InboundResult{}, false, err
	}
	metadata := ensureMetadata(decision.Metadata)
	metadata["provider_id"] = req.ProviderID
	metadata["deduped"] = true
	if deliveryID != "" {
		metadata["delivery_id"] = deliveryID
	}
	return acknowledged(metadata), true, nil
}

// acknowledged is the 200 answer for a delivery that refreshes nothing.
func acknowledged(metadata map[string]any) core.InboundResult {
	return core.InboundResult{Accepted: true, StatusCode: http.StatusOK, Services: []string{}, Metadata: metadata}
}

func decorate(result core.InboundResult, providerID string, deliveryID string) core.InboundResult {
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["provider_id"] = providerID
	if deliveryID != "" {
		result.Metadata["delivery_id"] = deliveryID
	}
	if result.Services == nil {
		result.Services = []string{}
	}
	return result
}

// DefaultDeliveryIDExtractor reads an explicit delivery id from metadata and
// falls back to the delivery headers of the supported providers.
func DefaultDeliveryIDExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["delivery_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
	}
	return providerDeliveryIDs(req)
}

var providerDeliveryIDs = HeaderDeliveryIDExtractor(
	"X-Delivery-Id",
	"X-GitHub-Delivery",
	"X-Gitlab-Event-UUID",
	"X-Gitea-Delivery",
	"X-Gogs-Delivery",
	"X-Request-UUID",
	"X-Gitee-Timestamp",
)

const (
	defaultClaimLease  = 30 * time.Second
	defaultMaxAttempts = 8
)

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return defaultClaimLease
}

func (p *Processor) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return defaultMaxAttempts
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	return metadata
}
