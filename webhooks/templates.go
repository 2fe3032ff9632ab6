package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-config-monitor/core"
	"github.com/goliatone/go-config-monitor/extractors"
)

type ProviderWebhookTemplate struct {
	ProviderID string
	Verifier   Verifier
	Extractor  DeliveryIDExtractor
}

type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := core.HeaderValue(req.Headers, v.Header)
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	var (
		decoded []byte
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
	default:
		decoded, err = hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

type HeaderTokenVerifier struct {
	Header string
	Token  string
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("webhooks: verification token is required")
	}
	actual := core.HeaderValue(req.Headers, v.Header)
	if actual == "" {
		return fmt.Errorf("webhooks: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("webhooks: verification token mismatch")
	}
	return nil
}

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(req core.InboundRequest) (string, error) {
		for _, key := range keys {
			if value := core.HeaderValue(req.Headers, key); value != "" {
				return value, nil
			}
		}
		return "", ErrDeliveryIDMissing
	}
}

func ChainDeliveryIDExtractors(chain ...DeliveryIDExtractor) DeliveryIDExtractor {
	list := append([]DeliveryIDExtractor(nil), chain...)
	return func(req core.InboundRequest) (string, error) {
		var lastErr error
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			deliveryID, err := extractor(req)
			if err == nil && strings.TrimSpace(deliveryID) != "" {
				return strings.TrimSpace(deliveryID), nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", ErrDeliveryIDMissing
	}
}

func NewGitHubWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: extractors.ProviderGitHub,
		Verifier: HeaderHMACVerifier{
			Header:   "X-Hub-Signature-256",
			Prefix:   "sha256=",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
		Extractor: HeaderDeliveryIDExtractor("X-GitHub-Delivery"),
	}
}

func NewGitLabWebhookTemplate(token string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: extractors.ProviderGitLab,
		Verifier: HeaderTokenVerifier{
			Header: "X-Gitlab-Token",
			Token:  strings.TrimSpace(token),
		},
		Extractor: HeaderDeliveryIDExtractor("X-Gitlab-Event-UUID"),
	}
}

func NewGiteaWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: extractors.ProviderGitea,
		Verifier: HeaderHMACVerifier{
			Header:   "X-Gitea-Signature",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
		Extractor: HeaderDeliveryIDExtractor("X-Gitea-Delivery"),
	}
}

func NewGogsWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: extractors.ProviderGogs,
		Verifier: HeaderHMACVerifier{
			Header:   "X-Gogs-Signature",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
		Extractor: HeaderDeliveryIDExtractor("X-Gogs-Delivery"),
	}
}

func NewGiteeWebhookTemplate(token string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: extractors.ProviderGitee,
		Verifier: HeaderTokenVerifier{
			Header: "X-Gitee-Token",
			Token:  strings.TrimSpace(token),
		},
		Extractor: HeaderDeliveryIDExtractor("X-Gitee-Timestamp"),
	}
}

func NewBitbucketWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: extractors.ProviderBitbucket,
		Verifier: HeaderHMACVerifier{
			Header:   "X-Hub-Signature",
			Prefix:   "sha256=",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
		Extractor: HeaderDeliveryIDExtractor("X-Request-UUID", "X-Hook-UUID"),
	}
}

// TemplateFor returns the template of a built-in provider keyed by its
// shared secret or token.
func TemplateFor(providerID string, secret string) (ProviderWebhookTemplate, bool) {
	switch strings.ToLower(strings.TrimSpace(providerID)) {
	case extractors.ProviderGitHub:
		return NewGitHubWebhookTemplate(secret), true
	case extractors.ProviderGitLab:
		return NewGitLabWebhookTemplate(secret), true
	case extractors.ProviderGitea:
		return NewGiteaWebhookTemplate(secret), true
	case extractors.ProviderGogs:
		return NewGogsWebhookTemplate(secret), true
	case extractors.ProviderGitee:
		return NewGiteeWebhookTemplate(secret), true
	case extractors.ProviderBitbucket:
		return NewBitbucketWebhookTemplate(secret), true
	default:
		return ProviderWebhookTemplate{}, false
	}
}

// RoutingVerifier verifies a delivery with the template registered for its
// provider. Providers without a template are accepted unverified.
type RoutingVerifier struct {
	mu        sync.RWMutex
	templates map[string]ProviderWebhookTemplate
}

func NewRoutingVerifier(templates ...ProviderWebhookTemplate) *RoutingVerifier {
	verifier := &RoutingVerifier{templates: map[string]ProviderWebhookTemplate{}}
	for _, template := range templates {
		verifier.Register(template)
	}
	return verifier
}

// NewRoutingVerifierFromSecrets builds templates for every provider that has
// a non-empty secret.
func NewRoutingVerifierFromSecrets(secrets map[string]string) (*RoutingVerifier, error) {
	verifier := NewRoutingVerifier()
	for providerID, secret := range secrets {
		if strings.TrimSpace(secret) == "" {
			continue
		}
		template, ok := TemplateFor(providerID, secret)
		if !ok {
			return nil, fmt.Errorf("webhooks: no verification template for provider %q", providerID)
		}
		verifier.Register(template)
	}
	return verifier, nil
}

func (v *RoutingVerifier) Register(template ProviderWebhookTemplate) {
	id := strings.ToLower(strings.TrimSpace(template.ProviderID))
	if v == nil || id == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.templates[id] = template
}

func (v *RoutingVerifier) Template(providerID string) (ProviderWebhookTemplate, bool) {
	if v == nil {
		return ProviderWebhookTemplate{}, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	template, ok := v.templates[strings.ToLower(strings.TrimSpace(providerID))]
	return template, ok
}

func (v *RoutingVerifier) Verify(ctx context.Context, req core.InboundRequest) error {
	template, ok := v.Template(req.ProviderID)
	if !ok || template.Verifier == nil {
		return nil
	}
	return template.Verifier.Verify(ctx, req)
}

// DeliveryIDs resolves delivery ids with the provider template first and the
// default header chain second.
func (v *RoutingVerifier) DeliveryIDs() DeliveryIDExtractor {
	return func(req core.InboundRequest) (string, error) {
		template, ok := v.Template(req.ProviderID)
		if ok && template.Extractor != nil {
			return ChainDeliveryIDExtractors(template.Extractor, DefaultDeliveryIDExtractor)(req)
		}
		return DefaultDeliveryIDExtractor(req)
	}
}

var _ Verifier = (*RoutingVerifier)(nil)
