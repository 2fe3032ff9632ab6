package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const KindREST = "rest"

const (
	defaultRESTClientTimeout     = 30 * time.Second
	defaultRESTResponseBodyLimit = int64(1 << 20)
	responseLimitMetadataKey     = "response_limit_b"
	restAdapterMetadataKey       = "adapter"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is one call to a bus endpoint. Header and query values are trimmed;
// blank keys are skipped.
type Request struct {
	Method               string
	URL                  string
	Query                map[string]string
	Headers              map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// RESTAdapter sends requests through an HTTPDoer and refuses response bodies
// larger than its limit.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.Client == nil {
		return Response{}, transportError("transport: rest adapter requires an http client",
			goerrors.CategoryInternal, http.StatusInternalServerError, restMetadata())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newHTTPRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryExternal, "transport: execute http request",
			http.StatusBadGateway, restMetadata("method", httpReq.Method, "url", httpReq.URL.String()))
	}
	defer httpRes.Body.Close()

	body, err := readBounded(httpRes, firstPositive(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes, defaultRESTResponseBodyLimit))
	if err != nil {
		return Response{}, err
	}
	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Duration:   time.Since(startedAt),
	}, nil
}

func (a *RESTAdapter) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	rawURL := strings.TrimSpace(req.URL)
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: invalid request url",
			http.StatusBadRequest, restMetadata("url", rawURL))
	}
	if target.String() == "" {
		return nil, transportError("transport: request url is required",
			goerrors.CategoryBadInput, http.StatusBadRequest, restMetadata())
	}
	if len(req.Query) > 0 {
		query := target.Query()
		eachTrimmed(req.Query, query.Set)
		target.RawQuery = query.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: create http request",
			http.StatusBadRequest, restMetadata("method", method, "url", target.String()))
	}
	eachTrimmed(a.DefaultHeaders, httpReq.Header.Set)
	eachTrimmed(req.Headers, httpReq.Header.Set)
	return httpReq, nil
}

// readBounded reads one byte past limit so an oversized body is reported
// instead of silently truncated.
func readBounded(res *http.Response, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryExternal, "transport: read response body",
			http.StatusBadGateway, restMetadata("status_code", res.StatusCode))
	}
	if int64(len(body)) > limit {
		return nil, transportError(fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			goerrors.CategoryExternal, http.StatusBadGateway,
			restMetadata("status_code", res.StatusCode, responseLimitMetadataKey, limit))
	}
	return body, nil
}

func eachTrimmed(values map[string]string, set func(key string, value string)) {
	for key, value := range values {
		if key = strings.TrimSpace(key); key != "" {
			set(key, strings.TrimSpace(value))
		}
	}
}

func restMetadata(pairs ...any) map[string]any {
	metadata := map[string]any{restAdapterMetadataKey: KindREST}
	for i := 0; i+1 < len(pairs); i += 2 {
		metadata[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return metadata
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func firstPositive(values ...int64) int64 {
	for _, value := range values {
		if value > 0 {
			return value
		}
	}
	return 0
}
