package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"meshnode/pkg/logger"
)

// ErrUnavailable signals a transient fetch failure; callers may retry.
var ErrUnavailable = errors.New("content unavailable")

// BlobStore is the content-addressable fetch capability. Pin is a hint that
// the node wants to keep the content; failures are non-fatal.
type BlobStore interface {
	Fetch(ctx context.Context, hash string) ([]byte, error)
	Pin(ctx context.Context, hash string) error
}

// GatewayClient fetches blobs from an HTTP content gateway
// (e.g. an IPFS gateway exposing GET <base>/ipfs/<hash>).
type GatewayClient struct {
	BaseURL string
	Timeout time.Duration
	MaxSize int

	client *fasthttp.Client
}

// NewGatewayClient builds a client against baseURL with the given
// per-request timeout.
func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GatewayClient{
		BaseURL: baseURL,
		Timeout: timeout,
		MaxSize: 16 << 20, // 16 MiB
		client: &fasthttp.Client{
			Name:                "meshnode-blob-fetch",
			MaxResponseBodySize: 16 << 20,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
	}
}

// Fetch retrieves content bytes by hash. Any transport error or non-200
// status maps to ErrUnavailable; the caller owns retry policy.
func (g *GatewayClient) Fetch(ctx context.Context, hash string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.BaseURL + "/ipfs/" + hash)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := g.client.DoTimeout(req, resp, g.Timeout); err != nil {
		logger.Debug("blob_fetch_failed", "hash", hash, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		logger.Debug("blob_fetch_status", "hash", hash, "status", resp.StatusCode())
		return nil, fmt.Errorf("%w: gateway status %d", ErrUnavailable, resp.StatusCode())
	}
	if g.MaxSize > 0 && len(resp.Body()) > g.MaxSize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrUnavailable, g.MaxSize)
	}
	// copy out of the pooled response
	return append([]byte(nil), resp.Body()...), nil
}

// Pin asks the gateway to pin the hash. Best-effort.
func (g *GatewayClient) Pin(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.BaseURL + "/api/v0/pin/add?arg=" + hash)
	req.Header.SetMethod(fasthttp.MethodPost)

	if err := g.client.DoTimeout(req, resp, g.Timeout); err != nil {
		return fmt.Errorf("pin failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("pin failed: gateway status %d", resp.StatusCode())
	}
	return nil
}
