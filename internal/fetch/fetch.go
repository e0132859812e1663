// Package fetch is the outbound HTTP collaborator: it retrieves a tile URL
// and decodes the response into an image. Retry and backpressure are left to
// callers.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"time"

	// raster formats served by map services
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"

	"github.com/maprender/tilesource/internal/observability"
)

// ImageFetcher is what tile sources need from the transport layer.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (image.Image, error)
}

type Client struct {
	http *http.Client
	log  zerolog.Logger
}

// New creates a fetch client with a tuned shared transport.
func New(timeout time.Duration, logger zerolog.Logger) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		http: &http.Client{Transport: transport, Timeout: timeout},
		log:  logger,
	}
}

// HTTPClient exposes the underlying client for collaborators that issue
// their own requests (metadata discovery).
func (c *Client) HTTPClient() *http.Client { return c.http }

// Fetch retrieves raw bytes from url. The context governs cancellation.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	observability.ObserveUpstreamFetch("tile", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	return body, nil
}

// FetchImage retrieves and decodes one raster tile.
func (c *Client) FetchImage(ctx context.Context, url string) (image.Image, error) {
	body, err := c.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode image from %s: %w", url, err)
	}
	c.log.Debug().Str("url", url).Str("format", format).Msg("tile fetched")
	return img, nil
}
