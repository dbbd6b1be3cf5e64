package retailer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 4 << 20

// ClientOptions parameterise the retailer HTTP client.
type ClientOptions struct {
	ProxyEndpoint string
	ProxyUsername string
	ProxyPassword string
	ProxyZone     string
	Timeout       time.Duration
	UserAgent     string
}

// Client fetches price quotes from retailer websites through a rotating
// proxy. It never returns errors across its boundary: transport and
// extraction failures are logged and reported as "no quote".
type Client struct {
	opts   ClientOptions
	logger zerolog.Logger
	client *http.Client
}

// NewClient constructs a retailer client. When a proxy endpoint is
// configured, all requests are routed through it with the credential
// form the Bright Data gateway expects (username-zone-<zone>).
func NewClient(opts ClientOptions, logger zerolog.Logger) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	transport := http.DefaultTransport
	if opts.ProxyEndpoint != "" {
		proxyURL, err := url.Parse(opts.ProxyEndpoint)
		if err != nil {
			return nil, fmt.Errorf("parse proxy endpoint: %w", err)
		}
		if opts.ProxyUsername != "" {
			zone := opts.ProxyZone
			if zone == "" {
				zone = "static"
			}
			proxyURL.User = url.UserPassword(
				fmt.Sprintf("%s-zone-%s", opts.ProxyUsername, zone),
				opts.ProxyPassword,
			)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "retailer_client").Logger(),
		client: &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

// FetchQuote retrieves one quote for a (material, retailer) pair. The
// boolean result is false when no usable price was obtained, whether
// from a transport failure, an error status, or an extraction miss.
func (c *Client) FetchQuote(ctx context.Context, material Material, desc Descriptor) (Quote, bool) {
	if strings.TrimSpace(material.Name) == "" {
		c.logger.Warn().Int64("material_id", material.ID).Msg("material has empty name; skipping")
		return Quote{}, false
	}

	searchURL := desc.SearchURL(material)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		c.logger.Error().Err(err).Str("retailer", desc.Name).Str("material", material.Name).Msg("build request failed")
		return Quote{}, false
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("retailer", desc.Name).Str("material", material.Name).Msg("request failed")
		return Quote{}, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Warn().Err(err).Str("retailer", desc.Name).Str("material", material.Name).Msg("read body failed")
		return Quote{}, false
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("retailer", desc.Name).Str("material", material.Name).Msg("unexpected status")
		return Quote{}, false
	}

	price, ok := desc.Extract(body, material)
	if !ok || !price.IsPositive() {
		c.logger.Debug().Str("retailer", desc.Name).Str("material", material.Name).Msg("no price extracted")
		return Quote{}, false
	}

	return Quote{
		MaterialID: material.ID,
		Price:      price,
		Retailer:   desc.Name,
		URL:        searchURL,
		InStock:    true,
		FetchedAt:  time.Now().UTC(),
	}, true
}

func (c *Client) setHeaders(req *http.Request) {
	ua := c.opts.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

var _ QuoteFetcher = (*Client)(nil)
