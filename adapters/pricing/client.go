package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"easyquote/core/lineitem"
	"easyquote/core/quote"
	"easyquote/internal/config"
	qerrors "easyquote/internal/errors"
	"easyquote/internal/logging"
)

// maxErrorBody bounds how much of an error response is kept in the error message
const maxErrorBody = 4 << 10

// ClientConfig configures the HTTP pricing client
type ClientConfig struct {
	// BaseURL is the root of the pricing API
	BaseURL string

	// Timeout bounds a single HTTP exchange
	Timeout time.Duration

	// RateLimit is the sustained request rate; zero disables limiting
	RateLimit float64

	// Burst is the limiter burst size
	Burst int

	// Credentials supplies the token for catalog calls, which carry none
	Credentials lineitem.CredentialProvider

	// OnUnauthorized is called when the API rejects the credential
	OnUnauthorized func(error)

	// HTTPClient overrides the transport (tests)
	HTTPClient *http.Client

	Logger *zap.Logger
}

// ClientConfigFrom maps application configuration onto a client configuration
func ClientConfigFrom(cfg config.PricingConfig) ClientConfig {
	return ClientConfig{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout(),
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
	}
}

// Client is the HTTP pricing engine and product catalog
type Client struct {
	base           *url.URL
	http           *http.Client
	limiter        *rate.Limiter
	credentials    lineitem.CredentialProvider
	onUnauthorized func(error)
	logger         *zap.Logger
}

// NewClient creates a client for cfg.BaseURL
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, qerrors.Newf(qerrors.TypeConfig, "invalid pricing base URL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		base:           base,
		http:           httpClient,
		limiter:        limiter,
		credentials:    cfg.Credentials,
		onUnauthorized: cfg.OnUnauthorized,
		logger:         logging.Or(cfg.Logger).With(zap.String("component", "pricing-client")),
	}, nil
}

type wirePrompt struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Type         string `json:"type"`
	CurrentValue any    `json:"currentValue"`
	Sequence     *int   `json:"sequence"`
}

type wireOutput struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type wireResponse struct {
	Prompts      []wirePrompt `json:"prompts"`
	OutputValues []wireOutput `json:"outputValues"`
}

func (w wireResponse) response() *quote.PricingResponse {
	resp := &quote.PricingResponse{
		Prompts: make([]quote.PromptDefinition, 0, len(w.Prompts)),
		Outputs: make([]quote.Output, 0, len(w.OutputValues)),
	}
	for _, p := range w.Prompts {
		seq := quote.DefaultOrder
		if p.Sequence != nil {
			seq = *p.Sequence
		}
		resp.Prompts = append(resp.Prompts, quote.PromptDefinition{
			ID:           p.ID,
			Label:        p.Label,
			Type:         p.Type,
			CurrentValue: p.CurrentValue,
			Sequence:     seq,
		})
	}
	for _, o := range w.OutputValues {
		resp.Outputs = append(resp.Outputs, quote.Output{Name: o.Name, Type: o.Type, Value: quote.Text(o.Value)})
	}
	return resp
}

// Describe fetches the prompt definitions and defaults of a product
func (c *Client) Describe(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error) {
	var wire wireResponse
	if err := c.do(ctx, http.MethodGet, c.pricingPath(req.ProductID), req.Token, nil, &wire); err != nil {
		return nil, err
	}
	return wire.response(), nil
}

// Recompute prices a product for the given inputs
func (c *Client) Recompute(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error) {
	inputs := req.Inputs
	if inputs == nil {
		inputs = []quote.Input{}
	}
	var wire wireResponse
	if err := c.do(ctx, http.MethodPatch, c.pricingPath(req.ProductID), req.Token, inputs, &wire); err != nil {
		return nil, err
	}
	return wire.response(), nil
}

// ListActiveProducts returns the catalog entries that are active
func (c *Client) ListActiveProducts(ctx context.Context) ([]quote.Product, error) {
	if c.credentials == nil {
		return nil, qerrors.Precondition("no session credential provider")
	}
	token, err := c.credentials.Token(ctx)
	if err != nil {
		return nil, err
	}

	var all []quote.Product
	if err := c.do(ctx, http.MethodGet, "/api/v1/products", token, nil, &all); err != nil {
		return nil, err
	}

	active := make([]quote.Product, 0, len(all))
	for _, p := range all {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active, nil
}

func (c *Client) pricingPath(productID string) string {
	return "/api/v1/pricing/" + url.PathEscape(productID)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	if strings.TrimSpace(token) == "" {
		return qerrors.Precondition("session token is missing")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return qerrors.Wrap(qerrors.TypeNetwork, "rate limiter wait aborted", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return qerrors.Internal("failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return qerrors.Internal("failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return qerrors.Wrapf(qerrors.TypeNetwork, err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	c.logger.Debug("pricing API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		uerr := qerrors.Unauthorized(fmt.Sprintf("pricing API rejected the credential (%d)", resp.StatusCode), nil)
		if c.onUnauthorized != nil {
			c.onUnauthorized(uerr)
		}
		return uerr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return qerrors.Pricing(fmt.Sprintf("pricing API returned %d: %s", resp.StatusCode, errorMessage(msg)), nil).
			WithContext("status", resp.StatusCode).
			WithContext("path", path)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return qerrors.Parsing("invalid pricing API response", err)
	}
	return nil
}

// errorMessage extracts {"message": ...} from an error body, falling back to the raw text
func errorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return strings.TrimSpace(string(body))
}
