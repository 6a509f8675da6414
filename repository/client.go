package repository

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

	"github.com/akinalp/mqvi-sync/pkg"
)

// ClientOptions, Client ayarları.
type ClientOptions struct {
	BaseURL     string
	AccessToken string
	RateLimit   float64 // Saniye başına istek; 0 ise sınırsız
	RateBurst   int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client, mqvi REST API'si ile konuşan ince HTTP katmanı.
//
// Tek görevi istek kurmak, cevap zarfını (pkg.APIResponse) açmak ve 2xx
// dışı cevapları *pkg.APIError'a çevirmektir. Tekil istekleri yeniden
// denemez; sadece client-side pacing uygular (rate.Limiter): sunucunun
// mesaj rate limiter'ına takılmamak için.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient, yeni bir REST client oluşturur.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("api base url cannot be empty")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("api base url must include scheme (https://)")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    base,
		token:      opts.AccessToken,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.Named("api"),
	}, nil
}

// doJSON, isteği gönderir ve cevabın data alanını out'a decode eder.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	var envelope pkg.APIResponse
	decodeErr := json.Unmarshal(respData, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &pkg.APIError{Status: resp.StatusCode}
		if decodeErr == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(respData))
		}
		return apiErr
	}

	if out == nil || len(respData) == 0 {
		return nil
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: decode response: %v", pkg.ErrInternal, decodeErr)
	}
	if !envelope.Success {
		return &pkg.APIError{Status: resp.StatusCode, Message: envelope.Error}
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: decode response data: %v", pkg.ErrInternal, err)
	}
	return nil
}

func escape(segment string) string {
	return url.PathEscape(segment)
}

func pageQuery(key, cursor string, limit int) url.Values {
	q := url.Values{}
	if cursor != "" {
		q.Set(key, cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	return q
}
