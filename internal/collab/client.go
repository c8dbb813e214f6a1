// Package collab talks to the AgroVision server's HTTP collaborators: chat,
// speech synthesis and transcription, weather, advice, alert history and IP
// geolocation.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultCacheTTL = 10 * time.Minute
	maxErrorBody    = 4 * 1024
)

// ErrEmptyResponse is returned when the server answered without content.
var ErrEmptyResponse = errors.New("empty response")

// HTTPError is a non-2xx response.
type HTTPError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.Status, http.StatusText(e.Status))
}

// Config configures a Client.
type Config struct {
	BaseURL         string
	Language        string
	Timeout         time.Duration
	WeatherCacheTTL time.Duration
	// StreamMode frames plain-text /chat bodies. Empty means incremental.
	StreamMode StreamMode
}

// Client is the HTTP collaborator client.
type Client struct {
	baseURL    string
	lang       string
	streamMode StreamMode
	http       *http.Client
	stream  *http.Client // no overall timeout; streams end when the body ends
	log     zerolog.Logger
	weather *cache.Cache
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the request client (used for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
		c.stream = hc
	}
}

// New creates a Client.
func New(cfg Config, log zerolog.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.WeatherCacheTTL <= 0 {
		cfg.WeatherCacheTTL = defaultCacheTTL
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.StreamMode == "" {
		cfg.StreamMode = StreamIncremental
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		lang:       cfg.Language,
		streamMode: cfg.StreamMode,
		http:       &http.Client{Timeout: cfg.Timeout},
		stream:     &http.Client{},
		log:        log,
		weather:    cache.New(cfg.WeatherCacheTTL, 2*cfg.WeatherCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Language is the language code sent with chat and speech requests.
func (c *Client) Language() string { return c.lang }

func (c *Client) url(path string) string {
	return c.baseURL + path
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, path, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, path, out)
}

func (c *Client) doJSON(req *http.Request, path string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().Str("path", path).Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).Msg("collaborator call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %w", path, ErrEmptyResponse)
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// responseError builds an HTTPError, using the server's {"error": "..."} body
// when present.
func responseError(path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	} else if s := strings.TrimSpace(string(body)); s != "" && !strings.HasPrefix(s, "<") {
		msg = s
	}
	return &HTTPError{Endpoint: path, Status: resp.StatusCode, Message: msg}
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == status
}
