// Package cli holds the building blocks of the webmux command line tool: a
// REST client for the gateway, a WebSocket terminal and a serial device
// simulator.
package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds every REST call made by the client
const DefaultTimeout = 10 * time.Second

// Endpoint locates a webmux server
type Endpoint struct {
	Host string
	Port int
	TLS  bool
}

// BaseURL returns the HTTP root of the server
func (e Endpoint) BaseURL() string {
	scheme := "http"
	if e.TLS {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// TerminalURL returns the WebSocket address of a connection's byte stream
func (e Endpoint) TerminalURL(name string) string {
	scheme := "ws"
	if e.TLS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
		Path:   "/api/connections/" + name + "/ws",
	}
	return u.String()
}

// APIError is a failed call as reported by the server's response envelope
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s", msg, e.StatusCode, e.Details)
	}
	return fmt.Sprintf("%s (%d)", msg, e.StatusCode)
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

// ConnectionSummary is one entry of the server's connection list
type ConnectionSummary struct {
	Name string `json:"name"`
}

// Stats mirrors the counters the server reports for a connection
type Stats struct {
	Name          string `json:"name"`
	Port          string `json:"port"`
	BytesReceived uint64 `json:"bytes_received"`
	BytesSent     uint64 `json:"bytes_sent"`
	IsConnected   bool   `json:"is_connected"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
	State         string `json:"state"`
	Subscribers   int    `json:"subscribers"`
	DroppedChunks uint64 `json:"dropped_chunks"`
	LogFailures   uint64 `json:"log_failures"`
}

// SendResult is the server's acknowledgement of a send
type SendResult struct {
	Connection string `json:"connection"`
	Bytes      int    `json:"bytes"`
}

// PortInfo is a serial port reported by the server host
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
	Vendor       string `json:"vendor,omitempty"`
	Adapter      string `json:"adapter,omitempty"`
}

// Client talks to the gateway's REST API
type Client struct {
	http *resty.Client
}

// NewClient creates a client for baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "webmux-cli"),
	}
}

// ListConnections returns the connections the server exposes
func (c *Client) ListConnections(ctx context.Context) ([]ConnectionSummary, error) {
	return call[[]ConnectionSummary](c.http.R().SetContext(ctx), http.MethodGet, "/api/connections")
}

// Stats returns the counters of a connection
func (c *Client) Stats(ctx context.Context, name string) (*Stats, error) {
	req := c.http.R().SetContext(ctx).SetPathParam("name", name)
	return call[*Stats](req, http.MethodGet, "/api/connections/{name}/stats")
}

// Send writes data to a connection. format is text, hex or base64.
func (c *Client) Send(ctx context.Context, name, data, format string) (*SendResult, error) {
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("name", name).
		SetBody(map[string]string{"data": data, "format": format})
	return call[*SendResult](req, http.MethodPost, "/api/connections/{name}/send")
}

// Ports lists the serial ports of the server host
func (c *Client) Ports(ctx context.Context) ([]PortInfo, error) {
	return call[[]PortInfo](c.http.R().SetContext(ctx), http.MethodGet, "/api/ports")
}

func call[T any](req *resty.Request, method, path string) (T, error) {
	var env envelope[T]
	var zero T

	resp, err := req.SetResult(&env).SetError(&env).Execute(method, path)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.IsError() || !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Message: env.Message}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Details = env.Error.Details
			if apiErr.Message == "" {
				apiErr.Message = env.Error.Message
			}
		}
		return zero, apiErr
	}

	return env.Data, nil
}
