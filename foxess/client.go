// Package foxess is a client for the FoxESS Cloud open API.
package foxess

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the public FoxESS Cloud endpoint.
	DefaultBaseURL = "https://www.foxesscloud.com"
	defaultTimeout = 10 * time.Second

	pathAccessCount   = "/op/v0/user/getAccessCount"
	pathDeviceList    = "/op/v0/device/list"
	pathVariableGet   = "/op/v0/device/variable/get"
	pathRealTimeQuery = "/op/v0/device/real/query"

	// The service hashes the escape sequence itself, not CR LF.
	signatureSeparator = `\r\n`
)

// Config holds the options for NewClient.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client talks to the FoxESS Cloud. It keeps no session state and is safe
// for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("foxess api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}, nil
}

// Timestamp returns the current time in milliseconds since the epoch.
func (c *Client) Timestamp() int64 {
	return c.now().UnixMilli()
}

// Signature computes the request signature the service validates.
func Signature(path, key string, timestamp int64) string {
	plain := path + signatureSeparator + key + signatureSeparator + strconv.FormatInt(timestamp, 10)
	sum := md5.Sum([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Headers returns the authentication headers for a request to path.
func Headers(path, key string, timestamp int64) http.Header {
	h := make(http.Header)
	h.Set("token", key)
	h.Set("timestamp", strconv.FormatInt(timestamp, 10))
	h.Set("signature", Signature(path, key, timestamp))
	h.Set("lang", "en")
	return h
}

// Get issues a signed GET request. The caller closes the response body.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues a signed POST request with body encoded as JSON. The caller
// closes the response body.
func (c *Client) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request for %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}

	timestamp := c.Timestamp()
	req.Header = Headers(path, c.apiKey, timestamp)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.WithFields(log.Fields{
		"method":    method,
		"path":      path,
		"timestamp": timestamp,
	}).Debug("foxess request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	return resp, nil
}

// call performs the request, checks the envelope and decodes result into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var (
		resp *http.Response
		err  error
	)
	if method == http.MethodPost {
		resp, err = c.Post(ctx, path, in)
	} else {
		resp, err = c.Get(ctx, path)
	}
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &TransportError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(raw))),
		}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	if env.Errno != 0 {
		return &RemoteServiceError{Path: path, Errno: env.Errno, Msg: env.Msg}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode result from %s: %w", path, err)
	}
	return nil
}

// RemainingRequests returns how many API calls the account has left today.
func (c *Client) RemainingRequests(ctx context.Context) (int, error) {
	var count accessCount
	if err := c.call(ctx, http.MethodGet, pathAccessCount, nil, &count); err != nil {
		return 0, err
	}
	remaining, err := strconv.ParseFloat(count.Remaining.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid remaining count %q: %w", count.Remaining, err)
	}
	return int(remaining), nil
}

// ListDevices returns the first page of devices on the account. Each call
// builds new Device values.
func (c *Client) ListDevices(ctx context.Context) ([]*Device, error) {
	var list deviceList
	req := deviceListRequest{CurrentPage: 1, PageSize: 10}
	if err := c.call(ctx, http.MethodPost, pathDeviceList, req, &list); err != nil {
		return nil, err
	}

	devices := make([]*Device, 0, len(list.Data))
	for _, item := range list.Data {
		devices = append(devices, newDevice(c, item))
	}
	return devices, nil
}

// FindDeviceBySerial lists the devices and returns the one with the given
// serial. The boolean is false when no device matches.
func (c *Client) FindDeviceBySerial(ctx context.Context, serial string) (*Device, bool, error) {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, device := range devices {
		if device.Serial == serial {
			return device, true, nil
		}
	}
	return nil, false, nil
}
