package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/m-aliabbas/whisper-at-server/internal/engine"
	"github.com/m-aliabbas/whisper-at-server/internal/httpapi"
)

const defaultHTTPTimeout = 10 * time.Minute

// Client talks to a running transcription service.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIToken sets the bearer token sent to protected routes.
func WithAPIToken(token string) Option {
	return func(c *Client) {
		c.apiToken = strings.TrimSpace(token)
	}
}

// New constructs a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: base URL required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Health reports whether the service is ready to accept transcriptions.
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusServiceUnavailable:
		return false, nil
	default:
		return false, fmt.Errorf("health request: unexpected status %d", resp.StatusCode)
	}
}

// TranscribeFile uploads the file at path and returns the parsed response.
func (c *Client) TranscribeFile(ctx context.Context, path string, params engine.Params) (httpapi.TranscribeResponse, error) {
	var empty httpapi.TranscribeResponse
	f, err := os.Open(path)
	if err != nil {
		return empty, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()
	return c.Transcribe(ctx, filepath.Base(path), f, params)
}

// Transcribe uploads audio read from r under the given filename.
func (c *Client) Transcribe(ctx context.Context, filename string, r io.Reader, params engine.Params) (httpapi.TranscribeResponse, error) {
	var empty httpapi.TranscribeResponse

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return empty, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return empty, fmt.Errorf("copy audio into form: %w", err)
	}
	fields := map[string]string{
		"audio_tagging_time_resolution": strconv.Itoa(params.AudioTaggingTimeResolution),
		"temperature":                   strconv.FormatFloat(params.Temperature, 'f', -1, 64),
		"no_speech_threshold":           strconv.FormatFloat(params.NoSpeechThreshold, 'f', -1, 64),
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return empty, fmt.Errorf("write form field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return empty, fmt.Errorf("finalize multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe/", body)
	if err != nil {
		return empty, fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return empty, decodeAPIError(resp)
	}

	var parsed httpapi.TranscribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return empty, fmt.Errorf("decode transcribe response: %w", err)
	}
	return parsed, nil
}

// TranscribeBytes uploads an in-memory audio buffer and returns only the
// final transcript text. Used by the Redis worker.
func (c *Client) TranscribeBytes(ctx context.Context, filename string, audio []byte, params engine.Params) (string, error) {
	resp, err := c.Transcribe(ctx, filename, bytes.NewReader(audio), params)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Status fetches the daemon status summary.
func (c *Client) Status(ctx context.Context) (httpapi.StatusResponse, error) {
	var status httpapi.StatusResponse
	if err := c.getJSON(ctx, "/api/status", &status); err != nil {
		return status, err
	}
	return status, nil
}

// Jobs lists recent journal entries, newest first.
func (c *Client) Jobs(ctx context.Context, limit int) ([]JobEntry, error) {
	path := "/api/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var listing struct {
		Jobs []JobEntry `json:"jobs"`
	}
	if err := c.getJSON(ctx, path, &listing); err != nil {
		return nil, err
	}
	return listing.Jobs, nil
}

// Job fetches a single journal entry by id.
func (c *Client) Job(ctx context.Context, id string) (JobEntry, error) {
	var entry JobEntry
	if err := c.getJSON(ctx, "/api/jobs/"+id, &entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// WaitReady polls the health endpoint until the service is ready or ctx ends.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ready, err := c.Health(ctx)
		if err == nil && ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("service not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != "" {
		return &APIError{StatusCode: resp.StatusCode, Detail: payload.Detail}
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(data))}
}
