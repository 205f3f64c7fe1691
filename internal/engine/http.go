package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/streaming-stt-service/internal/audio"
)

// Compile-time assertion that Client implements Engine.
var _ Engine = (*Client)(nil)

// ClientConfig contains HTTP engine configuration
type ClientConfig struct {
	Endpoint      string
	Language      string
	Temperature   float32
	SampleRate    int
	Timeout       time.Duration
	MaxConcurrent int
}

// Client is an Engine backed by a whisper-server inference endpoint. Each
// Transcribe call uploads the window as a WAV file and requests verbose JSON
// so that per-segment time offsets are returned.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	semaphore  chan struct{} // bounds concurrent inference requests

	// Statistics
	totalCalls   uint64
	successCalls uint64
	failedCalls  uint64
	avgCallTime  time.Duration

	mu sync.RWMutex
}

// inferenceResponse mirrors the verbose JSON body returned by whisper-server.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// NewClient creates a new whisper-server HTTP engine
func NewClient(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe uploads the window to the inference endpoint and returns the
// recognized segments. A response without segments but with non-empty text
// is folded into a single segment spanning the whole window.
func (c *Client) Transcribe(ctx context.Context, samples []float32, prompt string) ([]Segment, error) {
	// Acquire semaphore to bound concurrent requests
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalCalls()

	segments, err := c.doRequest(ctx, samples, prompt)
	if err != nil {
		c.incrementFailedCalls()
		return nil, err
	}

	c.recordSuccess(time.Since(startTime))
	return segments, nil
}

// doRequest performs a single HTTP request against the inference endpoint
func (c *Client) doRequest(ctx context.Context, samples []float32, prompt string) ([]Segment, error) {
	body, contentType, err := c.createMultipartRequest(samples, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	endpoint := strings.TrimRight(c.config.Endpoint, "/") + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var inference inferenceResponse
	if err := json.Unmarshal(respBody, &inference); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	segments := make([]Segment, 0, len(inference.Segments))
	for _, s := range inference.Segments {
		segments = append(segments, Segment{Text: s.Text, Start: s.Start, End: s.End})
	}

	// Some server builds return only the flat text field.
	if len(segments) == 0 && strings.TrimSpace(inference.Text) != "" {
		windowDur := float64(len(samples)) / float64(c.config.SampleRate)
		segments = append(segments, Segment{Text: inference.Text, Start: 0, End: windowDur})
	}

	return segments, nil
}

// createMultipartRequest builds the multipart/form-data request body
func (c *Client) createMultipartRequest(samples []float32, prompt string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(audio.EncodeWAV(samples, c.config.SampleRate)); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
	}

	if c.config.Language != "" {
		fields["language"] = c.config.Language
	}
	if prompt != "" {
		fields["prompt"] = prompt
	}
	if c.config.Temperature > 0 {
		fields["temperature"] = fmt.Sprintf("%.2f", c.config.Temperature)
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// Statistics methods
func (c *Client) incrementTotalCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCalls++
}

func (c *Client) incrementFailedCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedCalls++
}

func (c *Client) recordSuccess(callTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successCalls++

	// Simple moving average
	if c.avgCallTime == 0 {
		c.avgCallTime = callTime
	} else {
		c.avgCallTime = (c.avgCallTime + callTime) / 2
	}
}

// Stats returns current engine call statistics
func (c *Client) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalCalls > 0 {
		successRate = float64(c.successCalls) / float64(c.totalCalls) * 100
	}

	return Stats{
		TotalCalls:      c.totalCalls,
		SuccessCalls:    c.successCalls,
		FailedCalls:     c.failedCalls,
		SuccessRate:     successRate,
		AvgCallDuration: c.avgCallTime,
	}
}

// Close gracefully shuts down the client, waiting for in-flight requests.
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}

	return nil
}
