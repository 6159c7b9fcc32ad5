// Package genbridge talks to the generation automation bridge, a small HTTP
// service fronting the browser automation that drives the image generator.
package genbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
)

type startRequest struct {
	Prompt       string `json:"prompt"`
	ReferenceRef string `json:"reference_ref,omitempty"`
}

type startResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	State     string `json:"state"` // queued | running | done | error
	RasterRef string `json:"raster_ref,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Client implements collab.Generator against the bridge API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

var _ collab.Generator = (*Client)(nil)

func (c *Client) StartGeneration(ctx context.Context, prompt, referenceRef string) (collab.GenerationHandle, error) {
	body, err := json.Marshal(startRequest{Prompt: prompt, ReferenceRef: referenceRef})
	if err != nil {
		return "", common.WrapError(err, "encode start request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", common.WrapError(err, "build start request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", common.NewServiceError("genbridge.start", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", common.NewServiceError("genbridge.start", httpError(resp))
	}

	var sr startResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", common.WrapError(err, "decode start response")
	}
	if sr.JobID == "" {
		return "", common.NewServiceError("genbridge.start", fmt.Errorf("bridge returned empty job id"))
	}
	c.log.Debug("genbridge.job.started", "job_id", sr.JobID)
	return collab.GenerationHandle(sr.JobID), nil
}

func (c *Client) PollStatus(ctx context.Context, handle collab.GenerationHandle) (collab.GenerationStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+string(handle), nil)
	if err != nil {
		return collab.GenerationStatus{}, common.WrapError(err, "build status request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return collab.GenerationStatus{}, common.NewServiceError("genbridge.poll", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return collab.GenerationStatus{}, common.NewServiceError("genbridge.poll", httpError(resp))
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return collab.GenerationStatus{}, common.WrapError(err, "decode status response")
	}

	switch sr.State {
	case "done":
		return collab.GenerationStatus{Done: true, RasterRef: sr.RasterRef}, nil
	case "error":
		return collab.GenerationStatus{Done: true, Error: sr.Error}, nil
	default:
		return collab.GenerationStatus{}, nil
	}
}

func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
