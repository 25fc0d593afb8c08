// Package pipeline triggers the external copy pipeline for approved
// entities. Dispatch is best effort: a failed trigger surfaces upstream but
// never rolls back the review decision that preceded it.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vre-charite/service-approval/internal/models"
)

// Credentials are the caller's auth headers, forwarded verbatim to the
// pipeline trigger. This service never mints tokens of its own.
type Credentials struct {
	Authorization string
	RefreshToken  string
}

// SubmitCopyInput describes one copy action for a set of approved targets.
type SubmitCopyInput struct {
	RequestID       string
	ProjectGeid     string
	SourceGeid      string
	DestinationGeid string
	TargetGeids     []string
	Operator        string
	SessionID       string
	Auth            Credentials
}

type target struct {
	Geid string `json:"geid"`
}

type copyPayload struct {
	Targets     []target `json:"targets"`
	Destination string   `json:"destination"`
	Source      string   `json:"source"`
	// RequestID doubles as the idempotency/correlation key downstream.
	RequestID string `json:"request_id"`
}

type copyBody struct {
	Payload     copyPayload `json:"payload"`
	Operator    string      `json:"operator"`
	Operation   string      `json:"operation"`
	ProjectGeid string      `json:"project_geid"`
	SessionID   string      `json:"session_id"`
}

// Client is the HTTP client for the data-ops pipeline trigger.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient builds a pipeline client with a bounded request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// SubmitCopy invokes the copy trigger once for the given target set and
// returns the geids the pipeline accepted. Failures are not retried.
func (c *Client) SubmitCopy(ctx context.Context, in SubmitCopyInput) ([]string, error) {
	body := copyBody{
		Payload: copyPayload{
			Targets:     make([]target, 0, len(in.TargetGeids)),
			Destination: in.DestinationGeid,
			Source:      in.SourceGeid,
			RequestID:   in.RequestID,
		},
		Operator:    in.Operator,
		Operation:   "copy",
		ProjectGeid: in.ProjectGeid,
		SessionID:   in.SessionID,
	}
	for _, geid := range in.TargetGeids {
		body.Payload.Targets = append(body.Payload.Targets, target{Geid: geid})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, models.NewUpstreamError("pipeline", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files/actions", bytes.NewReader(payload))
	if err != nil {
		return nil, models.NewUpstreamError("pipeline", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if in.Auth.Authorization != "" {
		req.Header.Set("Authorization", in.Auth.Authorization)
	}
	if in.Auth.RefreshToken != "" {
		req.Header.Set("Refresh-Token", in.Auth.RefreshToken)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, models.NewUpstreamError("pipeline", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewUpstreamError("pipeline", err)
	}
	if resp.StatusCode >= 300 {
		return nil, models.NewUpstreamError("pipeline",
			fmt.Errorf("failed to start copy pipeline: %d: %s", resp.StatusCode, raw))
	}

	var reply struct {
		Result []struct {
			Geid string `json:"geid"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, models.NewUpstreamError("pipeline", fmt.Errorf("decoding pipeline reply: %w", err))
	}
	accepted := make([]string, 0, len(reply.Result))
	for _, r := range reply.Result {
		accepted = append(accepted, r.Geid)
	}
	return accepted, nil
}
