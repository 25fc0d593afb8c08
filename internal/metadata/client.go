// Package metadata talks to the graph metadata service that owns the
// file/folder node catalog. The approval core only reads from it: node
// lookups at submission time, child listings during tree expansion, and
// liveness checks when completing a request.
package metadata

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

// Node is a file or folder descriptor as the metadata service reports it.
type Node struct {
	Geid        string   `json:"global_entity_id"`
	Labels      []string `json:"labels"`
	Name        string   `json:"name"`
	DisplayPath string   `json:"display_path"`
	Uploader    string   `json:"uploader"`
	TimeCreated string   `json:"time_created"`
	FileSize    int64    `json:"file_size"`
	DcmID       string   `json:"dcm_id"`
	Archived    bool     `json:"archived"`
	ProjectCode string   `json:"project_code"`
}

// IsFile reports whether the node is a file. Everything else is treated as
// a folder, matching the upstream label model.
func (n *Node) IsFile() bool {
	for _, label := range n.Labels {
		if label == "File" {
			return true
		}
	}
	return false
}

// UploadedAt parses the node's creation timestamp. An absent or malformed
// upstream value yields the zero time rather than an invented one.
func (n *Node) UploadedAt() time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, n.TimeCreated); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Source is the read interface the approval core needs from the metadata
// service. *Client implements it; tests substitute function-field stubs.
type Source interface {
	// GetNode resolves a single node by geid. Missing nodes surface as a
	// NOT_FOUND AppError.
	GetNode(ctx context.Context, geid string) (*Node, error)
	// BulkGet resolves many geids at once. Unknown geids are simply absent
	// from the reply; callers decide whether that is an error.
	BulkGet(ctx context.Context, geids []string) ([]Node, error)
	// Children lists the direct, non-archived children of a folder.
	Children(ctx context.Context, folderGeid string) ([]Node, error)
	// QueryNode looks a node up by label and property filter, used for
	// project container lookups.
	QueryNode(ctx context.Context, label string, query map[string]any) (*Node, error)
}

// Client is the HTTP implementation of Source.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient builds a metadata client with a bounded request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

func upstreamErr(err error) error {
	return models.NewUpstreamError("metadata", err)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return upstreamErr(err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return upstreamErr(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return upstreamErr(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return upstreamErr(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return upstreamErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		return upstreamErr(fmt.Errorf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return upstreamErr(fmt.Errorf("decoding %s reply: %w", req.URL.Path, err))
	}
	return nil
}

// GetNode implements Source.
func (c *Client) GetNode(ctx context.Context, geid string) (*Node, error) {
	var nodes []Node
	url := fmt.Sprintf("%s/v1/neo4j/nodes/geid/%s", c.baseURL, geid)
	if err := c.getJSON(ctx, url, &nodes); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, models.NewNotFoundError("Node", geid)
	}
	return &nodes[0], nil
}

// BulkGet implements Source.
func (c *Client) BulkGet(ctx context.Context, geids []string) ([]Node, error) {
	var reply struct {
		Result []Node `json:"result"`
	}
	url := c.baseURL + "/v1/neo4j/nodes/query/geids"
	if err := c.postJSON(ctx, url, map[string]any{"geids": geids}, &reply); err != nil {
		return nil, err
	}
	return reply.Result, nil
}

// Children implements Source. Archived nodes are excluded upstream.
func (c *Client) Children(ctx context.Context, folderGeid string) ([]Node, error) {
	query := map[string]any{
		"start_label": "Folder",
		"end_labels":  []string{"File", "Folder"},
		"query": map[string]any{
			"start_params": map[string]any{
				"global_entity_id": folderGeid,
			},
			"end_params": map[string]any{
				"File":   map[string]any{"archived": false},
				"Folder": map[string]any{"archived": false},
			},
		},
	}
	var reply struct {
		Results []Node `json:"results"`
	}
	url := c.baseURL + "/v2/neo4j/relations/query"
	if err := c.postJSON(ctx, url, query, &reply); err != nil {
		return nil, err
	}
	return reply.Results, nil
}

// QueryNode implements Source.
func (c *Client) QueryNode(ctx context.Context, label string, query map[string]any) (*Node, error) {
	var nodes []Node
	url := fmt.Sprintf("%s/v1/neo4j/nodes/%s/query", c.baseURL, label)
	if err := c.postJSON(ctx, url, query, &nodes); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, models.NewNotFoundError(label, query)
	}
	return &nodes[0], nil
}
