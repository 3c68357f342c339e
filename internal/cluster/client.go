// Package cluster wraps the remote store's REST protocol: one NodeClient
// per replica, plus a Cluster handle bundling them. The store itself is an
// external system; everything here is transport plumbing.
package cluster

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ReadResult is the outcome of a read. "Not found" is a valid outcome,
// not an error.
type ReadResult struct {
	Found bool
	Value []byte
	Clock map[string]int64
}

// MerkleSnapshot carries the opaque digests returned by a node for a token
// range. Digests are compared byte-for-byte, never parsed.
type MerkleSnapshot struct {
	RootHash   string
	LeafHashes []string
}

type putRequest struct {
	ValueBase64 string `json:"valueBase64"`
	NodeID      string `json:"nodeId,omitempty"`
}

type deleteRequest struct {
	NodeID string `json:"nodeId,omitempty"`
}

type getResponse struct {
	Found       bool             `json:"found"`
	ValueBase64 *string          `json:"valueBase64"`
	VectorClock map[string]int64 `json:"vectorClock"`
}

type snapshotResponse struct {
	RootHashBase64   string   `json:"rootHashBase64"`
	LeafHashesBase64 []string `json:"leafHashesBase64"`
}

// NodeClient talks to a single store node.
type NodeClient struct {
	name    string
	baseURL string
	hc      *http.Client
}

// NewNodeClient builds a client with a connection pool sized for heavy
// concurrent load.
func NewNodeClient(name, baseURL string, timeout time.Duration) *NodeClient {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000

	return &NodeClient{
		name:    name,
		baseURL: baseURL,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: t,
		},
	}
}

func (c *NodeClient) Name() string { return c.name }

// Put writes value under key. coordNode is routing guidance for whichever
// node services the call.
func (c *NodeClient) Put(ctx context.Context, key string, value []byte, coordNode string) error {
	body, err := json.Marshal(putRequest{
		ValueBase64: base64.StdEncoding.EncodeToString(value),
		NodeID:      coordNode,
	})
	if err != nil {
		return fmt.Errorf("marshal put request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.kvURL(key), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("put %s on %s: %w", key, c.name, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("put %s on %s: status %d", key, c.name, resp.StatusCode)
	}
	return nil
}

// Get reads the current value for key from this node. A 404 translates to
// Found=false with a nil error.
func (c *NodeClient) Get(ctx context.Context, key string) (ReadResult, error) {
	return c.getWithHeaders(ctx, key, nil)
}

// GetWithDeadlineHint issues a read carrying a millisecond latency budget
// in the given header. The budget is advisory; the store may ignore it.
func (c *NodeClient) GetWithDeadlineHint(ctx context.Context, key, header string, deadlineMs int) (ReadResult, error) {
	return c.getWithHeaders(ctx, key, map[string]string{header: strconv.Itoa(deadlineMs)})
}

func (c *NodeClient) getWithHeaders(ctx context.Context, key string, headers map[string]string) (ReadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.kvURL(key), nil)
	if err != nil {
		return ReadResult{}, fmt.Errorf("build get request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return ReadResult{}, fmt.Errorf("get %s on %s: %w", key, c.name, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return ReadResult{Found: false}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ReadResult{}, fmt.Errorf("get %s on %s: status %d", key, c.name, resp.StatusCode)
	}

	var payload getResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ReadResult{}, fmt.Errorf("decode get response for %s on %s: %w", key, c.name, err)
	}
	if !payload.Found || payload.ValueBase64 == nil {
		return ReadResult{Found: false}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(*payload.ValueBase64)
	if err != nil {
		return ReadResult{}, fmt.Errorf("decode value for %s on %s: %w", key, c.name, err)
	}
	clock := payload.VectorClock
	if clock == nil {
		clock = map[string]int64{}
	}
	return ReadResult{Found: true, Value: raw, Clock: clock}, nil
}

// Delete tombstones key. A later Get must report Found=false.
func (c *NodeClient) Delete(ctx context.Context, key, coordNode string) error {
	var body io.Reader
	if coordNode != "" {
		b, err := json.Marshal(deleteRequest{NodeID: coordNode})
		if err != nil {
			return fmt.Errorf("marshal delete request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.kvURL(key), body)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s on %s: %w", key, c.name, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete %s on %s: status %d", key, c.name, resp.StatusCode)
	}
	return nil
}

// FetchMerkleSnapshot returns this node's digest for the token range.
func (c *NodeClient) FetchMerkleSnapshot(ctx context.Context, startToken, endToken int64, leafCount int) (MerkleSnapshot, error) {
	q := url.Values{}
	q.Set("startToken", strconv.FormatInt(startToken, 10))
	q.Set("endToken", strconv.FormatInt(endToken, 10))
	q.Set("leafCount", strconv.Itoa(leafCount))

	u := c.baseURL + "/admin/anti-entropy/merkle-snapshot?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return MerkleSnapshot{}, fmt.Errorf("build snapshot request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return MerkleSnapshot{}, fmt.Errorf("merkle snapshot on %s: %w", c.name, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return MerkleSnapshot{}, fmt.Errorf("merkle snapshot on %s: status %d", c.name, resp.StatusCode)
	}

	var payload snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return MerkleSnapshot{}, fmt.Errorf("decode snapshot on %s: %w", c.name, err)
	}
	return MerkleSnapshot{RootHash: payload.RootHashBase64, LeafHashes: payload.LeafHashesBase64}, nil
}

func (c *NodeClient) kvURL(key string) string {
	return c.baseURL + "/kv/" + url.PathEscape(key)
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
