package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/roach88/tideline/internal/stream"
)

// defaultTimeout bounds one gateway round trip.
const defaultTimeout = 30 * time.Second

// Client talks to one gateway node.
type Client struct {
	base string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient builds a client for the gateway at base,
// e.g. "https://gateway.example.net".
func NewClient(base string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commits fetches the complete commit set of a stream. The set carries no
// order. An unknown stream is a NOT_FOUND error; a known stream with no
// commits yet decodes as an empty set.
func (c *Client) Commits(ctx context.Context, id stream.ID) ([]stream.RawCommit, error) {
	endpoint := c.base + "/api/v0/streams/" + id.String() + "/commits"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("commits of %s: %w", id, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("commits of %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, stream.NewNotFoundError("stream", id.String())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("commits", resp)
	}

	var out struct {
		Commits []commitEnvelope `json:"commits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("commits of %s: decode response: %w", id, err)
	}

	raws := make([]stream.RawCommit, 0, len(out.Commits))
	for _, env := range out.Commits {
		cc, err := cid.Decode(env.CID)
		if err != nil {
			return nil, fmt.Errorf("commits of %s: bad cid %q: %w", id, env.CID, err)
		}
		raws = append(raws, stream.RawCommit{CID: cc, Data: env.Data})
	}
	return raws, nil
}

// StreamsOfModel fetches the identifiers of every stream declaring the given
// model. An unindexed model is a NOT_FOUND error.
func (c *Client) StreamsOfModel(ctx context.Context, model stream.ID) ([]stream.ID, error) {
	endpoint := c.base + "/api/v0/models/" + model.String() + "/streams"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("streams of model %s: %w", model, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("streams of model %s: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, stream.NewNotFoundError("model", model.String())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("streams of model", resp)
	}

	var out struct {
		StreamIDs []string `json:"streamIds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("streams of model %s: decode response: %w", model, err)
	}

	ids := make([]stream.ID, 0, len(out.StreamIDs))
	for _, raw := range out.StreamIDs {
		id, err := stream.ParseID(raw)
		if err != nil {
			return nil, fmt.Errorf("streams of model %s: bad stream id %q: %w", model, raw, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RequestAnchor asks the gateway's anchoring service to timestamp a commit.
// Idempotent on the gateway side; repeating a request is harmless.
func (c *Client) RequestAnchor(ctx context.Context, streamID string, commit cid.Cid) error {
	payload, err := json.Marshal(map[string]string{
		"streamId": streamID,
		"cid":      commit.String(),
	})
	if err != nil {
		return fmt.Errorf("request anchor for %s: %w", streamID, err)
	}
	endpoint := c.base + "/api/v0/requests"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request anchor for %s: %w", streamID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request anchor for %s: %w", streamID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("request anchor", resp)
	}
	return nil
}

// commitEnvelope is one commit on the wire: its address plus the raw block
// bytes, base64 in transit.
type commitEnvelope struct {
	CID  string `json:"cid"`
	Data []byte `json:"data"`
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("gateway %s: status %d: %s", op, resp.StatusCode, msg)
}
