package kubo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"

	"github.com/roach88/tideline/internal/codec"
)

// defaultTimeout bounds one RPC round trip, including block transfer.
const defaultTimeout = 60 * time.Second

// Client speaks the Kubo HTTP RPC API: block get/put and pub/sub publish.
// Every endpoint is POST per the RPC convention. Client implements
// BlockFetcher.
type Client struct {
	base string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. to adjust
// timeouts or inject a test transport.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient builds a client for the Kubo RPC endpoint at base,
// e.g. "http://127.0.0.1:5001".
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

// BlockGet fetches the raw block bytes for one content address. The bytes
// are re-hashed against the address before they are returned; a mismatch is
// an error, same as BlockPut's key check.
func (c *Client) BlockGet(ctx context.Context, id cid.Cid) ([]byte, error) {
	endpoint := c.base + "/api/v0/block/get?arg=" + url.QueryEscape(id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("block/get %s: %w", id, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("block/get %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, rpcError("block/get", resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("block/get %s: read body: %w", id, err)
	}
	ok, err := codec.Verify(id, data)
	if err != nil {
		return nil, fmt.Errorf("block/get %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("block/get: node returned bytes that do not hash to %s", id)
	}
	return data, nil
}

// BlockPut stores raw block bytes on the node under the codec and hash
// function the address declares. The node's reported address must match id;
// a mismatch means the bytes do not hash to the address and is an error.
func (c *Client) BlockPut(ctx context.Context, id cid.Cid, data []byte) error {
	name, err := cidCodecName(id.Prefix().Codec)
	if err != nil {
		return fmt.Errorf("block/put %s: %w", id, err)
	}
	endpoint := c.base + "/api/v0/block/put?cid-codec=" + name + "&mhtype=sha2-256"

	body, contentType, err := fileForm(data)
	if err != nil {
		return fmt.Errorf("block/put %s: %w", id, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("block/put %s: %w", id, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("block/put %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rpcError("block/put", resp)
	}

	var out struct {
		Key  string `json:"Key"`
		Size int    `json:"Size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("block/put %s: decode response: %w", id, err)
	}
	if out.Key != id.String() {
		return fmt.Errorf("block/put: node stored %s, expected %s", out.Key, id)
	}
	return nil
}

// Publish sends data on a pub/sub topic. The topic travels multibase-encoded
// in the URL per the RPC's requirement.
func (c *Client) Publish(ctx context.Context, topic string, data []byte) error {
	arg, err := multibase.Encode(multibase.Base64url, []byte(topic))
	if err != nil {
		return fmt.Errorf("pubsub/pub: encode topic: %w", err)
	}
	endpoint := c.base + "/api/v0/pubsub/pub?arg=" + url.QueryEscape(arg)

	body, contentType, err := fileForm(data)
	if err != nil {
		return fmt.Errorf("pubsub/pub %q: %w", topic, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("pubsub/pub %q: %w", topic, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pubsub/pub %q: %w", topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rpcError("pubsub/pub", resp)
	}
	return nil
}

// cidCodecName maps the content codecs this system mints to the RPC's
// cid-codec parameter values.
func cidCodecName(code uint64) (string, error) {
	switch code {
	case codec.CodecDagJSON:
		return "dag-json", nil
	case codec.CodecRaw:
		return "raw", nil
	default:
		return "", fmt.Errorf("unsupported cid codec 0x%x", code)
	}
}

// fileForm wraps data as the single-file multipart body the RPC expects.
func fileForm(data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "block")
	if err != nil {
		return nil, "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("build multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// rpcError decodes the JSON error envelope Kubo returns on failure.
func rpcError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Message string `json:"Message"`
		Code    int    `json:"Code"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return fmt.Errorf("kubo %s: %s (status %d)", op, e.Message, resp.StatusCode)
	}
	return fmt.Errorf("kubo %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
